// Package live serves the portal's WebSocket endpoint.
//
// A page opens /live once it is rendered. The connection carries JSON
// frames:
//
//	client → server  {"type":"route","path":"/client/documents"}
//	                 {"type":"ping"}
//	server → client  {"type":"pong"}
//	                 {"type":"toast","name":"portal:toast","detail":{...}}
//	                 {"type":"signout","redirect":"/login"}
//
// Each connection runs a guard.Guard for its session, so access revoked
// while a page stays open ends the session without a reload. Connections of
// one session share guard state through the handler's Tracker.
package live
