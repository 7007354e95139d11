// Package session holds the server-side auth state of browser sessions.
//
// A Session carries the signed-in identity and at most one cached profile.
// The Manager creates, resolves and signs out sessions and persists a small
// record of each through a Store:
//
//	store := session.NewRedisStore(redisClient)
//	// or (default)
//	store := session.NewMemoryStore()
//
//	manager := session.NewManager(store, provider, session.DefaultManagerConfig(), logger)
//	sess, err := manager.Create(ctx, identity)
//
// The cached profile is never persisted. After a restart a restored session
// starts without one and the next guarded request fetches it again.
//
// Listeners registered with Session.Subscribe observe SignedIn, SignedOut and
// ProfileChanged; the live connection uses them to push a sign-out to the
// browser.
package session
