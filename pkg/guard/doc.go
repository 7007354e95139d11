// Package guard keeps signed-in sessions honest after sign-in.
//
// A Guard is attached to one live connection. It validates the session's
// user immediately and then every Config.Interval, and whenever the
// connection leaves the sign-in flow or the session's user changes. Checks
// closer together than Config.Cooldown are skipped.
//
// When a check fails, the session is signed out and the user is told why.
// The user is told once per failure streak: further failures stay silent
// until a check succeeds again. Connections of one session share that state
// through a Tracker:
//
//	machine := tracker.Machine(sess.ID)
//	g := guard.New(sess, machine, deps, guard.DefaultConfig())
//	g.Start(ctx)
//	defer g.Stop()
//
// Results of a check still in flight when the guard stops, or when the
// session changes user, are discarded.
package guard
