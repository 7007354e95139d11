// Package profile defines the authorization profile of a portal user and the
// sources it is read from.
//
// A Profile carries the facts the access gate decides on: the user's role and
// whether the account is active. Profiles are owned by the hosted backend and
// mutated by administrators elsewhere; this package only reads them.
//
//	pool, _ := pgxpool.New(ctx, dsn)
//	src := profile.NewPostgresSource(pool)
//	p, err := src.Fetch(ctx, userID)
//	if errors.Is(err, profile.ErrNotFound) {
//	    // no profile row for this user
//	}
package profile
