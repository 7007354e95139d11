// Package templates holds the portal's HTML pages.
//
// Every page is rendered inside a shared layout. Signed-in pages set
// Data.Live, which adds the script that keeps a /live connection open:
// it reports route changes, shows toasts and follows sign-out redirects.
//
// # Usage
//
//	err := templates.Render(w, "login", templates.Data{
//	    Title: "Sign in",
//	    Next:  "/dashboard",
//	})
package templates
