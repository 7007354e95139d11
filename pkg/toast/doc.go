// Package toast delivers short notifications to the user's browser.
//
// Toasts travel over the live connection as a custom event. The browser
// decides how to render them:
//
//	window.addEventListener("portal:toast", (e) => {
//	    const { level, message, title } = e.detail;
//	    showToast(level, title, message);
//	});
//
// Server code depends on Notifier. The live connection provides one per
// browser tab; tests use a Recorder:
//
//	rec := &toast.Recorder{}
//	_ = rec.Notify(ctx, toast.Message{Title: "Access", Text: "Account inactive.", Severity: toast.Error})
package toast
