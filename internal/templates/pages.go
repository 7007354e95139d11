package templates

const layout = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
{{if gt .Refresh 0}}<meta http-equiv="refresh" content="{{.Refresh}}">
{{end}}<title>{{.Title}} · PracticeDesk</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 720px; margin: 0 auto; padding: 2rem; color: #1f2937; }
nav { display: flex; gap: 1rem; align-items: center; margin-bottom: 2rem; }
nav form { margin-left: auto; }
.error { background: #fee2e2; color: #991b1b; padding: .75rem 1rem; border-radius: .375rem; }
.notice { background: #dcfce7; color: #166534; padding: .75rem 1rem; border-radius: .375rem; }
#toasts { position: fixed; top: 1rem; right: 1rem; display: grid; gap: .5rem; }
.toast { background: #111827; color: #f9fafb; padding: .75rem 1rem; border-radius: .375rem; max-width: 320px; }
.toast.error { background: #991b1b; color: #fff; }
label { display: block; margin: .75rem 0 .25rem; }
</style>
</head>
<body>
{{if .User}}<nav>
<a href="/dashboard">Dashboard</a>
{{if eq .User.Role "client"}}<a href="/client/">Documents</a>{{end}}
{{if or (eq .User.Role "staff") (eq .User.Role "admin") (eq .User.Role "super_admin")}}<a href="/staff/">Clients</a>{{end}}
{{if or (eq .User.Role "admin") (eq .User.Role "super_admin")}}<a href="/admin/">Administration</a>{{end}}
<form method="post" action="/logout"><button type="submit">Sign out</button></form>
</nav>{{end}}
<main>
{{if .Error}}<p class="error" role="alert">{{.Error}}</p>{{end}}
{{if .Notice}}<p class="notice" role="status">{{.Notice}}</p>{{end}}
{{template "body" .}}
</main>
<div id="toasts" aria-live="assertive"></div>
{{if .Live}}<script>
(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "/live?path=" + encodeURIComponent(location.pathname));
  function toast(d) {
    var el = document.createElement("div");
    el.className = "toast " + (d.level || "info");
    el.textContent = (d.title ? d.title + ": " : "") + (d.message || "");
    document.getElementById("toasts").appendChild(el);
    setTimeout(function () { el.remove(); }, 8000);
  }
  ws.onmessage = function (ev) {
    var f = JSON.parse(ev.data);
    if (f.type === "toast") { toast(f.detail || {}); }
    if (f.type === "signout") { setTimeout(function () { location.assign(f.redirect || "/login"); }, 1500); }
  };
  window.addEventListener("popstate", function () {
    if (ws.readyState === 1) { ws.send(JSON.stringify({type: "route", path: location.pathname})); }
  });
})();
</script>{{end}}
</body>
</html>
`

var pageBodies = map[string]string{
	"login": `<h1>Sign in</h1>
<form method="post" action="/login">
<input type="hidden" name="next" value="{{.Next}}">
<label for="email">Email</label>
<input id="email" name="email" type="email" autocomplete="username" value="{{.Email}}" required>
<label for="password">Password</label>
<input id="password" name="password" type="password" autocomplete="current-password" required>
<p><button type="submit">Sign in</button></p>
</form>
<p><a href="/forgot-password">Forgot your password?</a></p>`,

	"forgot-password": `<h1>Reset your password</h1>
<form method="post" action="/forgot-password">
<label for="email">Email</label>
<input id="email" name="email" type="email" value="{{.Email}}" required>
<p><button type="submit">Send reset link</button></p>
</form>
<p><a href="/login">Back to sign in</a></p>`,

	"reset-password": `<h1>Choose a new password</h1>
<form method="post" action="/reset-password">
<input type="hidden" name="token" value="{{.Token}}">
<label for="password">New password</label>
<input id="password" name="password" type="password" autocomplete="new-password" minlength="8" required>
<p><button type="submit">Set password</button></p>
</form>`,

	"maintenance": `<h1>Portal unavailable</h1>
<p>The client portal is temporarily closed. Please try again later or contact your accountant.</p>`,

	"unauthorized": `<h1>Access denied</h1>
<p>Your account does not have access to this page.</p>
<p><a href="/dashboard">Go to your dashboard</a></p>`,

	"dashboard": `<h1>Welcome{{if .User}}, {{.User.Email}}{{end}}</h1>
<p>You are signed in as <strong>{{if .User}}{{.User.Role}}{{end}}</strong>.</p>`,

	"loading": `<p role="status">Loading your workspace&hellip;</p>`,

	"area": `<h1>{{.Area}}</h1>
<p>This section is available to your role.</p>`,
}
