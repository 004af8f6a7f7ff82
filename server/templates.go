package server

import (
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"
)

// pageTemplates holds every server-rendered page. The layout includes the
// visibility trigger: when the tab regains foreground focus it asks the
// heartbeat endpoint and reloads if the session is no longer authenticated,
// which makes the superseded tab render the blocking overlay.
var pageTemplates = template.Must(template.New("pages").Parse(`
{{define "head"}}
<!DOCTYPE html>
<html>
<head>
<title>CourseKit</title>
<style>
body { font-family: sans-serif; margin: 2rem; }
.error { color: #b00020; }
.overlay { position: fixed; inset: 0; background: rgba(0,0,0,.6); display: flex; align-items: center; justify-content: center; }
.modal { background: #fff; padding: 2rem; border-radius: 8px; max-width: 26rem; }
</style>
<script>
document.addEventListener("visibilitychange", function () {
	if (document.visibilityState !== "visible") return;
	if (location.pathname === "/login" || location.pathname === "/signup") return;
	fetch("/session/heartbeat").then(function (res) { return res.json(); }).then(function (hb) {
		if (hb.phase !== "authenticated" && hb.phase !== "anonymous") location.reload();
	}).catch(function () { /* inconclusive, keep the page */ });
});
</script>
</head>
<body>
{{end}}

{{define "foot"}}</body></html>{{end}}

{{define "nav"}}
<nav>
<a href="/courses">Courses</a>
{{if .User}} | <a href="/my/courses">My courses</a> | {{.User.Name}} | <a href="/logout">Log out</a>
{{else}} | <a href="/login">Log in</a> | <a href="/signup">Sign up</a>{{end}}
</nav><hr>
{{end}}

{{define "login"}}
{{template "head" .}}
<h1>Log in</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/login">
<label>Email <input type="email" name="email" required></label><br>
<label>Password <input type="password" name="password" required></label><br>
<button type="submit">Log in</button>
</form>
<p><a href="/signup">Create an account</a></p>
{{template "foot" .}}
{{end}}

{{define "signup"}}
{{template "head" .}}
<h1>Sign up</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="/signup">
<label>Name <input type="text" name="name" required></label><br>
<label>Email <input type="email" name="email" required></label><br>
<label>Password <input type="password" name="password" required></label><br>
<label>Role
<select name="role">
<option value="student">Student</option>
<option value="creator">Creator</option>
</select>
</label><br>
<button type="submit">Sign up</button>
</form>
{{template "foot" .}}
{{end}}

{{define "courses"}}
{{template "head" .}}
{{template "nav" .}}
<h1>Courses</h1>
<ul>
{{range .Courses}}<li><a href="/courses/{{.ID}}">{{.Title}}</a></li>{{else}}<li>No courses yet.</li>{{end}}
</ul>
{{template "foot" .}}
{{end}}

{{define "course"}}
{{template "head" .}}
{{template "nav" .}}
<h1>{{.Course.Title}}</h1>
<p>{{.Course.Description}}</p>
{{if .Enrolled}}
<p>You are enrolled.</p>
{{else if .User}}
<form method="post" action="/courses/{{.Course.ID}}/enroll"><button type="submit">Enroll</button></form>
{{else}}
<p><a href="/login">Log in</a> to enroll.</p>
{{end}}
{{template "foot" .}}
{{end}}

{{define "mycourses"}}
{{template "head" .}}
{{template "nav" .}}
<h1>My courses</h1>
<ul>
{{range .Courses}}<li><a href="/courses/{{.ID}}">{{.Title}}</a></li>{{else}}<li>No enrollments yet.</li>{{end}}
</ul>
{{template "foot" .}}
{{end}}

{{define "blocked"}}
{{template "head" .}}
<div class="overlay">
<div class="modal">
<h1>Session ended</h1>
<p>Your account was accessed from another device, so this session is no longer valid.</p>
<form method="post" action="{{.AcknowledgePath}}">
<button type="submit" autofocus>OK, take me to login</button>
</form>
</div>
</div>
{{template "foot" .}}
{{end}}
`))

// renderPage executes a named page template.
func (s *Server) renderPage(w http.ResponseWriter, name string, data map[string]any) {
	w.Header().Set("Content-Type", contentTypeHTML)
	if err := pageTemplates.ExecuteTemplate(w, name, data); err != nil {
		log.Err(err).Str("template", name).Msg("Failed to render page")
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
