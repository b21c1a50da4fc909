// Package views holds the server-rendered HTML pages.
package views

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var files embed.FS

// Page template names, as passed to gin's c.HTML.
const (
	Login     = "login.html"
	Signup    = "signup.html"
	Message   = "message.html"
	Dashboard = "dashboard.html"
	Profile   = "profile.html"
)

// Templates parses every embedded page. It panics on a malformed template,
// which can only happen at build time.
func Templates() *template.Template {
	return template.Must(template.New("").ParseFS(files, "templates/*.html"))
}
