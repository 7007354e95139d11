package templates

import (
	"bytes"
	"html/template"
	"io"
	"sort"

	"github.com/practicedesk/portal/internal/errors"
)

// Data is the view model shared by all pages.
type Data struct {
	Title string

	// Error and Notice are flash lines shown above the page body.
	Error  string
	Notice string

	// Next is the local path to continue to after signing in.
	Next string

	// Email pre-fills sign-in and reset forms.
	Email string

	// Token carries a password reset token through the form.
	Token string

	// User is the signed-in user, when there is one.
	User *User

	// Area names the role section being viewed, e.g. "Staff".
	Area string

	// Live adds the live connection script.
	Live bool

	// Refresh, when positive, reloads the page after that many seconds.
	Refresh int
}

// User is the part of a profile pages display.
type User struct {
	ID    string
	Email string
	Role  string
}

// Page is a parsed page template.
type Page struct {
	Name string
	tmpl *template.Template
}

// Execute renders the page with data.
func (p *Page) Execute(w io.Writer, data Data) error {
	return p.tmpl.ExecuteTemplate(w, "layout", data)
}

var pages = map[string]*Page{}

func init() {
	for name, body := range pageBodies {
		t := template.Must(template.New("layout").Parse(layout))
		template.Must(t.New("body").Parse(body))
		pages[name] = &Page{Name: name, tmpl: t}
	}
}

// Get returns a page by name.
func Get(name string) (*Page, error) {
	p, ok := pages[name]
	if !ok {
		return nil, errors.Newf(errors.CategoryConfig, "page template %q not found", name)
	}
	return p, nil
}

// List returns the page names in order.
func List() []string {
	names := make([]string, 0, len(pages))
	for name := range pages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render renders the named page to w. Nothing is written when rendering
// fails.
func Render(w io.Writer, name string, data Data) error {
	p, err := Get(name)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := p.Execute(&buf, data); err != nil {
		return err
	}
	_, err = buf.WriteTo(w)
	return err
}
