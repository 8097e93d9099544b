package http

import (
	"html/template"
	"path/filepath"

	"github.com/mrlokans/bookshelf/internal/bookform"
	"github.com/mrlokans/bookshelf/internal/catalog"
	"github.com/mrlokans/bookshelf/web"
)

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"editPath": catalog.EditPath,
		"fieldError": func(errs bookform.FieldErrors, field string) string {
			return errs[field]
		},
	}
}

// LoadTemplates parses the page templates, from dir when set or from the
// templates embedded in the binary otherwise.
func LoadTemplates(dir string) (*template.Template, error) {
	tmpl := template.New("").Funcs(templateFuncs())
	if dir != "" {
		return tmpl.ParseGlob(filepath.Join(dir, "*.html"))
	}
	return tmpl.ParseFS(web.Templates, "templates/*.html")
}
