package handler

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/document-access-gate/internal/model"
)

const pageLayout = `<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title>
<style>body{font-family:sans-serif;max-width:52rem;margin:2rem auto;padding:0 1rem}iframe{width:100%;height:80vh;border:1px solid #ccc}.muted{color:#666}</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{if .Message}}<p>{{.Message}}</p>{{end}}
{{with .Document}}<p class="muted">Document: {{.Title}}{{if .FileName}} ({{.FileName}}){{end}}</p>{{end}}
{{if .Warning}}<p><strong>Note:</strong> {{.Warning}}</p>{{end}}
{{if .FrameURL}}<iframe src="{{.FrameURL}}"></iframe>
{{if .DownloadURL}}<p><a href="{{.DownloadURL}}">Download</a></p>{{end}}{{end}}
</body>
</html>`

var pageTmpl = template.Must(template.New("page").Parse(pageLayout))

// page is the data rendered into pageLayout.  Only non-sensitive document
// fields are exposed.
type page struct {
	Title       string
	Message     string
	Warning     string
	Document    *pageDocument
	FrameURL    string
	DownloadURL string
}

type pageDocument struct {
	Title    string
	FileName string
}

func docForPage(d *model.Document) *pageDocument {
	if d == nil {
		return nil
	}
	return &pageDocument{Title: d.Title, FileName: d.FileName}
}

func renderPage(c echo.Context, status int, p page) error {
	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, p); err != nil {
		c.Logger().Errorf("render page %q: %v", p.Title, err)
		return c.String(http.StatusInternalServerError, "internal error")
	}
	return c.HTMLBlob(status, buf.Bytes())
}

// errorPage is the standardized visitor-facing error response.
func errorPage(c echo.Context, status int, reason string, doc *model.Document) error {
	title := "Access denied"
	switch status {
	case http.StatusNotFound:
		title = "Not found"
	case http.StatusConflict:
		title = "Nothing to do"
	case http.StatusInternalServerError:
		title = "Something went wrong"
	}
	return renderPage(c, status, page{Title: title, Message: reason, Document: docForPage(doc)})
}
