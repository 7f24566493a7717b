package handlers

import (
	"encoding/json"
	"html/template"
	"net/http"
)

var indexPage = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>botdetection demo</title>
{{.Header}}
</head>
<body>
<form action="/search"><input name="q" value="{{.Query}}"><button>search</button></form>
</body>
</html>
`))

type Demo struct {
	linkToken *LinkToken
}

func NewDemo(linkToken *LinkToken) *Demo {
	return &Demo{linkToken: linkToken}
}

// Index serves the HTML page carrying the link token.
func (d *Demo) Index(w http.ResponseWriter, r *http.Request) {
	var header template.HTML
	if d.linkToken != nil {
		header = d.linkToken.HTMLHeader(r)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = indexPage.Execute(w, struct {
		Header template.HTML
		Query  string
	}{Header: header, Query: r.URL.Query().Get("q")})
}

// Search responde com resultados fixos; serve para exercitar os filtros.
func (d *Demo) Search(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"query":   r.URL.Query().Get("q"),
		"results": []string{"aa", "bb", "cc"},
	})
}

func Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// IsAPIFormat reports whether the request asks for a non-HTML result format.
func IsAPIFormat(r *http.Request) bool {
	format := r.URL.Query().Get("format")
	return format != "" && format != "html"
}
