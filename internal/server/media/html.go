package media

import (
	"html/template"
	"io"
	"sort"
	"strings"

	"github.com/systemshift/drumbeat/internal/rdf"
)

var htmlTemplate = template.Must(template.New("fragment").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<table class="triples">
<tr><th>Subject</th><th>Predicate</th><th>Object</th></tr>
{{- range .Rows}}
<tr><td>{{.S}}</td><td>{{.P}}</td><td>{{.O}}</td></tr>
{{- end}}
</table>
<h2>Prefixes</h2>
<table class="prefixes">
<tr><th>Prefix</th><th>Namespace</th></tr>
{{- range .Prefixes}}
<tr><td>{{.Label}}:</td><td>{{.Namespace}}</td></tr>
{{- end}}
</table>
</body>
</html>
`))

type htmlRow struct {
	S, P, O string
}

type htmlPrefix struct {
	Label, Namespace string
}

type htmlPage struct {
	Title    string
	Rows     []htmlRow
	Prefixes []htmlPrefix
}

// htmlTerms renders terms for the table and records the prefixes used.
type htmlTerms struct {
	prefixes rdf.Prefixes
	base     string
	used     map[string]string
}

func (h *htmlTerms) iri(value string) string {
	if label, local, ok := h.prefixes.Compact(value); ok {
		h.used[label] = h.prefixes[label]
		return label + ":" + local
	}
	if h.base != "" && strings.HasPrefix(value, h.base) && len(value) > len(h.base) {
		h.used[""] = h.base
		return "<" + value[len(h.base):] + ">"
	}
	return "<" + value + ">"
}

func (h *htmlTerms) term(t rdf.Term) string {
	switch v := t.(type) {
	case rdf.IRI:
		return h.iri(v.Value)
	case rdf.BlankNode:
		return "_:" + v.ID
	case rdf.Literal:
		s := `"` + v.Lexical + `"`
		switch {
		case v.Lang != "":
			s += "@" + v.Lang
		case v.Datatype.Value != "":
			s += "^^" + h.iri(v.Datatype.Value)
		}
		return s
	}
	return ""
}

// writeHTML renders one table row per triple followed by the table of
// prefixes the rows used. The template escapes every cell.
func writeHTML(w io.Writer, triples []rdf.Triple, prefixes rdf.Prefixes, base string) error {
	h := &htmlTerms{prefixes: prefixes, base: base, used: map[string]string{}}
	page := htmlPage{Title: "Graph fragment"}
	for _, t := range triples {
		page.Rows = append(page.Rows, htmlRow{S: h.term(t.S), P: h.term(t.P), O: h.term(t.O)})
	}
	labels := make([]string, 0, len(h.used))
	for label := range h.used {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		page.Prefixes = append(page.Prefixes, htmlPrefix{Label: label, Namespace: h.used[label]})
	}
	return htmlTemplate.Execute(w, page)
}
