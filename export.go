package richtext

import (
	"html"
	"sort"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// exportPolicy is the second fence behind the parser's own allowlist: the
// serialized tree is sanitized again before it can reach a web view, so a
// serializer bug cannot become an injection.
var exportPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	for name := range allowedTags {
		p.AllowElements(name)
	}
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("src", "alt", "title", "height", "width").OnElements("img")
	p.AllowAttrs("class", "data-mx-spoiler", "data-mx-color", "data-mx-bg-color", "color").OnElements("span", "font")
	p.AllowAttrs("class").OnElements("code")
	p.AllowAttrs("start").OnElements("ol")
	p.AllowURLSchemes("https", "http", "matrix", "mxc", "mailto")
	p.RequireParseableURLs(true)
	return p
}()

// exportedAttrs is the per-tag attribute surface that survives export.
var exportedAttrs = map[tagKind][]string{
	tagA:    {"href"},
	tagImg:  {"src", "alt", "title", "height", "width"},
	tagSpan: {"class", "data-mx-spoiler", "data-mx-color", "data-mx-bg-color"},
	tagFont: {"color", "data-mx-color", "data-mx-bg-color"},
	tagCode: {"class"},
	tagOl:   {"start"},
}

// ExportHTML serializes a document tree back to the safe HTML dialect,
// suitable for handing to an embedded web view or a bridge.
func ExportHTML(nodes []Node) string {
	var b strings.Builder
	exportNodes(&b, nodes)
	return exportPolicy.Sanitize(b.String())
}

func exportNodes(b *strings.Builder, nodes []Node) {
	for _, n := range nodes {
		switch n := n.(type) {
		case TextNode:
			b.WriteString(html.EscapeString(n.Content))
		case LineBreakNode:
			b.WriteString("<br/>")
		case TagNode:
			exportTag(b, n)
		}
	}
}

func exportTag(b *strings.Builder, t TagNode) {
	b.WriteByte('<')
	b.WriteString(t.Name)
	writeExportedAttrs(b, t)
	if isVoidTag(t.Name) {
		b.WriteString("/>")
		return
	}
	b.WriteByte('>')
	exportNodes(b, t.Children)
	b.WriteString("</")
	b.WriteString(t.Name)
	b.WriteByte('>')
}

func writeExportedAttrs(b *strings.Builder, t TagNode) {
	keys := exportedAttrs[t.Kind]
	if len(keys) == 0 || len(t.Attrs) == 0 {
		return
	}
	// deterministic output regardless of map order
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	for _, key := range sorted {
		val, ok := t.Attrs[key]
		if !ok {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(key)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(val))
		b.WriteByte('"')
	}
}
