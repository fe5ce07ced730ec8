package richtext

import (
	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// mdExtensions matches what message composers commonly emit; footnotes
// and auto heading ids are noise in chat.
const mdExtensions = parser.CommonExtensions | parser.NoEmptyLineBeforeBlock

// ParseMarkdown converts a markdown-composed message body into a document
// tree by rendering it to the safe HTML dialect first. The intermediate
// HTML goes through the export policy before parsing, so markdown input
// gets the same two fences as received HTML.
func ParseMarkdown(md string) []Node {
	p := parser.NewWithExtensions(mdExtensions)
	doc := p.Parse([]byte(md))

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags,
	})
	out := exportPolicy.Sanitize(string(markdown.Render(doc, renderer)))
	return Parse(out)
}
