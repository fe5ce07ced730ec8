package richtext

import (
	"regexp"
	"strings"

	"maunium.net/go/mautrix/id"
)

// Node is one node of a parsed message document tree. Trees are immutable
// once built: re-rendering walks the same nodes again instead of mutating
// them.
type Node interface {
	node()
}

// TextNode is a literal text run with entities already decoded.
type TextNode struct {
	Content string
}

// LineBreakNode is an explicit <br> line separator.
type LineBreakNode struct{}

// TagNode is an element from the allowlist together with its attributes
// (keys lowercased) and ordered children.
type TagNode struct {
	Kind     tagKind
	Name     string
	Attrs    map[string]string
	Children []Node
}

func (TextNode) node() {}
func (LineBreakNode) node() {}
func (TagNode) node() {}

func (t TagNode) attr(name string) string {
	return t.Attrs[name]
}

// Parse scans a Matrix "safe HTML" message body into a document tree.
//
// It is deliberately fail-soft: malformed input is degraded, never
// rejected. A '<' without a matching '>' turns the remainder into literal
// text, a stray closing tag is skipped, a disallowed tag is unwrapped
// (its markup dropped, its content kept) except the reply fallback
// wrapper whose whole subtree is deleted, and an unmatched opening tag is
// dropped with its would-be content kept as siblings. Hostile or
// truncated input must never crash rendering.
func Parse(html string) []Node {
	return parseFragment(html, false)
}

func parseFragment(s string, preserve bool) []Node {
	var nodes []Node
	var text strings.Builder

	flushText := func(final bool) {
		if text.Len() == 0 {
			return
		}
		content := text.String()
		text.Reset()
		if final && !preserve {
			// trailing whitespace of the trailing run carries no meaning;
			// leading whitespace does (it separates adjacent inline tags)
			content = strings.TrimRight(content, " \t\r\n")
			if content == "" {
				return
			}
		}
		nodes = append(nodes, TextNode{Content: decodeEntities(content)})
	}

	i := 0
	for i < len(s) {
		lt := strings.IndexByte(s[i:], '<')
		if lt == -1 {
			text.WriteString(s[i:])
			break
		}
		text.WriteString(s[i : i+lt])
		i += lt

		gt := strings.IndexByte(s[i:], '>')
		if gt == -1 {
			// unterminated tag: the remainder is literal text
			text.WriteString(s[i:])
			break
		}
		raw := s[i+1 : i+gt]
		after := i + gt + 1

		if strings.HasPrefix(raw, "/") {
			// closing tag without a preceding open: skip it
			i = after
			continue
		}

		name, attrString, selfClosed := splitTag(raw)
		if name == "" {
			// not a tag at all, keep the '<' as text and rescan
			text.WriteByte('<')
			i++
			continue
		}

		kind, allowed := allowedTags[name]

		if isVoidTag(name) || selfClosed {
			if allowed {
				flushText(false)
				if n, ok := leafNode(kind, name, attrString); ok {
					nodes = append(nodes, n)
				}
			}
			i = after
			continue
		}

		if !allowed {
			if name == replyFallbackTag {
				// the quoted reply is rendered from the relation instead;
				// delete the wrapper and everything inside it
				if _, resume, ok := findClosing(s, after, name); ok {
					i = resume
				} else {
					i = after
				}
				continue
			}
			// unwrap: drop the markup, keep scanning the content in place
			i = after
			continue
		}

		contentEnd, resume, ok := findClosing(s, after, name)
		if !ok {
			// unmatched opening tag: drop it, its content becomes siblings
			i = after
			continue
		}
		flushText(false)
		childPreserve := preserve || kind == tagPre
		nodes = append(nodes, TagNode{
			Kind:     kind,
			Name:     name,
			Attrs:    parseAttrs(attrString),
			Children: parseFragment(s[after:contentEnd], childPreserve),
		})
		i = resume
	}

	flushText(true)
	return nodes
}

func leafNode(kind tagKind, name, attrString string) (Node, bool) {
	switch kind {
	case tagBr:
		return LineBreakNode{}, true
	case tagImg:
		return imageNode(parseAttrs(attrString))
	default:
		return TagNode{Kind: kind, Name: name, Attrs: parseAttrs(attrString)}, true
	}
}

// imageNode accepts only the internal media scheme as an image source.
// Remote http(s) sources would leak the reader's address to arbitrary
// servers, so they degrade to their alt text.
func imageNode(attrs map[string]string) (Node, bool) {
	if src := attrs["src"]; src != "" {
		if uri := id.ContentURIString(src).ParseOrIgnore(); uri.IsValid() {
			return TagNode{Kind: tagImg, Name: "img", Attrs: attrs}, true
		}
	}
	if alt := attrs["alt"]; alt != "" {
		return TextNode{Content: alt}, true
	}
	return nil, false
}

// splitTag splits the markup between '<' and '>' into a case-folded tag
// name and its raw attribute string. An empty name means the markup is not
// a tag.
func splitTag(raw string) (name, attrs string, selfClosed bool) {
	raw = strings.TrimSpace(raw)
	if strings.HasSuffix(raw, "/") {
		selfClosed = true
		raw = strings.TrimSpace(raw[:len(raw)-1])
	}
	if sp := strings.IndexAny(raw, " \t\r\n"); sp != -1 {
		name, attrs = raw[:sp], strings.TrimSpace(raw[sp+1:])
	} else {
		name = raw
	}
	name = strings.ToLower(name)
	if !isTagName(name) {
		return "", "", false
	}
	return name, attrs, selfClosed
}

func isTagName(name string) bool {
	if name == "" || !isAlpha(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		if !isAlpha(c) && (c < '0' || c > '9') && c != '-' {
			return false
		}
	}
	return true
}

func isAlpha(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// findClosing locates the closing tag matching an already-consumed opening
// tag, counting nested same-name openers so that a <div> inside a <div>
// resolves the outer close correctly. contentEnd is the index of the
// closing tag's '<', resume the index just past its '>'.
func findClosing(s string, from int, name string) (contentEnd, resume int, ok bool) {
	depth := 1
	i := from
	for i < len(s) {
		lt := strings.IndexByte(s[i:], '<')
		if lt == -1 {
			break
		}
		i += lt
		rest := s[i+1:]
		switch {
		case strings.HasPrefix(rest, "/") && tagNameAt(rest[1:], name):
			gt := strings.IndexByte(s[i:], '>')
			if gt == -1 {
				return 0, 0, false
			}
			depth--
			if depth == 0 {
				return i, i + gt + 1, true
			}
			i += gt + 1
		case tagNameAt(rest, name):
			gt := strings.IndexByte(s[i:], '>')
			if gt == -1 {
				return 0, 0, false
			}
			if !strings.HasSuffix(strings.TrimSpace(s[i+1:i+gt]), "/") {
				depth++
			}
			i += gt + 1
		default:
			i++
		}
	}
	return 0, 0, false
}

// tagNameAt reports whether s starts with name followed by a tag-name
// boundary, so <divfoo> is never mistaken for a nested <div>.
func tagNameAt(s, name string) bool {
	if len(s) <= len(name) || !strings.EqualFold(s[:len(name)], name) {
		return false
	}
	switch s[len(name)] {
	case '>', '/', ' ', '\t', '\r', '\n':
		return true
	default:
		return false
	}
}

var attrPattern = regexp.MustCompile(`([a-zA-Z_:][a-zA-Z0-9:._-]*)(?:\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'=<>` + "`" + `]+)))?`)

// parseAttrs tokenizes name="value" / name='value' / name=value triples.
// Unknown attributes are retained; the renderer decides which matter.
func parseAttrs(s string) map[string]string {
	if s == "" {
		return nil
	}
	var attrs map[string]string
	for _, m := range attrPattern.FindAllStringSubmatch(s, -1) {
		key := strings.ToLower(m[1])
		if attrs == nil {
			attrs = make(map[string]string)
		} else if _, dup := attrs[key]; dup {
			continue
		}
		val := m[2]
		if val == "" && m[3] != "" {
			val = m[3]
		}
		if val == "" && m[4] != "" {
			val = m[4]
		}
		attrs[key] = decodeEntities(val)
	}
	return attrs
}

// flattenText extracts the raw text of a subtree: tags stripped, line
// breaks (explicit and block boundaries) literal.
func flattenText(nodes []Node) string {
	var b strings.Builder
	flattenInto(&b, nodes)
	return b.String()
}

func flattenInto(b *strings.Builder, nodes []Node) {
	breakBefore := func() {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
	}
	for _, n := range nodes {
		switch n := n.(type) {
		case TextNode:
			b.WriteString(n.Content)
		case LineBreakNode:
			b.WriteByte('\n')
		case TagNode:
			if n.Kind.isBlock() {
				breakBefore()
			}
			flattenInto(b, n.Children)
			if n.Kind.isBlock() {
				breakBefore()
			}
		}
	}
}
