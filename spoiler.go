package richtext

import (
	"strings"
)

const (
	spoilerAttr        = "data-mx-spoiler"
	spoilerClass       = "spoiler"
	spoilerReasonClass = "spoiler-reason"
)

// spoilerSpan is a reason plus the hidden content as a node sequence, not
// flattened text, so nested links and styling survive the reveal.
type spoilerSpan struct {
	Reason  string
	Content []Node
}

// nodeCursor is a cursor over a sibling list with lookahead, so "consume
// two nodes as one logical unit" is a named operation instead of inline
// index math.
type nodeCursor struct {
	nodes []Node
	pos   int
}

func (c *nodeCursor) done() bool { return c.pos >= len(c.nodes) }

func (c *nodeCursor) peek(n int) Node {
	if c.pos+n >= len(c.nodes) {
		return nil
	}
	return c.nodes[c.pos+n]
}

func (c *nodeCursor) advance(n int) { c.pos += n }

// extractSpoiler pattern-matches the sibling shapes that carry a spoiler:
// a reason-marker span followed by a content-marker span, a bare
// content-marker span, or a span with the native spoiler attribute. On a
// match it reports how many sibling nodes the spoiler consumed. It returns
// nothing when the content marker is absent or empty.
func extractSpoiler(c *nodeCursor) (spoilerSpan, int, bool) {
	first, ok := c.peek(0).(TagNode)
	if !ok || (first.Kind != tagSpan && first.Kind != tagFont) {
		return spoilerSpan{}, 0, false
	}

	if reason, native := first.Attrs[spoilerAttr]; native {
		if len(first.Children) == 0 {
			return spoilerSpan{}, 0, false
		}
		return spoilerSpan{Reason: reason, Content: first.Children}, 1, true
	}

	if hasClass(first, spoilerReasonClass) {
		second, ok := c.peek(1).(TagNode)
		if !ok || second.Kind != tagSpan || !hasClass(second, spoilerClass) || len(second.Children) == 0 {
			return spoilerSpan{}, 0, false
		}
		return spoilerSpan{
			Reason:  strings.TrimSpace(flattenText(first.Children)),
			Content: second.Children,
		}, 2, true
	}

	if hasClass(first, spoilerClass) && len(first.Children) > 0 {
		return spoilerSpan{Content: first.Children}, 1, true
	}
	return spoilerSpan{}, 0, false
}

func hasClass(t TagNode, class string) bool {
	for _, c := range strings.Fields(t.attr("class")) {
		if c == class {
			return true
		}
	}
	return false
}

const maskWord = "spoiler"

// maskSpoiler hides text without altering layout: the output always has
// exactly as many runes as the input, and line breaks stay where they are.
// Each contiguous non-break run of length L becomes
//
//	L == 1          a single asterisk
//	L == 2          a two-character bracket
//	3 <= L <= 8     '<' + (L-2) asterisks + '>'
//	L > 8           the word "spoiler" centered and padded with dashes
//
// Revealing a spoiler must never reflow the paragraph, which is why the
// four bands are length-preserving.
func maskSpoiler(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	runLen := 0
	flush := func() {
		if runLen > 0 {
			b.WriteString(maskRun(runLen))
			runLen = 0
		}
	}
	for _, r := range s {
		if r == '\n' {
			flush()
			b.WriteRune('\n')
		} else {
			runLen++
		}
	}
	flush()
	return b.String()
}

func maskRun(n int) string {
	switch {
	case n == 1:
		return "*"
	case n == 2:
		return "<>"
	case n <= 8:
		return "<" + strings.Repeat("*", n-2) + ">"
	default:
		left := (n - len(maskWord)) / 2
		right := n - len(maskWord) - left
		return strings.Repeat("-", left) + maskWord + strings.Repeat("-", right)
	}
}

// SpoilerState tracks which spoilers of one displayed message are
// revealed, keyed by the stable ids a render pass assigns. It is scoped
// per message and is not safe for concurrent writers; the host UI
// serializes pointer events, so no lock is taken here.
type SpoilerState struct {
	revealed map[string]bool
}

func NewSpoilerState() *SpoilerState {
	return &SpoilerState{revealed: make(map[string]bool)}
}

// Revealed reports whether the spoiler is currently revealed. Unknown ids
// default to hidden.
func (s *SpoilerState) Revealed(id string) bool {
	if s == nil {
		return false
	}
	return s.revealed[id]
}

// Toggle flips the reveal state of one spoiler and returns the new state.
func (s *SpoilerState) Toggle(id string) bool {
	if s == nil {
		return false
	}
	s.revealed[id] = !s.revealed[id]
	return s.revealed[id]
}

func (s *SpoilerState) ensure(id string) {
	if s == nil {
		return
	}
	if _, ok := s.revealed[id]; !ok {
		s.revealed[id] = false
	}
}

// prune drops ids the most recent render did not produce, so an edited
// message cannot inherit reveal state from an unrelated prior spoiler that
// happened to get the same sequential id.
func (s *SpoilerState) prune(seen map[string]bool) {
	if s == nil {
		return
	}
	for id := range s.revealed {
		if !seen[id] {
			delete(s.revealed, id)
		}
	}
}
