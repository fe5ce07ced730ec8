package richtext

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// NotifyStyle is the reduced attribute set a notification surface can
// host: no colors, no interactive regions, no placeholders. Link carries
// the raw target; the surface supplies its own link handling.
type NotifyStyle struct {
	Bold          bool
	Italic        bool
	Underline     bool
	Strikethrough bool
	Monospace     bool
	Link          string
}

// NotifyRun styles the half-open rune range [Start, End) of
// PlainStyled.Text. Unstyled text has no run.
type NotifyRun struct {
	Start, End int
	Style      NotifyStyle
}

type PlainStyled struct {
	Text string
	Runs []NotifyRun
}

// ProjectNotification is the low-fidelity second consumer of a parsed
// document tree: a plain styled string for a system notification. It runs
// independently of the interactive render path. Spoilers stay masked
// here, a notification cannot be tapped to reveal.
func ProjectNotification(nodes []Node) PlainStyled {
	ctx := &notifyContext{}
	ctx.walk(nodes, NotifyStyle{})
	return ctx.finish()
}

type notifyContext struct {
	buf      strings.Builder
	pos      int
	runs     []NotifyRun
	newlines int // consecutive line breaks at the tail
	masked   bool
}

// write appends text, suppressing leading whitespace and capping
// consecutive line breaks at two.
func (ctx *notifyContext) write(s string, style NotifyStyle) {
	var filtered strings.Builder
	for _, r := range s {
		if r == '\n' {
			if ctx.pos == 0 && filtered.Len() == 0 {
				continue
			}
			if ctx.newlines >= 2 {
				continue
			}
			ctx.newlines++
		} else {
			if ctx.pos == 0 && filtered.Len() == 0 && (r == ' ' || r == '\t') {
				continue
			}
			ctx.newlines = 0
		}
		filtered.WriteRune(r)
	}
	if filtered.Len() == 0 {
		return
	}
	out := filtered.String()
	n := utf8.RuneCountInString(out)
	ctx.buf.WriteString(out)
	if style != (NotifyStyle{}) {
		if last := len(ctx.runs) - 1; last >= 0 && ctx.runs[last].End == ctx.pos && ctx.runs[last].Style == style {
			ctx.runs[last].End += n
		} else {
			ctx.runs = append(ctx.runs, NotifyRun{Start: ctx.pos, End: ctx.pos + n, Style: style})
		}
	}
	ctx.pos += n
}

func (ctx *notifyContext) breakLine(style NotifyStyle) {
	ctx.write("\n", style)
}

func (ctx *notifyContext) walk(nodes []Node, style NotifyStyle) {
	c := &nodeCursor{nodes: nodes}
	for !c.done() {
		if !ctx.masked {
			if sp, consumed, ok := extractSpoiler(c); ok {
				c.advance(consumed)
				ctx.masked = true
				ctx.walk(sp.Content, style)
				ctx.masked = false
				continue
			}
		}
		n := c.peek(0)
		c.advance(1)
		switch n := n.(type) {
		case TextNode:
			ctx.writeText(n.Content, style)
		case LineBreakNode:
			ctx.breakLine(style)
		case TagNode:
			ctx.walkTag(n, style)
		}
	}
}

func (ctx *notifyContext) writeText(content string, style NotifyStyle) {
	if ctx.masked {
		ctx.write(maskSpoiler(content), style)
		return
	}
	ctx.write(wsRun.ReplaceAllString(content, " "), style)
}

func (ctx *notifyContext) walkTag(t TagNode, style NotifyStyle) {
	switch t.Kind {
	case tagB, tagStrong:
		style.Bold = true
		ctx.walk(t.Children, style)
	case tagI, tagEm:
		style.Italic = true
		ctx.walk(t.Children, style)
	case tagU, tagIns:
		style.Underline = true
		ctx.walk(t.Children, style)
	case tagS, tagDel:
		style.Strikethrough = true
		ctx.walk(t.Children, style)
	case tagCode:
		style.Monospace = true
		ctx.walk(t.Children, style)
	case tagA:
		if href := strings.TrimSpace(t.attr("href")); href != "" && !ctx.masked {
			style.Link = href
		}
		ctx.walk(t.Children, style)
	case tagSpan, tagFont:
		// colors don't survive the projection
		ctx.walk(t.Children, style)
	case tagImg:
		if alt := t.attr("alt"); alt != "" {
			ctx.writeText(alt, style)
		}
	case tagH1, tagH2, tagH3, tagH4, tagH5, tagH6, tagSummary:
		ctx.breakLine(style)
		style.Bold = true
		ctx.walk(t.Children, style)
		ctx.breakLine(style)
	case tagBlockquote:
		ctx.breakLine(style)
		style.Italic = true
		ctx.write("> ", style)
		ctx.walk(t.Children, style)
		ctx.breakLine(style)
	case tagUl, tagOl:
		ctx.walkList(t, style)
	case tagPre:
		ctx.breakLine(style)
		mono := style
		mono.Monospace = true
		raw := strings.TrimRight(flattenText(t.Children), " \t\n")
		if ctx.masked {
			raw = maskSpoiler(raw)
		}
		ctx.write(raw, mono)
		ctx.breakLine(style)
	case tagHr:
		ctx.breakLine(style)
		ctx.write("---", style)
		ctx.breakLine(style)
	case tagP, tagDiv, tagDetails, tagLi, tagTable, tagTr:
		ctx.breakLine(style)
		ctx.walk(t.Children, style)
		ctx.breakLine(style)
	case tagThead, tagTbody, tagTh, tagTd, tagCaption, tagSup, tagSub:
		ctx.walk(t.Children, style)
	}
}

func (ctx *notifyContext) walkList(t TagNode, style NotifyStyle) {
	ctx.breakLine(style)
	index := 1
	for _, child := range t.Children {
		li, ok := child.(TagNode)
		if !ok || li.Kind != tagLi {
			continue
		}
		ctx.breakLine(style)
		if t.Kind == tagOl {
			ctx.write(strconv.Itoa(index)+". ", style)
			index++
		} else {
			ctx.write("• ", style)
		}
		ctx.walk(li.Children, style)
		ctx.breakLine(style)
	}
}

func (ctx *notifyContext) finish() PlainStyled {
	text := strings.TrimRight(ctx.buf.String(), " \t\n")
	total := utf8.RuneCountInString(text)

	runs := ctx.runs[:0]
	for _, run := range ctx.runs {
		if run.Start >= total {
			continue
		}
		if run.End > total {
			run.End = total
		}
		runs = append(runs, run)
	}
	return PlainStyled{Text: text, Runs: runs}
}
