package richtext

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"maunium.net/go/mautrix/id"
)

const (
	defaultMaxCodeLines = 8

	linkColor  = "#368bd6"
	quoteColor = "#808080"

	// the object replacement character marks the text hole an inline
	// placeholder occupies; the host sizes and draws the real thing
	objectReplacement = "￼"
)

var wsRun = regexp.MustCompile(`\s+`)

// Resolver lets the host supply profile display names for mention chips.
// The renderer degrades to sender-supplied text or the raw user id when
// resolution is unavailable.
type Resolver interface {
	DisplayName(user id.UserID) (string, bool)
}

type RenderOptions struct {
	Resolver Resolver

	// MaxCodeLines is the truncation threshold for code blocks; longer
	// blocks render a preview plus a "N more lines" trailer. Zero means
	// the default of 8.
	MaxCodeLines int
}

func (o *RenderOptions) maxCodeLines() int {
	if o == nil || o.MaxCodeLines <= 0 {
		return defaultMaxCodeLines
	}
	return o.MaxCodeLines
}

// Render walks a parsed document tree and produces the flat annotated
// document for it. It is a pure function of its inputs and safe to call
// repeatedly; re-rendering after a spoiler toggle re-walks the same tree.
//
// Render never lets a tree shape take the host down: a panic during the
// walk is caught here and surfaces as an empty document plus an error, so
// the caller can fall back to the plain message body.
func Render(nodes []Node, base Style, state *SpoilerState, opts *RenderOptions) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("message render failed")
			doc = emptyDocument()
			err = fmt.Errorf("richtext: render: %v", r)
		}
	}()

	ctx := &renderContext{
		placeholders: make(map[string]Placeholder),
		state:        state,
		seen:         make(map[string]bool),
		opts:         opts,
	}
	ctx.renderNodes(nodes, base)
	state.prune(ctx.seen)
	return ctx.finish(), nil
}

// finish trims trailing whitespace left by block separators and clamps
// runs and regions to the trimmed length.
func (ctx *renderContext) finish() *Document {
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
	regions := ctx.regions[:0]
	for _, reg := range ctx.regions {
		if reg.Start >= total {
			continue
		}
		if reg.End > total {
			reg.End = total
		}
		regions = append(regions, reg)
	}
	return &Document{
		Text:         text,
		StyleRuns:    runs,
		Regions:      regions,
		Placeholders: ctx.placeholders,
	}
}

// renderContext is the explicit accumulator threaded through the walk;
// nothing mutates shared state behind the recursion's back.
type renderContext struct {
	buf  strings.Builder
	pos  int  // rune offset at the end of buf
	last byte // last byte written, 0 when empty

	runs         []StyleRun
	regions      []Region
	placeholders map[string]Placeholder

	state *SpoilerState
	seen  map[string]bool
	opts  *RenderOptions

	spoilerSeq int
	mentionSeq int
	imageSeq   int
	codeSeq    int

	masked    bool // inside a hidden spoiler
	noLinkify int  // anchor/code nesting depth, suppresses auto-linkify
}

func (ctx *renderContext) write(s string, style Style) {
	if s == "" {
		return
	}
	ctx.buf.WriteString(s)
	n := utf8.RuneCountInString(s)
	if last := len(ctx.runs) - 1; last >= 0 && ctx.runs[last].End == ctx.pos && ctx.runs[last].Style == style {
		ctx.runs[last].End += n
	} else {
		ctx.runs = append(ctx.runs, StyleRun{Start: ctx.pos, End: ctx.pos + n, Style: style})
	}
	ctx.pos += n
	ctx.last = s[len(s)-1]
}

func (ctx *renderContext) region(r Region) {
	if r.End > r.Start {
		ctx.regions = append(ctx.regions, r)
	}
}

func (ctx *renderContext) endsWithBreak() bool {
	return ctx.pos == 0 || ctx.last == '\n'
}

// ensureBreak separates blocks: consecutive block containers must never
// visually merge.
func (ctx *renderContext) ensureBreak(style Style) {
	if ctx.pos > 0 && ctx.last != '\n' {
		ctx.write("\n", style)
	}
}

func (ctx *renderContext) renderNodes(nodes []Node, style Style) {
	c := &nodeCursor{nodes: nodes}
	for !c.done() {
		if !ctx.masked {
			if sp, consumed, ok := extractSpoiler(c); ok {
				c.advance(consumed)
				ctx.renderSpoiler(sp, style)
				continue
			}
		}
		n := c.peek(0)
		c.advance(1)
		switch n := n.(type) {
		case TextNode:
			ctx.renderText(n.Content, style)
		case LineBreakNode:
			ctx.write("\n", style)
		case TagNode:
			ctx.renderTag(n, style, c)
		default:
			panic(fmt.Sprintf("richtext: unexpected node %T", n))
		}
	}
}

func (ctx *renderContext) renderText(content string, style Style) {
	if ctx.masked {
		ctx.write(maskSpoiler(content), style)
		return
	}
	collapsed := wsRun.ReplaceAllString(content, " ")
	if strings.TrimSpace(collapsed) == "" {
		// a run that collapses to nothing right after an explicit break
		// would show as a stray blank line
		if collapsed == "" || ctx.endsWithBreak() {
			return
		}
		ctx.write(" ", style)
		return
	}
	if ctx.noLinkify > 0 {
		ctx.write(collapsed, style)
		return
	}
	ctx.writeLinkified(collapsed, style)
}

// writeLinkified writes a plain text run, turning bare URLs and
// @user:server / #alias:server references into interactive regions.
func (ctx *renderContext) writeLinkified(s string, style Style) {
	links := findLinks(s)
	if len(links) == 0 {
		ctx.write(s, style)
		return
	}
	linkStyle := style
	linkStyle.Underline = true
	linkStyle.Color = linkColor

	last := 0
	for _, lm := range links {
		ctx.write(s[last:lm.start], style)
		start := ctx.pos
		ctx.write(s[lm.start:lm.end], linkStyle)
		switch {
		case lm.ref.isUser():
			ctx.region(Region{Start: start, End: ctx.pos, Kind: RegionMatrixUser, UserID: lm.ref.UserID})
		case lm.ref.isRoom():
			ctx.region(Region{Start: start, End: ctx.pos, Kind: RegionRoomLink, Room: lm.ref.Room})
		default:
			ctx.region(Region{Start: start, End: ctx.pos, Kind: RegionURL, URL: lm.url})
		}
		last = lm.end
	}
	ctx.write(s[last:], style)
}

func (ctx *renderContext) renderTag(t TagNode, style Style, siblings *nodeCursor) {
	switch t.Kind {
	case tagB, tagStrong:
		style.Bold = true
		ctx.renderNodes(t.Children, style)
	case tagI, tagEm:
		style.Italic = true
		ctx.renderNodes(t.Children, style)
	case tagU, tagIns:
		style.Underline = true
		ctx.renderNodes(t.Children, style)
	case tagS, tagDel:
		style.Strikethrough = true
		ctx.renderNodes(t.Children, style)
	case tagCode:
		style.Monospace = true
		ctx.noLinkify++
		ctx.renderNodes(t.Children, style)
		ctx.noLinkify--
	case tagSpan, tagFont:
		ctx.renderSpanLike(t, style)
	case tagA:
		ctx.renderAnchor(t, style, siblings)
	case tagImg:
		ctx.renderImage(t, style)
	case tagP, tagDiv, tagDetails:
		ctx.ensureBreak(style)
		ctx.renderNodes(t.Children, style)
		ctx.ensureBreak(style)
	case tagH1, tagH2, tagH3, tagH4, tagH5, tagH6, tagSummary:
		ctx.ensureBreak(style)
		style.Bold = true
		ctx.renderNodes(t.Children, style)
		ctx.ensureBreak(style)
	case tagBlockquote:
		ctx.renderBlockquote(t, style)
	case tagUl, tagOl:
		ctx.renderList(t, style)
	case tagLi:
		// a list item outside a list still gets its own line
		ctx.ensureBreak(style)
		ctx.renderNodes(t.Children, style)
		ctx.ensureBreak(style)
	case tagHr:
		ctx.ensureBreak(style)
		ctx.write("---", style)
		ctx.ensureBreak(style)
	case tagPre:
		ctx.renderPre(t, style)
	case tagTable:
		ctx.ensureBreak(style)
		ctx.renderTableRows(t.Children, style)
		ctx.ensureBreak(style)
	case tagThead, tagTbody, tagTr, tagTh, tagTd, tagCaption, tagSup, tagSub:
		ctx.renderNodes(t.Children, style)
	}
}

func (ctx *renderContext) renderSpanLike(t TagNode, style Style) {
	fg := t.attr("data-mx-color")
	if fg == "" {
		fg = t.attr("color")
	}
	bg := t.attr("data-mx-bg-color")
	if c, ok := parseColor(fg); ok {
		style.Color = c
	}
	if c, ok := parseColor(bg); ok {
		style.Background = c
	}
	if styleAttr := t.attr("style"); styleAttr != "" {
		sfg, sbg := parseStyleColors(styleAttr)
		if sfg != "" {
			style.Color = sfg
		}
		if sbg != "" {
			style.Background = sbg
		}
	}
	ctx.renderNodes(t.Children, style)
}

// renderSpoiler assigns the next render-scoped spoiler id and renders the
// content masked or revealed. The reason, if any, shows in italics only
// while hidden. In the hidden state every nested structure degrades to
// masked literal text: a would-be mention or URL in there is
// indistinguishable from the rest of the mask.
func (ctx *renderContext) renderSpoiler(sp spoilerSpan, style Style) {
	sid := fmt.Sprintf("spoiler_%d", ctx.spoilerSeq)
	ctx.spoilerSeq++
	ctx.seen[sid] = true
	ctx.state.ensure(sid)
	revealed := ctx.state.Revealed(sid)

	if !revealed && sp.Reason != "" {
		reasonStyle := style
		reasonStyle.Italic = true
		ctx.write(sp.Reason+" ", reasonStyle)
	}

	start := ctx.pos
	if revealed {
		ctx.renderNodes(sp.Content, style)
	} else {
		ctx.masked = true
		ctx.renderNodes(sp.Content, style)
		ctx.masked = false
	}
	ctx.region(Region{Start: start, End: ctx.pos, Kind: RegionSpoiler, SpoilerID: sid})
}

func (ctx *renderContext) renderAnchor(t TagNode, style Style, siblings *nodeCursor) {
	if ctx.masked {
		ctx.renderNodes(t.Children, style)
		return
	}
	href := strings.TrimSpace(t.attr("href"))

	if ref, ok := parseMatrixRef(href); ok {
		if ref.isUser() {
			ctx.renderMention(ref.UserID, t.Children, style, siblings)
			return
		}
		linkStyle := style
		linkStyle.Underline = true
		linkStyle.Color = linkColor
		start := ctx.pos
		ctx.noLinkify++
		ctx.renderNodes(t.Children, linkStyle)
		ctx.noLinkify--
		ctx.region(Region{Start: start, End: ctx.pos, Kind: RegionRoomLink, Room: ref.Room})
		return
	}

	st := style
	if href != "" {
		st.Underline = true
		st.Color = linkColor
	}
	start := ctx.pos
	ctx.noLinkify++
	ctx.renderNodes(t.Children, st)
	ctx.noLinkify--
	if href != "" {
		ctx.region(Region{Start: start, End: ctx.pos, Kind: RegionURL, URL: href})
	}
}

func (ctx *renderContext) renderMention(user id.UserID, children []Node, style Style, siblings *nodeCursor) {
	display := ""
	if ctx.opts != nil && ctx.opts.Resolver != nil {
		if name, ok := ctx.opts.Resolver.DisplayName(user); ok && name != "" {
			display = name
		}
	}
	if display == "" {
		display = strings.TrimSpace(wsRun.ReplaceAllString(flattenText(children), " "))
	}
	if display == "" {
		display = string(user)
	}

	pid := fmt.Sprintf("mention_%d", ctx.mentionSeq)
	ctx.mentionSeq++

	chipStyle := style
	chipStyle.Bold = true
	chipStyle.Color = linkColor

	start := ctx.pos
	ctx.write(display, chipStyle)
	ctx.placeholders[pid] = MentionChip{UserID: user, Display: display, Offset: start}
	ctx.region(Region{Start: start, End: ctx.pos, Kind: RegionMatrixUser, UserID: user})

	// a chip jammed against the following prose reads as one word
	if mentionNeedsSpace(siblings.peek(0)) {
		ctx.write(" ", style)
	}
}

func mentionNeedsSpace(next Node) bool {
	switch next := next.(type) {
	case nil:
		return false
	case LineBreakNode:
		return false
	case TextNode:
		return next.Content == "" || !isSpaceByte(next.Content[0])
	default:
		return true
	}
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func (ctx *renderContext) renderImage(t TagNode, style Style) {
	src := id.ContentURIString(t.attr("src")).ParseOrIgnore()
	if !src.IsValid() {
		if alt := t.attr("alt"); alt != "" {
			ctx.renderText(alt, style)
		}
		return
	}
	height, _ := strconv.Atoi(t.attr("height"))
	pid := fmt.Sprintf("image_%d", ctx.imageSeq)
	ctx.imageSeq++

	offset := ctx.pos
	ctx.write(objectReplacement, style)
	ctx.placeholders[pid] = InlineImage{
		Src:    src,
		Alt:    t.attr("alt"),
		Height: height,
		Hidden: ctx.masked,
		Offset: offset,
	}
}

// renderPre renders a preformatted block. A nested code container gets the
// truncation treatment: past the line threshold only a preview stays in
// the text, the complete block is stored for expansion, and a tap
// anywhere in the preview asks for the full code.
func (ctx *renderContext) renderPre(t TagNode, style Style) {
	ctx.ensureBreak(style)
	mono := style
	mono.Monospace = true

	code, isCodeBlock := soleCodeChild(t.Children)
	var raw string
	if isCodeBlock {
		raw = strings.TrimRight(flattenText(code.Children), "\n")
	} else {
		raw = strings.TrimRight(flattenText(t.Children), " \t\n")
	}

	if ctx.masked {
		ctx.write(maskSpoiler(raw), mono)
		ctx.ensureBreak(style)
		return
	}

	maxLines := ctx.opts.maxCodeLines()
	lines := strings.Split(raw, "\n")
	if isCodeBlock && len(lines) > maxLines {
		cid := fmt.Sprintf("code_%d", ctx.codeSeq)
		ctx.codeSeq++
		preview := strings.Join(lines[:maxLines], "\n") +
			fmt.Sprintf("\n… %d more lines", len(lines)-maxLines)
		start := ctx.pos
		ctx.write(preview, mono)
		ctx.placeholders[cid] = CodeBlockPreview{
			Preview:    preview,
			Full:       raw,
			TotalLines: len(lines),
		}
		ctx.region(Region{Start: start, End: ctx.pos, Kind: RegionCodeBlock, CodeID: cid})
	} else {
		ctx.write(raw, mono)
	}
	ctx.ensureBreak(style)
}

// soleCodeChild finds the code container of a <pre> whose only other
// siblings are blank text.
func soleCodeChild(nodes []Node) (TagNode, bool) {
	for _, n := range nodes {
		switch n := n.(type) {
		case TextNode:
			if strings.TrimSpace(n.Content) != "" {
				return TagNode{}, false
			}
		case TagNode:
			if n.Kind == tagCode {
				return n, true
			}
			return TagNode{}, false
		default:
			return TagNode{}, false
		}
	}
	return TagNode{}, false
}

// renderBlockquote renders a quote as a single prefixed, italicized,
// dimmed line. Quotes are summaries, not full documents: internal block
// breaks collapse to spaces and interactive structure flattens to text.
func (ctx *renderContext) renderBlockquote(t TagNode, style Style) {
	ctx.ensureBreak(style)
	text := strings.TrimSpace(wsRun.ReplaceAllString(flattenText(t.Children), " "))
	if text != "" {
		if ctx.masked {
			text = maskSpoiler(text)
		}
		qs := style
		qs.Italic = true
		qs.Color = quoteColor
		ctx.write("> "+text, qs)
	}
	ctx.ensureBreak(style)
}

func (ctx *renderContext) renderList(t TagNode, style Style) {
	ctx.ensureBreak(style)
	index := 1
	if t.Kind == tagOl {
		if start, err := strconv.Atoi(t.attr("start")); err == nil && start > 0 {
			index = start
		}
	}
	for _, child := range t.Children {
		li, ok := child.(TagNode)
		if !ok || li.Kind != tagLi {
			continue
		}
		ctx.ensureBreak(style)
		if t.Kind == tagOl {
			ctx.write(strconv.Itoa(index)+". ", style)
			index++
		} else {
			ctx.write("• ", style)
		}
		ctx.renderNodes(li.Children, style)
		ctx.ensureBreak(style)
	}
	ctx.ensureBreak(style)
}

func (ctx *renderContext) renderTableRows(nodes []Node, style Style) {
	for _, n := range nodes {
		t, ok := n.(TagNode)
		if !ok {
			continue
		}
		switch t.Kind {
		case tagThead, tagTbody:
			ctx.renderTableRows(t.Children, style)
		case tagCaption:
			ctx.ensureBreak(style)
			ctx.renderNodes(t.Children, style)
			ctx.ensureBreak(style)
		case tagTr:
			ctx.ensureBreak(style)
			for _, cell := range t.Children {
				c, ok := cell.(TagNode)
				if !ok || (c.Kind != tagTh && c.Kind != tagTd) {
					continue
				}
				cellStyle := style
				if c.Kind == tagTh {
					cellStyle.Bold = true
				}
				if !ctx.endsWithBreak() {
					ctx.write("  ", style)
				}
				ctx.renderNodes(c.Children, cellStyle)
			}
			ctx.ensureBreak(style)
		}
	}
}
