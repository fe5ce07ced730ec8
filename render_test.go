package richtext

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/id"
)

func mustRender(t *testing.T, html string) *Document {
	t.Helper()
	doc, err := Render(Parse(html), Style{}, NewSpoilerState(), nil)
	require.NoError(t, err)
	return doc
}

func styleAt(d *Document, offset int) Style {
	for _, run := range d.StyleRuns {
		if offset >= run.Start && offset < run.End {
			return run.Style
		}
	}
	return Style{}
}

func regionsOfKind(d *Document, kind RegionKind) []Region {
	var out []Region
	for _, r := range d.Regions {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

type staticResolver map[id.UserID]string

func (r staticResolver) DisplayName(user id.UserID) (string, bool) {
	name, ok := r[user]
	return name, ok
}

func TestRenderStyleComposition(t *testing.T) {
	doc := mustRender(t, "<b>bold<i>both</i></b>plain")
	assert.Equal(t, "boldbothplain", doc.Text)

	assert.Equal(t, Style{Bold: true}, styleAt(doc, 0))
	assert.Equal(t, Style{Bold: true, Italic: true}, styleAt(doc, 5))
	assert.Equal(t, Style{}, styleAt(doc, 9))
}

func TestRenderStrikeUnderlineMono(t *testing.T) {
	doc := mustRender(t, "<s>a</s><u>b</u><code>c</code>")
	assert.Equal(t, "abc", doc.Text)
	assert.True(t, styleAt(doc, 0).Strikethrough)
	assert.True(t, styleAt(doc, 1).Underline)
	assert.True(t, styleAt(doc, 2).Monospace)
}

func TestRenderColors(t *testing.T) {
	doc := mustRender(t, `<font color="#F00">r</font><span data-mx-color="#00ff00" data-mx-bg-color="navy">g</span>`)
	assert.Equal(t, "rg", doc.Text)
	assert.Equal(t, "#ff0000", styleAt(doc, 0).Color)
	assert.Equal(t, "#00ff00", styleAt(doc, 1).Color)
	assert.Equal(t, "#000080", styleAt(doc, 1).Background)
}

func TestRenderStyleAttributeColors(t *testing.T) {
	doc := mustRender(t, `<span style="color: red; background-color: #fff">x</span>`)
	assert.Equal(t, "#ff0000", styleAt(doc, 0).Color)
	assert.Equal(t, "#ffffff", styleAt(doc, 0).Background)
}

func TestRenderBlocksSeparated(t *testing.T) {
	doc := mustRender(t, "<p>one</p><p>two</p>")
	assert.Equal(t, "one\ntwo", doc.Text)
}

func TestRenderHeadersBold(t *testing.T) {
	doc := mustRender(t, "<h1>Title</h1>body")
	assert.Equal(t, "Title\nbody", doc.Text)
	assert.True(t, styleAt(doc, 0).Bold)
	assert.False(t, styleAt(doc, 6).Bold)
}

func TestRenderWhitespaceCollapsed(t *testing.T) {
	doc := mustRender(t, "a \n\t b")
	assert.Equal(t, "a b", doc.Text)
}

func TestRenderBlankRunAfterBreakDropped(t *testing.T) {
	doc := mustRender(t, "a<br> <br>b")
	assert.Equal(t, "a\n\nb", doc.Text)
}

func TestRenderEntitiesInText(t *testing.T) {
	doc := mustRender(t, "<b>a &amp; b</b>")
	assert.Equal(t, "a & b", doc.Text)
}

func TestRenderIdempotent(t *testing.T) {
	const html = `<p>hi <b>there</b></p><ul><li>x</li></ul>`
	st := NewSpoilerState()
	d1, err := Render(Parse(html), Style{}, st, nil)
	require.NoError(t, err)
	d2, err := Render(Parse(html), Style{}, st, nil)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestRenderUnorderedList(t *testing.T) {
	doc := mustRender(t, "<ul>ignored<li>x</li><li>y</li></ul>")
	assert.Equal(t, "• x\n• y", doc.Text)
}

func TestRenderOrderedListStart(t *testing.T) {
	doc := mustRender(t, `<ol start="3"><li>x</li><li>y</li></ol>`)
	assert.Equal(t, "3. x\n4. y", doc.Text)
}

func TestRenderBlockquoteSingleLine(t *testing.T) {
	doc := mustRender(t, "<blockquote>a<p>b</p>c</blockquote>after")
	assert.Equal(t, "> a b c\nafter", doc.Text)

	qs := styleAt(doc, 0)
	assert.True(t, qs.Italic)
	assert.Equal(t, quoteColor, qs.Color)
}

func TestRenderHorizontalRule(t *testing.T) {
	doc := mustRender(t, "x<hr>y")
	assert.Equal(t, "x\n---\ny", doc.Text)
}

func TestRenderTable(t *testing.T) {
	doc := mustRender(t, "<table><tr><th>a</th><th>b</th></tr><tr><td>1</td><td>2</td></tr></table>")
	assert.Equal(t, "a  b\n1  2", doc.Text)
	assert.True(t, styleAt(doc, 0).Bold)
	assert.False(t, styleAt(doc, 5).Bold)
}

func TestRenderGenericLink(t *testing.T) {
	doc := mustRender(t, `<a href="https://example.com/x">link</a>`)
	assert.Equal(t, "link", doc.Text)

	st := styleAt(doc, 0)
	assert.True(t, st.Underline)
	assert.Equal(t, linkColor, st.Color)

	urls := regionsOfKind(doc, RegionURL)
	require.Len(t, urls, 1)
	assert.Equal(t, Region{Start: 0, End: 4, Kind: RegionURL, URL: "https://example.com/x"}, urls[0])
}

func TestRenderAnchorWithoutHref(t *testing.T) {
	doc := mustRender(t, "<a>plain</a>")
	assert.Equal(t, "plain", doc.Text)
	assert.Empty(t, doc.Regions)
	assert.False(t, styleAt(doc, 0).Underline)
}

func TestRenderMentionChip(t *testing.T) {
	doc := mustRender(t, `<a href="https://matrix.to/#/@alice:example.org">Alice</a>next`)
	assert.Equal(t, "Alice next", doc.Text)

	users := regionsOfKind(doc, RegionMatrixUser)
	require.Len(t, users, 1)
	assert.Equal(t, id.UserID("@alice:example.org"), users[0].UserID)
	assert.Equal(t, 0, users[0].Start)
	assert.Equal(t, 5, users[0].End)

	chip, ok := doc.Placeholders["mention_0"].(MentionChip)
	require.True(t, ok)
	assert.Equal(t, "Alice", chip.Display)
	assert.Equal(t, id.UserID("@alice:example.org"), chip.UserID)

	st := styleAt(doc, 0)
	assert.True(t, st.Bold)
	assert.Equal(t, linkColor, st.Color)
}

func TestRenderMentionNoDoubleSpace(t *testing.T) {
	doc := mustRender(t, `<a href="https://matrix.to/#/@alice:example.org">Alice</a> already spaced`)
	assert.Equal(t, "Alice already spaced", doc.Text)
}

func TestRenderMentionResolverWins(t *testing.T) {
	opts := &RenderOptions{Resolver: staticResolver{"@alice:example.org": "Alice Washington"}}
	doc, err := Render(Parse(`<a href="https://matrix.to/#/@alice:example.org">Alice</a>`), Style{}, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "Alice Washington", doc.Text)
}

func TestRenderRoomLink(t *testing.T) {
	doc := mustRender(t, `<a href="https://matrix.to/#/#room:example.org">the room</a>`)
	assert.Equal(t, "the room", doc.Text)

	rooms := regionsOfKind(doc, RegionRoomLink)
	require.Len(t, rooms, 1)
	assert.Equal(t, "#room:example.org", rooms[0].Room)
}

func TestRenderMatrixURIScheme(t *testing.T) {
	doc := mustRender(t, `<a href="matrix:u/alice:example.org">Alice</a>`)
	users := regionsOfKind(doc, RegionMatrixUser)
	require.Len(t, users, 1)
	assert.Equal(t, id.UserID("@alice:example.org"), users[0].UserID)
}

func TestRenderLinkifiesPlainText(t *testing.T) {
	doc := mustRender(t, "see https://example.com and @bob:example.org now")
	assert.Equal(t, "see https://example.com and @bob:example.org now", doc.Text)

	urls := regionsOfKind(doc, RegionURL)
	require.Len(t, urls, 1)
	assert.Equal(t, "https://example.com", urls[0].URL)

	users := regionsOfKind(doc, RegionMatrixUser)
	require.Len(t, users, 1)
	assert.Equal(t, id.UserID("@bob:example.org"), users[0].UserID)
}

func TestRenderNoLinkifyInsideAnchorOrCode(t *testing.T) {
	doc := mustRender(t, `<a href="https://example.com">https://other.example</a><code>https://code.example</code>`)
	urls := regionsOfKind(doc, RegionURL)
	require.Len(t, urls, 1)
	assert.Equal(t, "https://example.com", urls[0].URL)
}

func TestRenderImagePlaceholder(t *testing.T) {
	doc := mustRender(t, `<img src="mxc://server/file" alt="a cat" height="40"/>`)
	assert.Equal(t, objectReplacement, doc.Text)

	img, ok := doc.Placeholders["image_0"].(InlineImage)
	require.True(t, ok)
	assert.Equal(t, "server", img.Src.Homeserver)
	assert.Equal(t, "file", img.Src.FileID)
	assert.Equal(t, "a cat", img.Alt)
	assert.Equal(t, 40, img.Height)
	assert.False(t, img.Hidden)
	assert.Equal(t, 0, img.Offset)
}

func TestRenderSpoilerHidden(t *testing.T) {
	doc := mustRender(t, `<span data-mx-spoiler="">see https://example.com</span>`)
	assert.Equal(t, "--------spoiler--------", doc.Text)

	// nothing inside a hidden spoiler is interactive except the spoiler
	assert.Empty(t, regionsOfKind(doc, RegionURL))
	spoilers := regionsOfKind(doc, RegionSpoiler)
	require.Len(t, spoilers, 1)
	assert.Equal(t, Region{Start: 0, End: 23, Kind: RegionSpoiler, SpoilerID: "spoiler_0"}, spoilers[0])
}

func TestRenderSpoilerRevealRestoresContent(t *testing.T) {
	const html = `<span data-mx-spoiler="">see https://example.com</span>`
	st := NewSpoilerState()
	tree := Parse(html)

	hidden, err := Render(tree, Style{}, st, nil)
	require.NoError(t, err)
	st.Toggle("spoiler_0")
	revealed, err := Render(tree, Style{}, st, nil)
	require.NoError(t, err)

	assert.Equal(t, "see https://example.com", revealed.Text)
	assert.Len(t, regionsOfKind(revealed, RegionURL), 1)
	assert.Len(t, regionsOfKind(revealed, RegionSpoiler), 1)

	// masking is length preserving, reveal must not reflow
	assert.Equal(t, len([]rune(hidden.Text)), len([]rune(revealed.Text)))
}

func TestRenderSpoilerReasonShownWhileHidden(t *testing.T) {
	doc := mustRender(t, `<span class="spoiler-reason">nsfw</span><span class="spoiler">xx</span>`)
	assert.Equal(t, "nsfw <>", doc.Text)
	assert.True(t, styleAt(doc, 0).Italic)

	spoilers := regionsOfKind(doc, RegionSpoiler)
	require.Len(t, spoilers, 1)
	// the region covers the masked content, not the reason
	assert.Equal(t, 5, spoilers[0].Start)
	assert.Equal(t, 7, spoilers[0].End)
}

func TestRenderSpoilerIDsSequential(t *testing.T) {
	doc := mustRender(t, `<span data-mx-spoiler>a</span> <span data-mx-spoiler>b</span>`)
	spoilers := regionsOfKind(doc, RegionSpoiler)
	require.Len(t, spoilers, 2)
	assert.Equal(t, "spoiler_0", spoilers[0].SpoilerID)
	assert.Equal(t, "spoiler_1", spoilers[1].SpoilerID)
}

func TestRenderSpoilerStatePruned(t *testing.T) {
	st := NewSpoilerState()
	_, err := Render(Parse(`<span data-mx-spoiler>a</span>`), Style{}, st, nil)
	require.NoError(t, err)
	st.Toggle("spoiler_0")

	// an edit removed the spoiler; the stale reveal must not survive
	_, err = Render(Parse("no spoilers here"), Style{}, st, nil)
	require.NoError(t, err)
	assert.False(t, st.Revealed("spoiler_0"))
}

func TestRenderHiddenSpoilerImage(t *testing.T) {
	doc := mustRender(t, `<span data-mx-spoiler=""><img src="mxc://server/file" alt="x"/></span>`)
	img, ok := doc.Placeholders["image_0"].(InlineImage)
	require.True(t, ok)
	assert.True(t, img.Hidden)
}

func TestRenderCodeBlockTruncation(t *testing.T) {
	lines := make([]string, 20)
	for i := range lines {
		lines[i] = fmt.Sprintf("line%d", i+1)
	}
	doc := mustRender(t, "<pre><code>"+strings.Join(lines, "\n")+"</code></pre>")

	assert.Contains(t, doc.Text, "line8")
	assert.NotContains(t, doc.Text, "line9")
	assert.Contains(t, doc.Text, "… 12 more lines")

	regions := regionsOfKind(doc, RegionCodeBlock)
	require.Len(t, regions, 1)
	assert.Equal(t, "code_0", regions[0].CodeID)

	preview, ok := doc.Placeholders["code_0"].(CodeBlockPreview)
	require.True(t, ok)
	assert.Equal(t, 20, preview.TotalLines)
	assert.Equal(t, strings.Join(lines, "\n"), preview.Full)
	assert.True(t, styleAt(doc, 0).Monospace)
}

func TestRenderShortCodeBlockUntouched(t *testing.T) {
	doc := mustRender(t, "<pre><code>one\ntwo\nthree</code></pre>")
	assert.Equal(t, "one\ntwo\nthree", doc.Text)
	assert.Empty(t, regionsOfKind(doc, RegionCodeBlock))
	assert.Empty(t, doc.Placeholders)
}

func TestRenderCodeBlockCustomThreshold(t *testing.T) {
	opts := &RenderOptions{MaxCodeLines: 2}
	doc, err := Render(Parse("<pre><code>a\nb\nc\nd</code></pre>"), Style{}, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n… 2 more lines", doc.Text)
}

func TestRenderPreWithoutCodeChild(t *testing.T) {
	doc := mustRender(t, "<pre>plain preformatted</pre>")
	assert.Equal(t, "plain preformatted", doc.Text)
	assert.True(t, styleAt(doc, 0).Monospace)
}

func TestRenderBaseStyleInherited(t *testing.T) {
	doc, err := Render(Parse("text"), Style{Italic: true}, nil, nil)
	require.NoError(t, err)
	assert.True(t, styleAt(doc, 0).Italic)
}

func TestRenderEmptyInput(t *testing.T) {
	doc, err := Render(nil, Style{}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, doc.Text)
	assert.Empty(t, doc.StyleRuns)
	assert.Empty(t, doc.Regions)
}

type bogusNode struct{}

func (bogusNode) node() {}

func TestRenderRecoversFromBadTree(t *testing.T) {
	doc, err := Render([]Node{bogusNode{}}, Style{}, nil, nil)
	require.Error(t, err)
	require.NotNil(t, doc)
	assert.Empty(t, doc.Text)
}

func TestRegionAtPrecedence(t *testing.T) {
	doc := &Document{
		Text: "abcde",
		Regions: []Region{
			{Start: 0, End: 5, Kind: RegionURL, URL: "https://example.com"},
			{Start: 0, End: 5, Kind: RegionSpoiler, SpoilerID: "spoiler_0"},
		},
	}
	region, ok := doc.RegionAt(2)
	require.True(t, ok)
	assert.Equal(t, RegionSpoiler, region.Kind)

	_, ok = doc.RegionAt(5)
	assert.False(t, ok)
}
