package richtext

import (
	"maunium.net/go/mautrix/id"
)

// Style is the set of attributes one rendered character can carry.
// Composition is by derivation: nested tags copy the inherited style and
// flip their own flags, so bold inside italic yields both.
type Style struct {
	Bold          bool
	Italic        bool
	Underline     bool
	Strikethrough bool
	Monospace     bool
	Color         string // #rrggbb, empty inherits
	Background    string // #rrggbb, empty inherits
}

// StyleRun styles the half-open rune range [Start, End) of Document.Text.
type StyleRun struct {
	Start, End int
	Style      Style
}

type RegionKind uint8

const (
	RegionSpoiler RegionKind = iota
	RegionCodeBlock
	RegionMatrixUser
	RegionRoomLink
	RegionURL
)

func (k RegionKind) String() string {
	switch k {
	case RegionSpoiler:
		return "spoiler"
	case RegionCodeBlock:
		return "codeblock"
	case RegionMatrixUser:
		return "user"
	case RegionRoomLink:
		return "room"
	case RegionURL:
		return "url"
	default:
		return "unknown"
	}
}

// Region binds the half-open rune range [Start, End) of Document.Text to a
// non-text action. Only the payload field matching Kind is set.
type Region struct {
	Start, End int
	Kind       RegionKind

	SpoilerID string    // RegionSpoiler
	CodeID    string    // RegionCodeBlock, keys a CodeBlockPreview placeholder
	UserID    id.UserID // RegionMatrixUser
	Room      string    // RegionRoomLink, alias or room id with sigil
	URL       string    // RegionURL
}

// Placeholder stands in for a non-text inline element that the host layer
// sizes and draws.
type Placeholder interface {
	placeholderMarker()
}

// InlineImage marks an object-replacement character standing in for an
// inline image. Src is always the internal media scheme; the parser never
// lets a remote source through.
type InlineImage struct {
	Src    id.ContentURI
	Alt    string
	Height int // sender height hint in pixels, 0 if absent
	Hidden bool
	Offset int
}

// MentionChip is the rendered representation of a user reference.
type MentionChip struct {
	UserID  id.UserID
	Display string
	Offset  int
}

// CodeBlockPreview holds the complete text of a truncated code block for
// later expansion.
type CodeBlockPreview struct {
	Preview    string
	Full       string
	TotalLines int
}

func (InlineImage) placeholderMarker() {}
func (MentionChip) placeholderMarker() {}
func (CodeBlockPreview) placeholderMarker() {}

// Document is the flat, displayable projection of one message: the text
// plus offset-addressed style runs, interactive regions and placeholders.
// It is transient per message and recomputed on every content or reveal
// change.
type Document struct {
	Text         string
	StyleRuns    []StyleRun
	Regions      []Region
	Placeholders map[string]Placeholder
}

func emptyDocument() *Document {
	return &Document{Placeholders: map[string]Placeholder{}}
}

// Overlapping regions at one offset can only coexist by construction
// error, but taps still need a deterministic winner.
var regionPrecedence = [...]RegionKind{
	RegionSpoiler, RegionCodeBlock, RegionMatrixUser, RegionRoomLink, RegionURL,
}

// RegionAt returns the winning interactive region containing the given
// rune offset, querying kinds in fixed precedence order.
func (d *Document) RegionAt(offset int) (Region, bool) {
	for _, kind := range regionPrecedence {
		for _, reg := range d.Regions {
			if reg.Kind == kind && offset >= reg.Start && offset < reg.End {
				return reg, true
			}
		}
	}
	return Region{}, false
}
