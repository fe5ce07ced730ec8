package richtext

// tagKind is the closed set of tags the parser is allowed to emit. Unknown
// names never become a TagNode: they are unwrapped (or, for the reply
// fallback wrapper, deleted) during parsing, so every switch over tagKind
// downstream can be exhaustive.
type tagKind uint8

const (
	tagA tagKind = iota
	tagB
	tagStrong
	tagI
	tagEm
	tagU
	tagIns
	tagS
	tagDel
	tagCode
	tagPre
	tagSpan
	tagFont
	tagImg
	tagBr
	tagHr
	tagP
	tagDiv
	tagH1
	tagH2
	tagH3
	tagH4
	tagH5
	tagH6
	tagBlockquote
	tagUl
	tagOl
	tagLi
	tagSup
	tagSub
	tagTable
	tagThead
	tagTbody
	tagTr
	tagTh
	tagTd
	tagCaption
	tagDetails
	tagSummary
)

// allowedTags mirrors the "safe HTML" subset of the Matrix client-server
// spec, the only wire format this package has to match exactly.
var allowedTags = map[string]tagKind{
	"a":          tagA,
	"b":          tagB,
	"strong":     tagStrong,
	"i":          tagI,
	"em":         tagEm,
	"u":          tagU,
	"ins":        tagIns,
	"s":          tagS,
	"del":        tagDel,
	"code":       tagCode,
	"pre":        tagPre,
	"span":       tagSpan,
	"font":       tagFont,
	"img":        tagImg,
	"br":         tagBr,
	"hr":         tagHr,
	"p":          tagP,
	"div":        tagDiv,
	"h1":         tagH1,
	"h2":         tagH2,
	"h3":         tagH3,
	"h4":         tagH4,
	"h5":         tagH5,
	"h6":         tagH6,
	"blockquote": tagBlockquote,
	"ul":         tagUl,
	"ol":         tagOl,
	"li":         tagLi,
	"sup":        tagSup,
	"sub":        tagSub,
	"table":      tagTable,
	"thead":      tagThead,
	"tbody":      tagTbody,
	"tr":         tagTr,
	"th":         tagTh,
	"td":         tagTd,
	"caption":    tagCaption,
	"details":    tagDetails,
	"summary":    tagSummary,
}

// replyFallbackTag wraps the redundant quoted-reply a client prepends to
// rich replies. It is rendered from the relation elsewhere, so unlike every
// other disallowed tag its whole subtree is deleted instead of unwrapped.
const replyFallbackTag = "mx-reply"

// voidTags never have content and never get a closing-tag search.
func isVoidTag(name string) bool {
	switch name {
	case "br", "hr", "img":
		return true
	default:
		return false
	}
}

// isBlock reports whether the tag forces leading and trailing line
// separators so consecutive blocks never visually merge.
func (k tagKind) isBlock() bool {
	switch k {
	case tagP, tagDiv, tagH1, tagH2, tagH3, tagH4, tagH5, tagH6,
		tagBlockquote, tagUl, tagOl, tagHr, tagPre, tagTable:
		return true
	default:
		return false
	}
}
