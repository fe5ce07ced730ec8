package richtext

import (
	"net/url"
	"regexp"
	"strings"

	"maunium.net/go/mautrix/id"
	"mvdan.cc/xurls/v2"
)

var (
	// Funny user ids need to be linkified by the sender; no
	// auto-linkification for them.
	mentionMatcher = regexp.MustCompile(`[@#][a-zA-Z0-9._=/+-]{0,254}:[a-zA-Z0-9.-]+(?::\d{1,5})?`)
	urlMatcher     = xurls.Relaxed()
)

// matrixRef is a decoded reference to either a user or a room.
type matrixRef struct {
	UserID id.UserID
	Room   string // room alias or room id, sigil included
}

func (r matrixRef) isUser() bool { return r.UserID != "" }
func (r matrixRef) isRoom() bool { return r.Room != "" }

// parseMatrixRef decodes matrix.to links and matrix: URIs into a user or
// room reference. Any other href is not a Matrix reference.
func parseMatrixRef(href string) (matrixRef, bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return matrixRef{}, false
	}
	var uri *id.MatrixURI
	switch {
	case u.Scheme == "matrix":
		uri, err = id.ProcessMatrixURI(u)
	case (u.Scheme == "https" || u.Scheme == "http") && strings.EqualFold(u.Host, "matrix.to"):
		uri, err = id.ProcessMatrixToURL(u)
	default:
		return matrixRef{}, false
	}
	if err != nil || uri == nil {
		log.Debug().Err(err).Str("href", href).Msg("unparseable matrix reference")
		return matrixRef{}, false
	}
	switch uri.Sigil1 {
	case '@':
		return matrixRef{UserID: id.UserID("@" + uri.MXID1)}, true
	case '#', '!':
		return matrixRef{Room: string(uri.Sigil1) + uri.MXID1}, true
	default:
		return matrixRef{}, false
	}
}

// refFromSigil turns a plain-text @user:server or #alias:server match into
// a reference.
func refFromSigil(match string) matrixRef {
	if strings.HasPrefix(match, "@") {
		return matrixRef{UserID: id.UserID(match)}
	}
	return matrixRef{Room: match}
}

// linkMatch is one linkifiable span found inside a plain text run, with
// byte offsets into that run. Exactly one of Ref and URL is set.
type linkMatch struct {
	start, end int
	ref        matrixRef
	url        string
}

// findLinks merges the mention and URL match streams over one text run,
// earliest match first, dropping overlaps in favor of whichever starts
// first.
func findLinks(s string) []linkMatch {
	mentions := mentionMatcher.FindAllStringIndex(s, -1)
	urls := urlMatcher.FindAllStringIndex(s, -1)
	if len(mentions) == 0 && len(urls) == 0 {
		return nil
	}

	var out []linkMatch
	last := 0
	for {
		ms, me, hasMention := nextMatchFrom(mentions, last)
		us, ue, hasURL := nextMatchFrom(urls, last)
		switch {
		case hasMention && (!hasURL || ms <= us):
			out = append(out, linkMatch{start: ms, end: me, ref: refFromSigil(s[ms:me])})
			last = me
		case hasURL:
			match := s[us:ue]
			if ref, ok := parseMatrixRef(match); ok {
				out = append(out, linkMatch{start: us, end: ue, ref: ref})
			} else {
				out = append(out, linkMatch{start: us, end: ue, url: match})
			}
			last = ue
		default:
			return out
		}
	}
}

func nextMatchFrom(items [][]int, min int) (start, end int, ok bool) {
	for _, item := range items {
		if item[0] >= min {
			return item[0], item[1], true
		}
	}
	return -1, -1, false
}
