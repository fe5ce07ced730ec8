package richtext

import (
	"fmt"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// RenderCache memoizes parse and render results by input identity.
// Parsing and rendering are pure functions, so the tree of an unchanged
// message body never needs recomputing; rendered documents additionally
// key on the base style and the current reveal fingerprint, which is what
// makes a spoiler toggle bust exactly the affected entry.
type RenderCache struct {
	trees *gocache.Cache
	docs  *gocache.Cache
}

// NewRenderCache builds a cache whose entries expire ttl after insertion;
// ttl <= 0 keeps entries until eviction by the host dropping the cache.
func NewRenderCache(ttl time.Duration) *RenderCache {
	cleanup := 2 * ttl
	if ttl <= 0 {
		ttl = gocache.NoExpiration
		cleanup = 0
	}
	return &RenderCache{
		trees: gocache.New(ttl, cleanup),
		docs:  gocache.New(ttl, cleanup),
	}
}

// Parse returns the memoized document tree for a message body. Trees are
// immutable, sharing one across renders is safe.
func (rc *RenderCache) Parse(html string) []Node {
	if cached, ok := rc.trees.Get(html); ok {
		return cached.([]Node)
	}
	nodes := Parse(html)
	rc.trees.SetDefault(html, nodes)
	return nodes
}

// Render returns the memoized rendered document for a message body, base
// style and reveal state, computing and storing it on miss. Failed
// renders are never cached.
func (rc *RenderCache) Render(html string, base Style, state *SpoilerState, opts *RenderOptions) (*Document, error) {
	key := renderKey(html, base, state)
	if cached, ok := rc.docs.Get(key); ok {
		return cached.(*Document), nil
	}
	doc, err := Render(rc.Parse(html), base, state, opts)
	if err != nil {
		return doc, err
	}
	rc.docs.SetDefault(key, doc)
	return doc, nil
}

func renderKey(html string, base Style, state *SpoilerState) string {
	var b strings.Builder
	b.Grow(len(html) + 64)
	b.WriteString(html)
	fmt.Fprintf(&b, "|%+v|", base)
	if state != nil {
		revealed := make([]string, 0, len(state.revealed))
		for id, rev := range state.revealed {
			if rev {
				revealed = append(revealed, id)
			}
		}
		sort.Strings(revealed)
		b.WriteString(strings.Join(revealed, ","))
	}
	return b.String()
}
