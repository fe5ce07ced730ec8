package richtext

import (
	"math"
	"time"

	"maunium.net/go/mautrix/id"
)

const (
	defaultTouchSlop  = 8.0 // pixels, per axis
	defaultTapTimeout = 300 * time.Millisecond
)

// GestureConfig carries the injected classification thresholds so the
// resolver can be driven by synthetic event sequences in tests.
type GestureConfig struct {
	// TouchSlop is how far the pointer may travel on either axis before
	// the gesture stops being a tap. Zero means the default of 8.
	TouchSlop float64
	// TapTimeout is the longest press that still counts as a tap; longer
	// holds belong to the surrounding long-press handling. Zero means the
	// default of 300ms.
	TapTimeout time.Duration
}

func (c GestureConfig) touchSlop() float64 {
	if c.TouchSlop <= 0 {
		return defaultTouchSlop
	}
	return c.TouchSlop
}

func (c GestureConfig) tapTimeout() time.Duration {
	if c.TapTimeout <= 0 {
		return defaultTapTimeout
	}
	return c.TapTimeout
}

type Point struct {
	X, Y float64
}

// Layout is the host text-layout collaborator: it maps a screen position
// back to a rune offset in the rendered text. This package never lays out
// text itself.
type Layout interface {
	OffsetForPosition(p Point) int
}

// LayoutFunc adapts a plain function to Layout.
type LayoutFunc func(p Point) int

func (f LayoutFunc) OffsetForPosition(p Point) int { return f(p) }

// TapHandlers are the host callbacks a resolved tap dispatches to. The
// resolver only invokes them, it never awaits them; a handler is free to
// go async on its own. Nil handlers are skipped.
type TapHandlers struct {
	// SpoilerToggled fires after a spoiler tap flipped the reveal state,
	// so the host can schedule a re-render.
	SpoilerToggled func(spoilerID string, revealed bool)
	// ShowCode receives the complete text and true line count of a
	// truncated code block.
	ShowCode func(full string, totalLines int)
	OpenProfile func(user id.UserID)
	OpenRoom    func(room string)
	// OpenURL receives urls that match none of the internal schemes and
	// should open externally.
	OpenURL func(url string)
}

// TapOutcome reports whether the gesture was consumed and, for consumed
// taps, the region that won.
type TapOutcome struct {
	Consumed bool
	Region   *Region
}

type gesturePhase uint8

const (
	gestureIdle gesturePhase = iota
	gestureDown
	gestureMoving
	gestureHeld
	gestureResolved
)

// TapResolver classifies a live pointer stream (down, move*, up) into tap
// or non-tap and, for taps, maps the release position to the winning
// interactive region. Non-taps are released unconsumed so the enclosing
// component's own drag and long-press handling sees them.
type TapResolver struct {
	cfg      GestureConfig
	state    *SpoilerState
	handlers TapHandlers

	phase    gesturePhase
	downAt   Point
	downTime time.Time

	now func() time.Time // injectable clock
}

func NewTapResolver(cfg GestureConfig, state *SpoilerState, handlers TapHandlers) *TapResolver {
	return &TapResolver{
		cfg:      cfg,
		state:    state,
		handlers: handlers,
		now:      time.Now,
	}
}

// PointerDown starts a new gesture, discarding any unresolved one.
func (r *TapResolver) PointerDown(p Point) {
	r.phase = gestureDown
	r.downAt = p
	r.downTime = r.now()
}

// PointerMove feeds one movement sample. Once displacement exceeds the
// slop on either axis the gesture is marked as moving and stays that way;
// the resolver takes no further action until release.
func (r *TapResolver) PointerMove(p Point) {
	switch r.phase {
	case gestureDown, gestureHeld:
		if math.Abs(p.X-r.downAt.X) > r.cfg.touchSlop() ||
			math.Abs(p.Y-r.downAt.Y) > r.cfg.touchSlop() {
			r.phase = gestureMoving
		} else if r.now().Sub(r.downTime) >= r.cfg.tapTimeout() {
			r.phase = gestureHeld
		}
	}
}

// PointerUp ends the gesture. A press that neither moved past the slop
// nor outlived the tap timeout is a tap; everything else passes through
// unconsumed to the surrounding UI.
func (r *TapResolver) PointerUp(p Point, doc *Document, layout Layout) TapOutcome {
	phase := r.phase
	elapsed := r.now().Sub(r.downTime)
	r.phase = gestureResolved
	defer func() { r.phase = gestureIdle }()

	if phase != gestureDown || elapsed >= r.cfg.tapTimeout() {
		return TapOutcome{}
	}
	if doc == nil || layout == nil {
		return TapOutcome{}
	}

	offset := layout.OffsetForPosition(p)
	region, ok := doc.RegionAt(offset)
	if !ok {
		// let ancestor handlers (message menu etc) have the gesture
		return TapOutcome{}
	}
	r.dispatch(region, doc)
	return TapOutcome{Consumed: true, Region: &region}
}

func (r *TapResolver) dispatch(region Region, doc *Document) {
	switch region.Kind {
	case RegionSpoiler:
		revealed := r.state.Toggle(region.SpoilerID)
		if r.handlers.SpoilerToggled != nil {
			r.handlers.SpoilerToggled(region.SpoilerID, revealed)
		}
	case RegionCodeBlock:
		if r.handlers.ShowCode == nil {
			return
		}
		if preview, ok := doc.Placeholders[region.CodeID].(CodeBlockPreview); ok {
			r.handlers.ShowCode(preview.Full, preview.TotalLines)
		}
	case RegionMatrixUser:
		if r.handlers.OpenProfile != nil {
			r.handlers.OpenProfile(region.UserID)
		}
	case RegionRoomLink:
		if r.handlers.OpenRoom != nil {
			r.handlers.OpenRoom(region.Room)
		}
	case RegionURL:
		// a generic url can still be an internal reference in disguise
		if ref, ok := parseMatrixRef(region.URL); ok {
			switch {
			case ref.isUser() && r.handlers.OpenProfile != nil:
				r.handlers.OpenProfile(ref.UserID)
			case ref.isRoom() && r.handlers.OpenRoom != nil:
				r.handlers.OpenRoom(ref.Room)
			}
			return
		}
		if r.handlers.OpenURL != nil {
			r.handlers.OpenURL(region.URL)
		}
	}
}
