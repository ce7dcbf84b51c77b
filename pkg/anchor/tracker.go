package anchor

import (
	"sync"
	"time"

	"github.com/glanceassist/glance/pkg/domain"
)

// frameInterval is the coalescing window for recompute ticks: scroll bursts
// landing inside one frame collapse to a single emitted reposition.
const frameInterval = 16 * time.Millisecond

// Tracker binds the overlay to a host element and re-derives its screen
// position as the document scrolls, resizes or mutates. It only caches
// layout metrics the host already reported; recomputation is O(1) and never
// forces a synchronous layout pass.
type Tracker struct {
	mu sync.Mutex

	anchor   domain.OverlayAnchor
	bound    bool
	scroll   domain.Point
	viewport domain.Rect

	lastEmit time.Time
	now      func() time.Time
}

func NewTracker(viewport domain.Rect) *Tracker {
	return &Tracker{
		viewport: viewport,
		now:      time.Now,
	}
}

// Bind anchors the tracker to an element at its reported document-space rect.
// Any previous binding is discarded.
func (t *Tracker) Bind(elementID string, rect domain.Rect, scrollOffset domain.Point) domain.OverlayAnchor {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.anchor = domain.OverlayAnchor{
		ElementID:          elementID,
		BoundingRect:       rect,
		ScrollOffsetAtBind: scrollOffset,
	}
	t.scroll = scrollOffset
	t.bound = true
	t.lastEmit = time.Time{}

	return t.anchor
}

// Release drops the current binding.
func (t *Tracker) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bound = false
	t.anchor = domain.OverlayAnchor{}
}

// ApplyScroll records the current scroll offset. Idempotent; safe to apply
// the same tick twice.
func (t *Tracker) ApplyScroll(offset domain.Point) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scroll = offset
}

// ApplyResize records the current viewport geometry.
func (t *Tracker) ApplyResize(viewport domain.Rect) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.viewport = viewport
}

// ApplyMutation ingests a mutation observer tick for the bound element. A
// removal transitions the anchor to Lost; a moved element refreshes the
// cached rect. Mutations of unrelated elements are ignored.
func (t *Tracker) ApplyMutation(mutation *domain.MutationEvent) {
	if mutation == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.bound || mutation.ElementID != t.anchor.ElementID {
		return
	}
	if mutation.Removed {
		t.anchor.Lost = true
		return
	}
	if mutation.BoundingRect != nil {
		t.anchor.BoundingRect = *mutation.BoundingRect
	}
}

// Position recomputes the anchor's current viewport position from cached
// metrics. The second return reports anchor loss; loss is a state, never an
// error.
func (t *Tracker) Position() (domain.Point, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.bound || t.anchor.Lost {
		return t.fallbackLocked(), true
	}

	return domain.Point{
		X: t.anchor.BoundingRect.X - t.scroll.X,
		Y: t.anchor.BoundingRect.Y - t.scroll.Y,
	}, false
}

// Fallback is the deterministic center-screen position used when the anchor
// is lost.
func (t *Tracker) Fallback() domain.Point {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fallbackLocked()
}

func (t *Tracker) fallbackLocked() domain.Point {
	return t.viewport.Center()
}

// ShouldEmit coalesces reposition ticks: it reports true at most once per
// frame interval. Ticks themselves are always applied; only the emitted
// reposition updates collapse.
func (t *Tracker) ShouldEmit() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if now.Sub(t.lastEmit) < frameInterval {
		return false
	}
	t.lastEmit = now
	return true
}
