package video

import "time"

// Resize handles a window-resize event from the UI side:
// acquire the render mutex, suspend new-texture presentation, record
// rounded dimensions, and coalesce the outbound DimensionsMessage to at
// most one per WindowResizeMessageInterval.
func (p *Pipeline) Resize(rawWidth, rawHeight int, now time.Time) (*Dimensions, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pendingResize = true

	width := roundDownToMultiple(rawWidth, 8)
	height := roundDownToMultiple(rawHeight, 2)
	dims := Dimensions{Width: width, Height: height}

	if p.lastDimensionsSentAt.IsZero() || now.Sub(p.lastDimensionsSentAt) >= WindowResizeMessageInterval {
		p.lastDimensionsSentAt = now
		p.pendingDimensions = nil
		p.pendingResize = false
		return &dims, true
	}

	// Throttled: coalesce into the single pending dimensions value, to be
	// flushed the next time the interval allows.
	p.pendingDimensions = &dims
	return nil, false
}

// FlushPendingResize returns a coalesced resize that was throttled
// earlier, if the interval has now elapsed.
func (p *Pipeline) FlushPendingResize(now time.Time) (*Dimensions, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pendingDimensions == nil {
		return nil, false
	}
	if now.Sub(p.lastDimensionsSentAt) < WindowResizeMessageInterval {
		return nil, false
	}
	dims := p.pendingDimensions
	p.pendingDimensions = nil
	p.pendingResize = false
	p.lastDimensionsSentAt = now
	return dims, true
}

func roundDownToMultiple(v, multiple int) int {
	if multiple <= 0 {
		return v
	}
	return (v / multiple) * multiple
}
