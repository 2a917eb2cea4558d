package video

// Surface is the destination the presentation stage renders into — an
// opaque sink so this package stays independent of any particular
// windowing/graphics backend.
type Surface interface {
	UpdateTexture(buf PixelBuffer) error
	Present(destWidth, destHeight int) error
	RenderLoadingAnimation() error
}

// serverWidthSlack and serverHeightSlack are the rounding tolerance allowed between
// the server's encoded dimensions and the window's actual pixel size
// before falling back to rendering the full decoded frame.
const (
	serverWidthSlack  = 8
	serverHeightSlack = 2
)

// Present runs one presentation tick at render cadence:
// update the streaming texture from the latest decoded buffer and present
// it sized to the window, unless nothing is pending, in which case an
// optional loading animation plays. While a resize is pending, nothing is
// presented and the pending frame is kept.
func (p *Pipeline) Present(surface Surface, windowWidth, windowHeight int) error {
	p.mu.Lock()
	if p.pendingResize {
		p.mu.Unlock()
		return nil
	}
	if !p.pendingRender {
		p.mu.Unlock()
		return surface.RenderLoadingAnimation()
	}
	buf := *p.pending
	p.pendingRender = false
	p.mu.Unlock()

	if err := surface.UpdateTexture(buf); err != nil {
		return err
	}

	destW, destH := windowWidth, windowHeight
	if !withinSlack(buf.Width, windowWidth, serverWidthSlack) || !withinSlack(buf.Height, windowHeight, serverHeightSlack) {
		// Server dimensions diverge from the window beyond the rounding
		// slack (mid-resize): render the full decoded frame to avoid
		// stretching/cropping artifacts.
		destW, destH = buf.Width, buf.Height
	}
	return surface.Present(destW, destH)
}

// withinSlack reports whether serverDim falls in [windowDim, windowDim+slack].
func withinSlack(serverDim, windowDim, slack int) bool {
	return serverDim >= windowDim && serverDim <= windowDim+slack
}
