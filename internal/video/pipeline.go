// Package video implements the render pipeline: decode intake,
// presentation, cursor updates, and resize handling share state behind one
// render mutex.
package video

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/mediadevices/pkg/codec/vpx"
)

// PixelFormat names the decoded pixel buffer layouts the presentation
// stage must support.
type PixelFormat int

const (
	FormatNV12 PixelFormat = iota
	FormatYUV420P
)

// PixelBuffer is one decoded frame's image data.
type PixelBuffer struct {
	Width, Height int
	Format        PixelFormat
	Planes        [][]byte
}

// Decoder turns a completed video frame's bitstream into pixels. Torn down
// and reconstructed whenever the stream announces new dimensions/codec on
// a key frame.
type Decoder interface {
	Decode(bitstream []byte) (PixelBuffer, error)
	Close() error
}

// DecoderFactory constructs a fresh Decoder for the given stream
// parameters, learned from an announcing key frame. bitrateBps is the
// controller's current target, passed through so a real decoder can size
// its internal buffers/jitter handling to the stream it is about to
// receive.
type DecoderFactory func(width, height int, codec string, bitrateBps int) (Decoder, error)

// CompletedFrame is one frame handed up from internal/ring, annotated
// with the metadata the decode-intake stage needs.
type CompletedFrame struct {
	FrameID       int32
	Bitstream     []byte
	IsKeyFrame    bool
	Width, Height int
	Codec         string
	Cursor        *CursorDescriptor
}

// CursorDescriptor updates the OS cursor.
type CursorDescriptor struct {
	SystemCursorID int
	Bitmap         []byte // non-nil for a custom bitmap cursor
	Hidden         bool
	Relative       bool
}

// KeyframeRequester lets the pipeline ask the ring/message layer for a new
// key frame when decode or decoder construction fails.
type KeyframeRequester interface {
	RequestKeyframe()
}

// Pipeline holds three loosely coupled roles behind one mutex: decode
// intake, presentation, and control (cursor/resize/codec changes).
type Pipeline struct {
	mu sync.Mutex

	makeDecoder DecoderFactory
	decoder     Decoder
	keyframer   KeyframeRequester

	width, height int
	codec         string

	pending        *PixelBuffer
	pendingRender  bool
	pendingResize  bool
	lastCursor     *CursorDescriptor

	vpxParams vpx.VP8Params

	lastDimensionsSentAt time.Time
	pendingDimensions    *Dimensions
}

// Dimensions is what Resize sends the server, throttled to one per
// WindowResizeMessageInterval.
type Dimensions struct {
	Width, Height int
}

// WindowResizeMessageInterval throttles outbound DimensionsMessages so a
// drag-resize doesn't flood the server with one message per pixel.
const WindowResizeMessageInterval = 200 * time.Millisecond

// NewPipeline constructs a render pipeline. bitrateBps seeds the bitrate
// hint in the vpx codec param struct handed to the DecoderFactory.
func NewPipeline(makeDecoder DecoderFactory, keyframer KeyframeRequester, bitrateBps int) (*Pipeline, error) {
	params, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("video: construct vpx params: %w", err)
	}
	params.BitRate = bitrateBps

	return &Pipeline{
		makeDecoder: makeDecoder,
		keyframer:   keyframer,
		vpxParams:   params,
	}, nil
}

// FeedFrame implements decode intake: tear down/reconstruct the decoder on
// a key frame announcing new dimensions or codec, feed the bitstream, and
// mark pending_render on success.
func (p *Pipeline) FeedFrame(f CompletedFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	dimensionsChanged := f.Width != p.width || f.Height != p.height || f.Codec != p.codec
	if dimensionsChanged {
		if !f.IsKeyFrame {
			// Not a key frame: wait for one rather than decoding against a
			// stale decoder.
			p.keyframer.RequestKeyframe()
			return nil
		}
		if p.decoder != nil {
			_ = p.decoder.Close()
		}
		dec, err := p.makeDecoder(f.Width, f.Height, f.Codec, p.vpxParams.BitRate)
		if err != nil {
			p.keyframer.RequestKeyframe()
			return fmt.Errorf("video: construct decoder: %w", err)
		}
		p.decoder = dec
		p.width, p.height, p.codec = f.Width, f.Height, f.Codec
	}

	pixels, err := p.decoder.Decode(f.Bitstream)
	if err != nil {
		// Decode failure: drop this frame's buffer and let the controller
		// request a key frame; do not tear down the decoder here.
		return fmt.Errorf("video: decode frame %d: %w", f.FrameID, err)
	}

	p.pending = &pixels
	p.pendingRender = true
	if f.Cursor != nil {
		p.applyCursorLocked(*f.Cursor)
	}
	return nil
}

func (p *Pipeline) applyCursorLocked(desc CursorDescriptor) {
	p.lastCursor = &desc
}

// LastCursor returns the most recently applied cursor descriptor, if any.
func (p *Pipeline) LastCursor() *CursorDescriptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastCursor
}

// PendingRender reports whether a decoded frame is waiting to be
// presented.
func (p *Pipeline) PendingRender() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pendingRender
}

// Dims returns the decoder's current stream dimensions.
func (p *Pipeline) Dims() Dimensions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Dimensions{Width: p.width, Height: p.height}
}

// SetBitrateHint updates the vpx param struct's bitrate hint, read the
// next time a key frame forces the decoder to be reconstructed.
func (p *Pipeline) SetBitrateHint(bitrateBps int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vpxParams.BitRate = bitrateBps
}

// BitrateHint returns the bitrate hint the next reconstructed decoder will
// be built with.
func (p *Pipeline) BitrateHint() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vpxParams.BitRate
}
