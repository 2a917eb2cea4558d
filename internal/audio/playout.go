// Package audio implements the playout pipeline: a watermark
// state machine governs buffering/flushing against an opaque device queue,
// fed by completed audio frames out of internal/ring.
package audio

import (
	"fmt"

	"github.com/pion/mediadevices/pkg/codec/opus"
)

// DeviceQueue is the opaque sink the playout loop submits decoded PCM to.
// Implementations back it with the platform audio API; tests use an
// in-memory fake.
type DeviceQueue interface {
	QueueBytes() int
	Submit(pcm []byte) error
}

// Decoder turns one frame's Opus bitstream into PCM. Constructed against
// the sample rate learned from the server's first audio frame. Reset
// re-initializes the underlying codec state whenever the sample rate or
// the bitrate hint changes.
type Decoder interface {
	Decode(frame []byte) (pcm []byte, err error)
	Reset(sampleRateHz, bitrateHintBps int) error
}

// Watermarks are the buffering thresholds, sourced from
// internal/config.Audio.
type Watermarks struct {
	Lower  int
	Target int
	Upper  int
}

// Playout owns the watermark state machine described on Tick and
// drives decode + device submission one frame at a time.
type Playout struct {
	queue   DeviceQueue
	decoder Decoder
	marks   Watermarks

	codecParams opus.Params // constructed once sample rate is learned

	// bytesPerFragment converts an id gap into a pending-byte estimate
	// before the frame itself has been decoded.
	bytesPerFragment int
	maxReceivedID    int32
	lastPlayedID     int32

	buffering      bool
	flushTriggered bool

	sampleRateHz int
}

// NewPlayout constructs a playout engine. sampleRateHz may be zero until
// learned from the server's first frame; SetSampleRate re-initializes the
// decoder when it changes. bitrateBps seeds the opus param struct's
// bitrate hint, pushed into the decoder on every Reset.
func NewPlayout(queue DeviceQueue, decoder Decoder, marks Watermarks, bytesPerFragment, bitrateBps int) (*Playout, error) {
	params, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("audio: construct opus params: %w", err)
	}
	params.BitRate = bitrateBps
	return &Playout{
		queue:            queue,
		decoder:          decoder,
		marks:            marks,
		codecParams:      params,
		bytesPerFragment: bytesPerFragment,
		lastPlayedID:     -1,
	}, nil
}

// SetSampleRate re-initializes the decoder when the server-advertised rate
// changes.
func (p *Playout) SetSampleRate(hz int) error {
	if hz == p.sampleRateHz {
		return nil
	}
	p.sampleRateHz = hz
	return p.decoder.Reset(hz, p.codecParams.BitRate)
}

// SetBitrateHint updates the opus param struct's bitrate hint and, if a
// sample rate has already been learned, pushes it into the decoder
// immediately rather than waiting for the next sample-rate change.
func (p *Playout) SetBitrateHint(bitrateBps int) error {
	p.codecParams.BitRate = bitrateBps
	if p.sampleRateHz == 0 {
		return nil
	}
	return p.decoder.Reset(p.sampleRateHz, p.codecParams.BitRate)
}

// BitrateHint returns the bitrate hint the decoder was last Reset with.
func (p *Playout) BitrateHint() int { return p.codecParams.BitRate }

// NextFrame supplies the bitstream for the frame at id = lastPlayedID+1, or
// ok=false if it isn't available yet.
type NextFrame func() (data []byte, ok bool)

// Tick runs one playout cycle: sample the device queue,
// estimate pending bytes, apply the watermark state machine, and decode +
// submit the next frame if buffering policy allows and it's ready.
func (p *Playout) Tick(maxReceivedID int32, next NextFrame) error {
	p.maxReceivedID = maxReceivedID
	deviceQueueBytes := p.queue.QueueBytes()

	pending := int64(p.maxReceivedID-p.lastPlayedID)*int64(p.bytesPerFragment) + int64(deviceQueueBytes)

	if int(pending) < p.marks.Lower && !p.buffering {
		p.buffering = true
	}
	if p.buffering {
		if int(pending) < p.marks.Target {
			return nil // emit silence: nothing submitted this tick
		}
		p.buffering = false
	}

	upperThreshold := p.marks.Upper
	if p.flushTriggered {
		upperThreshold = p.marks.Target
	}
	if deviceQueueBytes > upperThreshold {
		p.lastPlayedID++ // drop the next frame
		p.flushTriggered = true
		return nil
	}
	if p.flushTriggered && deviceQueueBytes < p.marks.Target {
		p.flushTriggered = false
	}

	data, ok := next()
	if !ok {
		return nil
	}

	pcm, err := p.decoder.Decode(data)
	if err != nil {
		return fmt.Errorf("audio: decode frame %d: %w", p.lastPlayedID+1, err)
	}
	if err := p.queue.Submit(pcm); err != nil {
		return fmt.Errorf("audio: submit pcm: %w", err)
	}
	p.lastPlayedID++
	return nil
}

// LastPlayedID exposes playout progress for the ring buffer's
// PopCompleted cursor.
func (p *Playout) LastPlayedID() int32 { return p.lastPlayedID }

// Buffering and FlushTriggered expose watermark state for telemetry/tests.
func (p *Playout) Buffering() bool      { return p.buffering }
func (p *Playout) FlushTriggered() bool { return p.flushTriggered }
