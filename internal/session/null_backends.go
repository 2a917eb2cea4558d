package session

import (
	"github.com/driftcast/beamcore/internal/audio"
	"github.com/driftcast/beamcore/internal/video"
)

// The OS-level audio output device, the hardware video decoder, and the
// window surface are all outside the core's scope: this module
// owns reassembly, pacing and the wire protocol, not platform playback.
// These null backends satisfy the pipeline interfaces so a session can be
// constructed and driven end to end in tests and in headless relay mode;
// a desktop build substitutes real platform-backed implementations here.

type nullVideoDecoder struct{}

func (nullVideoDecoder) Decode(bitstream []byte) (video.PixelBuffer, error) {
	return video.PixelBuffer{Planes: [][]byte{bitstream}}, nil
}

func (nullVideoDecoder) Close() error { return nil }

func newNullDecoderFactory() video.DecoderFactory {
	return func(width, height int, codec string, bitrateBps int) (video.Decoder, error) {
		return nullVideoDecoder{}, nil
	}
}

type nullKeyframeRequester struct{}

func (nullKeyframeRequester) RequestKeyframe() {}

func newNullKeyframeRequester() video.KeyframeRequester {
	return nullKeyframeRequester{}
}

type nullDeviceQueue struct{ queued int }

func (q *nullDeviceQueue) QueueBytes() int { return q.queued }

func (q *nullDeviceQueue) Submit(pcm []byte) error {
	q.queued += len(pcm)
	return nil
}

func newNullDeviceQueue() audio.DeviceQueue { return &nullDeviceQueue{} }

type nullAudioDecoder struct{}

func (nullAudioDecoder) Decode(frame []byte) ([]byte, error) { return frame, nil }

func (nullAudioDecoder) Reset(sampleRateHz, bitrateHintBps int) error { return nil }

func newNullAudioDecoder() audio.Decoder { return nullAudioDecoder{} }
