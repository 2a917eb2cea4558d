// Package session wires the transport, crypto, ring, congestion, audio,
// video, message, and telemetry packages into one running streaming
// session: a thin Options struct plus a Run entry point that the CLI
// binary calls after parsing flags and loading configuration.
package session

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/driftcast/beamcore/internal/audio"
	"github.com/driftcast/beamcore/internal/config"
	"github.com/driftcast/beamcore/internal/congestion"
	"github.com/driftcast/beamcore/internal/cryptoframe"
	"github.com/driftcast/beamcore/internal/fragment"
	"github.com/driftcast/beamcore/internal/message"
	"github.com/driftcast/beamcore/internal/ring"
	"github.com/driftcast/beamcore/internal/syncloop"
	"github.com/driftcast/beamcore/internal/telemetry"
	"github.com/driftcast/beamcore/internal/telemetry/store"
	"github.com/driftcast/beamcore/internal/transport"
	"github.com/driftcast/beamcore/internal/transport/unreliable"
	"github.com/driftcast/beamcore/internal/video"
)

// Options configures one client session, mirroring the beamclient CLI
// surface.
type Options struct {
	ServerIP   string
	User       string
	WindowName string
	NewTabURLs []string
	PrivateKey [cryptoframe.KeySize]byte
	Cfg        config.Config
	DataDir    string
}

// messageRingCapacity bounds how many in-flight server-originated
// message-kind frames (audio frequency announcements, pongs, and the
// like) the session reassembles at once; these arrive far less often
// than media frames.
const messageRingCapacity = 64

// KeyFromHex decodes a hex-encoded pre-shared key, requiring exactly
// KeySize bytes. The caller (cmd/beamclient) exits with WHIST_EXIT_CLI
// when this fails.
func KeyFromHex(s string) ([cryptoframe.KeySize]byte, error) {
	var key [cryptoframe.KeySize]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("session: decode private key: %w", err)
	}
	if len(b) != cryptoframe.KeySize {
		return key, fmt.Errorf("session: private key must decode to %d bytes, got %d", cryptoframe.KeySize, len(b))
	}
	copy(key[:], b)
	return key, nil
}

// Session holds every live collaborator for the duration of one streaming
// connection.
type Session struct {
	opt Options
	id  string

	unreliableConn *net.UDPConn
	sock           *unreliable.Socket

	videoRing  *ring.Buffer
	audioRing  *ring.Buffer
	gpuRing    *ring.Buffer
	msgRing    *ring.Buffer
	policy     ring.Policy
	congestCtl *congestion.Controller

	videoPipeline *video.Pipeline
	audioPlayout  *audio.Playout

	router   *message.Router
	ledger   *telemetry.Ledger
	db       *store.DB
	unrelLoop *syncloop.UnreliableLoop
}

// New constructs a session's collaborators without opening any sockets.
// Dial/handshake happen in Connect so that construction failures (config
// validation, decoder setup) are distinguishable from network failures.
func New(opt Options) (*Session, error) {
	if err := opt.Cfg.Validate(); err != nil {
		return nil, fmt.Errorf("session: invalid config: %w", err)
	}

	sessionID := uuid.New().String()

	var db *store.DB
	if opt.DataDir != "" {
		var err error
		db, err = store.Open(opt.DataDir)
		if err != nil {
			return nil, fmt.Errorf("session: open telemetry store: %w", err)
		}
	}
	ledger := telemetry.New(sessionID, db)

	videoRing := ring.NewBuffer(opt.Cfg.Ring.VideoCapacity, fragment.KindVideo, fragment.MaxPayload)
	audioRing := ring.NewBuffer(opt.Cfg.Ring.AudioCapacity, fragment.KindAudio, fragment.MaxPayload)
	gpuRing := ring.NewBuffer(opt.Cfg.Ring.VideoCapacity, fragment.KindGPU, fragment.MaxPayload)
	msgRing := ring.NewBuffer(messageRingCapacity, fragment.KindMessage, fragment.MaxPayload)

	policy := ring.Policy{
		RTTEstimate:             20 * time.Millisecond,
		Latency:                 30 * time.Millisecond,
		MaxNackedPerTick:        opt.Cfg.Ring.MaxNACKedPerTick,
		MaxUnsyncedFrames:       int32(opt.Cfg.Ring.MaxUnsyncedFrames),
		MaxUnsyncedFramesRender: int32(opt.Cfg.Ring.MaxUnsyncedFramesRender),
		MaxMissingPackets:       opt.Cfg.Ring.MaxMissingPackets,
		KeyframeRequestInterval: 1500 * time.Millisecond,
		StreamResetThreshold:    4 * 30 * time.Millisecond,
	}

	congestCtl := congestion.New(
		int64(opt.Cfg.Congestion.InitialTargetBitrateBps),
		int64(opt.Cfg.Congestion.MaxTargetBitrateBps),
		0.1,
		time.Now(),
	)

	videoPipeline, err := video.NewPipeline(newNullDecoderFactory(), newNullKeyframeRequester(), opt.Cfg.Congestion.InitialTargetBitrateBps)
	if err != nil {
		return nil, fmt.Errorf("session: construct video pipeline: %w", err)
	}

	audioPlayout, err := audio.NewPlayout(
		newNullDeviceQueue(),
		newNullAudioDecoder(),
		audio.Watermarks{
			Lower:  opt.Cfg.Audio.LowerWatermark,
			Target: opt.Cfg.Audio.TargetWatermark,
			Upper:  opt.Cfg.Audio.UpperWatermark,
		},
		fragment.MaxPayload,
		opt.Cfg.Audio.BitrateBps,
	)
	if err != nil {
		return nil, fmt.Errorf("session: construct audio playout: %w", err)
	}

	router := message.NewRouter(&message.Counter{})

	return &Session{
		opt:           opt,
		id:            sessionID,
		videoRing:     videoRing,
		audioRing:     audioRing,
		gpuRing:       gpuRing,
		msgRing:       msgRing,
		policy:        policy,
		congestCtl:    congestCtl,
		videoPipeline: videoPipeline,
		audioPlayout:  audioPlayout,
		router:        router,
		ledger:        ledger,
		db:            db,
	}, nil
}

// Connect establishes the unreliable transport and runs the mutual
// proof-of-key-possession handshake over it.
func (s *Session) Connect(ctx context.Context) error {
	udpAddr := fmt.Sprintf("%s:%d", s.opt.ServerIP, s.opt.Cfg.Transport.UDPBasePort)

	conn, err := transport.EstablishUnreliable(func() (*net.UDPConn, error) {
		remote, err := net.ResolveUDPAddr("udp", udpAddr)
		if err != nil {
			return nil, err
		}
		return net.DialUDP("udp", nil, remote)
	})
	if err != nil {
		return fmt.Errorf("session: establish unreliable socket: %w", err)
	}
	s.unreliableConn = conn

	if err := cryptoframe.Handshake(conn, s.opt.PrivateKey, transport.HandshakeTimeout); err != nil {
		conn.Close()
		return fmt.Errorf("session: handshake: %w", err)
	}

	sock, err := unreliable.Dial(conn.LocalAddr().String(), conn.RemoteAddr().String())
	if err != nil {
		conn.Close()
		return fmt.Errorf("session: wrap unreliable socket: %w", err)
	}
	s.sock = sock

	if s.db != nil {
		_ = s.db.RecordSession(s.id, s.opt.ServerIP)
	}

	log.Printf("SESSION [%s]: connected to %s", s.id, udpAddr)
	return nil
}

// Close tears down every open collaborator.
func (s *Session) Close() error {
	var err error
	if s.sock != nil {
		err = s.sock.Shutdown()
	}
	if s.db != nil {
		s.db.Close()
	}
	return err
}

// ID returns the session's UUID, used to correlate telemetry rows.
func (s *Session) ID() string { return s.id }

// Run drives the hot unreliable sync loop until ctx is
// cancelled: drain the socket, feed completed frames to decode intake,
// and tick the ring/congestion policy at the loop's own policy-tick
// interval. The reliable control-plane loop is the
// caller's responsibility once clipboard/file support is wired in; it is
// not exercised by this core transport path.
func (s *Session) Run(ctx context.Context) error {
	s.unrelLoop = &syncloop.UnreliableLoop{
		Socket: socketAdapter{s.sock},
		WantsFrame: func(kind fragment.Kind, numPending int) bool {
			return numPending > 0
		},
		NumPending: func(kind fragment.Kind) int {
			return 1 // ring buffers have no direct pending-count accessor; pop is the truth.
		},
		PopFrame: func(kind fragment.Kind) (int32, []byte, bool) {
			return s.ringFor(kind).PopCompleted()
		},
		Deliver:      s.deliverFrame,
		OnDatagram:   s.onDatagram,
		DrainControl: s.drainControl,
		PolicyTick:   s.policyTick,
	}

	stop := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(stop)
	}()
	s.unrelLoop.Run(stop)
	return ctx.Err()
}

func (s *Session) ringFor(kind fragment.Kind) *ring.Buffer {
	switch kind {
	case fragment.KindAudio:
		return s.audioRing
	case fragment.KindGPU:
		return s.gpuRing
	case fragment.KindMessage:
		return s.msgRing
	default:
		return s.videoRing
	}
}

func (s *Session) deliverFrame(kind fragment.Kind, frameID int32, payload []byte) {
	switch kind {
	case fragment.KindVideo:
		dims := s.videoPipeline.Dims()
		if err := s.videoPipeline.FeedFrame(video.CompletedFrame{
			FrameID:    frameID,
			Bitstream:  payload,
			IsKeyFrame: frameID == 0,
			Width:      dims.Width,
			Height:     dims.Height,
			Codec:      "vp8",
		}); err != nil {
			s.ledger.RecordDecodeError(frameID, err)
		}
	case fragment.KindAudio:
		if err := s.audioPlayout.Tick(frameID, func() ([]byte, bool) { return payload, true }); err != nil {
			s.ledger.RecordDecodeError(frameID, err)
		}
	case fragment.KindGPU:
		s.ledger.RecordFrameDropped(frameID, "gpu delivery not yet wired")
	}
}

// onDatagram is the receive path for every inbound unreliable datagram:
// verify-then-decrypt the crypto envelope, parse the resulting plaintext
// as a fragment, and hand it to the ring matching its kind. Auth
// failures and malformed packets are recorded and dropped rather than
// propagated, matching the "drop and continue" contract cryptoframe
// documents.
func (s *Session) onDatagram(b []byte) {
	dg, err := cryptoframe.Unmarshal(b)
	if err != nil {
		s.ledger.RecordMalformedPacket(err.Error())
		return
	}

	plain, err := cryptoframe.Decrypt(dg, s.opt.PrivateKey)
	if err != nil {
		if _, ok := err.(*cryptoframe.AuthFailed); ok {
			s.ledger.RecordAuthFailed(err.Error())
		} else {
			s.ledger.RecordMalformedPacket(err.Error())
		}
		return
	}

	f, err := fragment.Unmarshal(plain)
	if err != nil {
		s.ledger.RecordMalformedPacket(err.Error())
		return
	}

	result, err := s.ringFor(f.Kind).AcceptFragment(f, time.Now())
	if err != nil {
		s.ledger.RecordMalformedPacket(err.Error())
		return
	}
	if result == ring.AcceptStale || result == ring.AcceptDuplicate {
		s.ledger.RecordStaleDuplicate()
	}
}

// drainControl pops and dispatches at most one completed server-originated
// message-kind frame per sync-loop cycle, the ControlDrain hook
// syncloop.UnreliableLoop reserves for non-media traffic.
func (s *Session) drainControl() bool {
	_, payload, ok := s.msgRing.PopCompleted()
	if !ok {
		return false
	}
	s.dispatchMessage(payload)
	return true
}

func (s *Session) dispatchMessage(payload []byte) {
	env, err := message.Unmarshal(payload)
	if err != nil {
		s.ledger.RecordMalformedPacket(err.Error())
		return
	}

	switch env.Kind {
	case message.KindAudioFrequency:
		freq := message.DecodeAudioFrequencyPayload(env.Payload)
		if err := s.audioPlayout.SetSampleRate(int(freq.SampleRateHz)); err != nil {
			s.ledger.RecordDecodeError(int32(env.ID), err)
		}
	case message.KindPong:
		// Round-trip acknowledgement; nothing further to act on.
	default:
		s.ledger.RecordFrameDropped(int32(env.ID), fmt.Sprintf("message kind %s not handled by this session", env.Kind))
	}
}

// policyTick runs one NACK/key-frame/stream-reset pass over every ring and
// rolls the congestion controller's window, invoked by
// syncloop.UnreliableLoop on its PolicyTick cadence rather than once per
// datagram.
func (s *Session) policyTick(now time.Time) {
	s.tickRing(fragment.KindVideo, s.videoRing, now)
	s.tickRing(fragment.KindAudio, s.audioRing, now)
	s.tickRing(fragment.KindGPU, s.gpuRing, now)
	s.tickRing(fragment.KindMessage, s.msgRing, now)

	if msg, ok := s.congestCtl.Tick(now); ok {
		s.emitBitrate(msg)
	}
}

func (s *Session) tickRing(kind fragment.Kind, b *ring.Buffer, now time.Time) {
	rendering := s.videoPipeline.PendingRender()
	result := b.Tick(now, s.policy, rendering)

	for _, n := range result.Nacks {
		s.congestCtl.ObserveNack(now)
		s.ledger.RecordNackSent()
		s.sendEnvelope(message.KindNack, message.NackPayload{
			Kind:    uint32(kind),
			FrameID: n.FrameID,
			Index:   n.Index,
		}.Marshal())
	}

	if result.KeyframeRequested {
		s.ledger.RecordKeyframeRequest(b.LastRenderedID() + 1)
		s.sendEnvelope(message.KindIframeRequest, nil)
	}

	if result.StreamReset != nil {
		s.ledger.RecordStreamReset(result.StreamReset.LastFailedID, result.StreamReset.Kind.String())
		s.sendEnvelope(message.KindStreamResetRequest, message.StreamResetPayload{
			Kind:         uint32(result.StreamReset.Kind),
			LastFailedID: result.StreamReset.LastFailedID,
		}.Marshal())
	}
}

// emitBitrate records the controller's new target/burst bitrates, pushes
// the video hint into the decoder-construction seam, and tells the sender
// about it over the message plane.
func (s *Session) emitBitrate(msg *congestion.BitrateMessage) {
	s.ledger.RecordBitrateWindow(msg.TargetBps, msg.BurstBps, 0, time.Now())
	s.videoPipeline.SetBitrateHint(int(msg.TargetBps))

	s.sendEnvelope(message.KindBitrate, message.BitratePayload{
		TargetBps:     uint32(msg.TargetBps),
		BurstBps:      uint32(msg.BurstBps),
		FECRatioX1000: uint16(msg.FECRatio * 1000),
	}.Marshal())
}

// sendEnvelope builds and routes a fresh outbound envelope, logging
// (rather than propagating) a send failure: a single dropped control
// message is not fatal to the session.
func (s *Session) sendEnvelope(kind message.Kind, payload []byte) {
	env := s.router.Build(kind, payload)
	if err := s.router.Dispatch(env, s.sendReliable, s.sendUnreliable); err != nil {
		log.Printf("SESSION [%s]: send %s: %v", s.id, kind, err)
	}
}

func (s *Session) sendUnreliable(env message.Envelope) error {
	plain := env.Marshal()
	dg, err := cryptoframe.Encrypt(plain, s.opt.PrivateKey)
	if err != nil {
		return fmt.Errorf("session: encrypt %s: %w", env.Kind, err)
	}
	return s.sock.SendDatagram(dg.Marshal())
}

// sendReliable is unused today: every kind this session originates
// (NACK, key-frame request, stream reset, bitrate) routes over the
// unreliable channel per message.IsReliable. Clipboard/file support will
// give this a reliable transport.Socket to write to.
func (s *Session) sendReliable(env message.Envelope) error {
	return fmt.Errorf("session: reliable channel not wired into this session")
}

// socketAdapter narrows transport.Socket's blocking RecvDatagram into the
// non-blocking poll-and-dispatch shape syncloop.Socket expects.
type socketAdapter struct {
	sock *unreliable.Socket
}

func (a socketAdapter) Update(onDatagram func([]byte)) bool {
	a.sock.SetTimeout(time.Millisecond)
	b, err := a.sock.RecvDatagram(time.Millisecond)
	if err != nil {
		return !errIsFatal(err)
	}
	onDatagram(b)
	return true
}

func errIsFatal(err error) bool {
	return err == transport.ErrClosed
}
