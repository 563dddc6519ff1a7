package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// inputChannelLabel is the reserved label of the control data channel.
// Inbound channels with any other label are observed and ignored.
const inputChannelLabel = "input"

// defaultCloseTimeout bounds the join on in-flight background tasks during
// Close.
const defaultCloseTimeout = 5 * time.Second

// Session errors
var (
	ErrClosed            = errors.New("session closed")
	ErrInvalidDimensions = errors.New("invalid frame dimensions")
	ErrBufferSize        = errors.New("picture buffer has wrong size")
)

// SignalFunc receives serialized negotiation payloads (local network-path
// candidates and generated answers) as UTF-8 JSON text. It is invoked from
// background goroutines, concurrently with further entry-point calls.
type SignalFunc func(payload string)

// InputFunc receives inbound binary messages from the peer's control
// channel, forwarded verbatim. It is invoked from background goroutines.
type InputFunc func(data []byte)

// Config configures a Session. The zero value is usable; DefaultConfig
// spells the defaults out.
type Config struct {
	// ICEServers lists STUN/TURN URLs handed to the engine. Empty means
	// host candidates only.
	ICEServers []string

	// Codec selects the outbound video codec. Default VP9.
	Codec VideoCodec

	// FPS is the nominal framerate assumed by the fixed timestamp tick.
	// Default 30.
	FPS int

	// BitrateBps is the encoder target bitrate. Default 1 Mbps.
	BitrateBps int

	// MTU bounds RTP payload sizes. Default 1200.
	MTU int

	// DisableInputChannel skips creating the outbound "input" data channel.
	// Inbound channels from the peer are relayed either way.
	DisableInputChannel bool

	// OnInput receives inbound control-channel messages. Optional.
	OnInput InputFunc

	// NewEncoder overrides the default libvpx-backed encoder factory.
	NewEncoder EncoderFactory

	// Logger receives operational diagnostics. Default
	// logrus.StandardLogger().
	Logger *logrus.Logger

	// CloseTimeout bounds the background-task join in Close. Default 5s.
	CloseTimeout time.Duration
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		Codec:      VideoCodecVP9,
		FPS:        30,
		BitrateBps: 1_000_000,
		MTU:        1200,
	}
}

func (c *Config) fillDefaults() {
	if c.Codec == VideoCodecUnknown {
		c.Codec = VideoCodecVP9
	}
	if c.FPS <= 0 {
		c.FPS = 30
	}
	if c.BitrateBps <= 0 {
		c.BitrateBps = 1_000_000
	}
	if c.MTU <= 0 {
		c.MTU = 1200
	}
	if c.NewEncoder == nil {
		c.NewEncoder = defaultEncoderFactory
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = defaultCloseTimeout
	}
}

// SessionStats provides pipeline metrics.
type SessionStats struct {
	FramesSubmitted uint64 // Frames accepted by SendFrame
	FramesEncoded   uint64 // Frames that produced encoder output
	FramesDropped   uint64 // Frames lost to encoder errors
	PacketsWritten  uint64 // RTP packets handed to the track
	BytesWritten    uint64 // RTP payload bytes handed to the track
	WriteErrors     uint64 // Transport write failures (logged, dropped)
}

// Session is a single peer-to-peer media session. It is safe for concurrent
// use from any number of goroutines. A Session must be released with Close
// exactly once; every entry point on a closed Session fails fast with
// ErrClosed.
type Session struct {
	id  string
	cfg Config
	log *logrus.Entry

	pc     *webrtc.PeerConnection
	track  *webrtc.TrackLocalStaticRTP
	sender *webrtc.RTPSender
	run    *runner

	packetizer RTPPacketizer
	slot       encoderSlot

	mu       sync.Mutex
	closed   bool
	signalCb SignalFunc

	stats   SessionStats
	statsMu sync.Mutex
}

// New builds the negotiation engine with default codecs, creates and
// registers one outbound video track, optionally opens the ordered,
// reliable "input" data channel, and starts the session's background
// runner. Any failure during construction releases already-created
// resources and returns a nil session.
func New(cfg Config) (*Session, error) {
	cfg.fillDefaults()

	id := uuid.NewString()
	log := cfg.Logger.WithField("session_id", id)

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register default codecs: %w", err)
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m))

	var rtcCfg webrtc.Configuration
	if len(cfg.ICEServers) > 0 {
		rtcCfg.ICEServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}

	pc, err := api.NewPeerConnection(rtcCfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: cfg.Codec.MimeType(), ClockRate: cfg.Codec.ClockRate()},
		"video", "bridge",
	)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("new video track: %w", err)
	}

	sender, err := pc.AddTrack(track)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("add video track: %w", err)
	}

	if !cfg.DisableInputChannel {
		ordered := true
		if _, err := pc.CreateDataChannel(inputChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered}); err != nil {
			pc.Close()
			return nil, fmt.Errorf("create input data channel: %w", err)
		}
	}

	packetizer, err := NewRTPPacketizer(cfg.Codec, rand.Uint32(), cfg.Codec.DefaultPayloadType(), cfg.MTU)
	if err != nil {
		pc.Close()
		return nil, err
	}

	s := &Session{
		id:         id,
		cfg:        cfg,
		log:        log,
		pc:         pc,
		track:      track,
		sender:     sender,
		run:        newRunner(log),
		packetizer: packetizer,
	}
	s.slot.init(cfg, log)

	pc.OnDataChannel(s.handleDataChannel)

	// Drain RTCP from the track sender; PLI/FIR trigger a keyframe.
	if err := s.run.Go("rtcp-reader", s.rtcpLoop); err != nil {
		pc.Close()
		return nil, err
	}

	log.WithField("codec", cfg.Codec).Info("session created")
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Stats returns a snapshot of the session's pipeline metrics.
func (s *Session) Stats() SessionStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// EncoderStats returns encoding totals accumulated across every encoder the
// session has held, including ones replaced on resolution changes.
func (s *Session) EncoderStats() EncoderStats {
	return s.slot.stats()
}

// RequestKeyframe forces the active encoder's next frame to be a keyframe.
// No-op when no encoder is active.
func (s *Session) RequestKeyframe() {
	s.slot.requestKeyframe()
}

// SetBitrate retargets the encoder bitrate in bits per second. It applies
// immediately to the active encoder when it supports mid-stream control, and
// to every encoder created afterwards.
func (s *Session) SetBitrate(bitrateBps int) error {
	if bitrateBps <= 0 {
		return fmt.Errorf("invalid bitrate %d", bitrateBps)
	}
	if s.isClosed() {
		return ErrClosed
	}
	return s.slot.setBitrate(bitrateBps)
}

// Close waits for the engine's orderly close to finish, joins in-flight
// background tasks with a bounded timeout, and releases the encoder. A
// second Close returns ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	pc := s.pc
	s.mu.Unlock()

	var firstErr error
	if err := pc.GracefulClose(); err != nil {
		s.log.WithError(err).Error("failed to close peer connection")
		firstErr = err
	}

	if err := s.run.Shutdown(s.cfg.CloseTimeout); err != nil && !errors.Is(err, ErrRunnerClosed) {
		s.log.WithError(err).Warn("background task join incomplete")
		if firstErr == nil {
			firstErr = err
		}
	}

	s.slot.close()

	s.log.Info("session closed")
	return firstErr
}

// isClosed reports whether Close has begun.
func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// rtcpLoop drains RTCP from the track sender. Picture loss indications and
// full intra requests map to an encoder keyframe request; everything else
// is ignored. The loop exits when the sender is closed.
func (s *Session) rtcpLoop(ctx context.Context) {
	buf := make([]byte, 1500)
	for {
		n, _, err := s.sender.Read(buf)
		if err != nil {
			return
		}
		pkts, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			s.log.WithError(err).Debug("discarding unparseable RTCP")
			continue
		}
		for _, pkt := range pkts {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				s.log.Debug("keyframe requested by peer")
				s.slot.requestKeyframe()
			}
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
