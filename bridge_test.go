package bridge

import (
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

// stubEncoder is a VideoEncoder that fabricates deterministic output so
// pipeline tests run without libmedia_vpx.
type stubEncoder struct {
	cfg VideoEncoderConfig

	mu           sync.Mutex
	frames       int
	keyframes    int
	keyframeReqs int
	bitrate      int
	closed       bool

	failEncode bool // Encode returns an error
	buffering  bool // Encode returns nil, nil
}

func (e *stubEncoder) Encode(frame *VideoFrame) (*EncodedFrame, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrEncoderClosed
	}
	if e.failEncode {
		return nil, io.ErrUnexpectedEOF
	}
	if e.buffering {
		return nil, nil
	}

	e.frames++
	ft := FrameTypeDelta
	if e.frames == 1 {
		ft = FrameTypeKey
		e.keyframes++
	}
	// Deterministic payload derived from the frame geometry.
	data := make([]byte, 64)
	data[0] = byte(frame.Width)
	data[1] = byte(frame.Height)
	return &EncodedFrame{Data: data, FrameType: ft}, nil
}

func (e *stubEncoder) RequestKeyframe() {
	e.mu.Lock()
	e.keyframeReqs++
	e.mu.Unlock()
}

func (e *stubEncoder) SetBitrate(bitrateBps int) error {
	e.mu.Lock()
	e.bitrate = bitrateBps
	e.mu.Unlock()
	return nil
}

func (e *stubEncoder) Codec() VideoCodec { return e.cfg.Codec }

func (e *stubEncoder) Stats() EncoderStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EncoderStats{
		FramesEncoded:    uint64(e.frames),
		KeyframesEncoded: uint64(e.keyframes),
		BytesEncoded:     uint64(e.frames) * 64,
	}
}

func (e *stubEncoder) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

// stubEncoderFactory records every encoder it hands out.
type stubEncoderFactory struct {
	mu       sync.Mutex
	created  []*stubEncoder
	failNext bool
}

func (f *stubEncoderFactory) New(cfg VideoEncoderConfig) (VideoEncoder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failNext {
		f.failNext = false
		return nil, ErrCodecNotSupported
	}
	enc := &stubEncoder{cfg: cfg}
	f.created = append(f.created, enc)
	return enc, nil
}

func (f *stubEncoderFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *stubEncoderFactory) last() *stubEncoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestSession builds a session with a stub encoder factory and a silent
// logger, closed automatically at test end.
func newTestSession(t *testing.T, mutate func(*Config)) (*Session, *stubEncoderFactory) {
	t.Helper()

	factory := &stubEncoderFactory{}
	cfg := DefaultConfig()
	cfg.Logger = quietLogger()
	cfg.NewEncoder = factory.New
	if mutate != nil {
		mutate(&cfg)
	}

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, factory
}

// i420Buf returns a zeroed I420 buffer for the given dimensions.
func i420Buf(width, height int) []byte {
	return make([]byte, I420Size(width, height))
}
