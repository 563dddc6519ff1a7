package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// encoderSlot holds the session's zero-or-one encoder state: either empty,
// or an active encoder plus the dimensions it was built for and a monotonic
// frame counter. All transitions and the encode itself run under one mutex,
// so encoder identity can never be observed mid-swap by a concurrent
// SendFrame.
type encoderSlot struct {
	mu sync.Mutex

	enc        VideoEncoder
	width      int
	height     int
	frameCount uint64
	closed     bool

	// retired accumulates the stats of encoders replaced on resolution
	// changes, so totals survive encoder swaps.
	retired EncoderStats

	factory EncoderFactory
	tpl     VideoEncoderConfig
	log     *logrus.Entry
}

func (sl *encoderSlot) init(cfg Config, log *logrus.Entry) {
	sl.factory = cfg.NewEncoder
	sl.tpl = VideoEncoderConfig{
		Codec:      cfg.Codec,
		FPS:        cfg.FPS,
		BitrateBps: cfg.BitrateBps,
	}
	sl.log = log
}

// encode accepts one raw I420 picture and returns the resulting sample, or
// nil when the encoder is still buffering. Dimension changes atomically
// replace the encoder and reset the frame counter; a failed replacement
// leaves the previous state untouched.
func (sl *encoderSlot) encode(width, height int, buf []byte) (*Sample, error) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.closed {
		return nil, ErrEncoderClosed
	}

	frame := i420Frame(width, height, buf)
	if err := frame.validate(); err != nil {
		return nil, err
	}

	if sl.enc == nil || sl.width != width || sl.height != height {
		ecfg := sl.tpl
		ecfg.Width = width
		ecfg.Height = height

		enc, err := sl.factory(ecfg)
		if err != nil {
			return nil, fmt.Errorf("create %s encoder %dx%d: %w", ecfg.Codec, width, height, err)
		}
		if sl.enc != nil {
			sl.retired.add(sl.enc.Stats())
			if cerr := sl.enc.Close(); cerr != nil {
				sl.log.WithError(cerr).Warn("failed to close replaced encoder")
			}
		}
		sl.log.WithFields(logrus.Fields{
			"codec":  ecfg.Codec,
			"width":  width,
			"height": height,
		}).Info("encoder created")

		sl.enc = enc
		sl.width = width
		sl.height = height
		sl.frameCount = 0
	}

	sl.frameCount++

	encoded, err := sl.enc.Encode(frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame %d: %w", sl.frameCount, err)
	}
	if encoded == nil || len(encoded.Data) == 0 {
		return nil, nil
	}

	// Fixed nominal tick: the timestamp assumes frames arrive at the
	// configured FPS, it is not measured wall-clock time.
	tick := uint64(sl.tpl.Codec.ClockRate()) / uint64(sl.tpl.FPS)
	return &Sample{
		Data:      encoded.Data,
		Timestamp: uint32(sl.frameCount * tick),
		Duration:  time.Second / time.Duration(sl.tpl.FPS),
		Keyframe:  encoded.IsKeyframe(),
	}, nil
}

func (sl *encoderSlot) requestKeyframe() {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.enc != nil {
		sl.enc.RequestKeyframe()
	}
}

// close releases the encoder and latches the slot shut, so an encode that
// was waiting on the mutex cannot rebuild an encoder afterwards.
func (sl *encoderSlot) close() {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.closed = true
	if sl.enc != nil {
		sl.retired.add(sl.enc.Stats())
		if err := sl.enc.Close(); err != nil {
			sl.log.WithError(err).Warn("failed to close encoder")
		}
		sl.enc = nil
		sl.width = 0
		sl.height = 0
		sl.frameCount = 0
	}
}

// stats returns the encoder totals across every encoder the slot has held.
func (sl *encoderSlot) stats() EncoderStats {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	total := sl.retired
	if sl.enc != nil {
		total.add(sl.enc.Stats())
	}
	return total
}

// setBitrate retargets the active encoder, when it supports mid-stream
// control, and every encoder created afterwards.
func (sl *encoderSlot) setBitrate(bitrateBps int) error {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.closed {
		return ErrEncoderClosed
	}
	sl.tpl.BitrateBps = bitrateBps
	if sl.enc == nil {
		return nil
	}
	bc, ok := sl.enc.(BitrateController)
	if !ok {
		return nil
	}
	return bc.SetBitrate(bitrateBps)
}

// SendFrame submits one raw picture to the encode pipeline. The buffer must
// hold exactly width*height*3/2 bytes of planar 4:2:0 data; violations are
// rejected without mutating any state. Accepted frames are compressed on
// the calling goroutine and the resulting sample is handed to the runner
// for delivery through the transport engine. Encode and delivery failures
// are logged, never returned: the caller cannot distinguish a silently
// dropped frame from one still in flight.
func (s *Session) SendFrame(width, height int, buf []byte) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if want := I420Size(width, height); len(buf) != want {
		return fmt.Errorf("%w: got %d bytes, want %d for %dx%d", ErrBufferSize, len(buf), want, width, height)
	}
	if s.isClosed() {
		return ErrClosed
	}

	s.statsMu.Lock()
	s.stats.FramesSubmitted++
	s.statsMu.Unlock()

	sample, err := s.slot.encode(width, height, buf)
	if err != nil {
		s.log.WithError(err).Error("frame dropped")
		s.statsMu.Lock()
		s.stats.FramesDropped++
		s.statsMu.Unlock()
		return nil
	}
	if sample == nil {
		return nil
	}

	s.statsMu.Lock()
	s.stats.FramesEncoded++
	s.statsMu.Unlock()

	if err := s.run.Go("deliver-sample", func(ctx context.Context) {
		s.deliverSample(sample)
	}); err != nil {
		s.log.WithError(err).Debug("sample dropped, runner shut down")
	}
	return nil
}

// deliverSample packetizes one sample and writes it to the outbound track.
// Fire-and-forget: write failures are logged and counted, the remaining
// packets of the sample are still attempted.
func (s *Session) deliverSample(sample *Sample) {
	packets, err := s.packetizer.Packetize(sample)
	if err != nil {
		s.log.WithError(err).Error("failed to packetize sample")
		return
	}

	var wrote, bytes uint64
	for _, pkt := range packets {
		if err := s.track.WriteRTP(pkt); err != nil {
			s.log.WithError(err).Error("failed to write sample")
			s.statsMu.Lock()
			s.stats.WriteErrors++
			s.statsMu.Unlock()
			continue
		}
		wrote++
		bytes += uint64(len(pkt.Payload))
	}

	s.statsMu.Lock()
	s.stats.PacketsWritten += wrote
	s.stats.BytesWritten += bytes
	s.statsMu.Unlock()
}
