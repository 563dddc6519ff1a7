package bridge

import (
	"errors"
	"io"
)

// Common errors
var (
	ErrCodecNotSupported = errors.New("codec not supported")
	ErrEncoderClosed     = errors.New("encoder closed")
)

// VideoEncoderConfig configures a video encoder.
type VideoEncoderConfig struct {
	Codec VideoCodec // Codec type (VP8, VP9)

	Width      int // Frame width
	Height     int // Frame height
	FPS        int // Nominal framerate, drives the fixed timestamp tick
	BitrateBps int // Target bitrate in bits per second
	Threads    int // Encoder threads (0 = auto)
}

// EncoderStats provides encoding metrics.
type EncoderStats struct {
	FramesEncoded    uint64 // Total frames encoded
	KeyframesEncoded uint64 // Total keyframes encoded
	BytesEncoded     uint64 // Total bytes of encoded data
}

func (s *EncoderStats) add(o EncoderStats) {
	s.FramesEncoded += o.FramesEncoded
	s.KeyframesEncoded += o.KeyframesEncoded
	s.BytesEncoded += o.BytesEncoded
}

// VideoEncoder encodes raw video frames to compressed bitstream.
//
// Implementations are safe for use from a single goroutine; the encode
// pipeline serializes all access.
type VideoEncoder interface {
	io.Closer

	// Encode encodes a video frame.
	// Returns nil if the encoder is buffering and no output is ready.
	Encode(frame *VideoFrame) (*EncodedFrame, error)

	// RequestKeyframe forces the next frame to be a keyframe.
	RequestKeyframe()

	// Codec returns the codec type.
	Codec() VideoCodec

	// Stats returns encoding statistics.
	Stats() EncoderStats
}

// BitrateController is implemented by encoders that can retarget their
// bitrate mid-stream.
type BitrateController interface {
	SetBitrate(bitrateBps int) error
}

// EncoderFactory constructs a VideoEncoder for a given configuration. The
// pipeline invokes it whenever the submitted frame dimensions differ from
// the active encoder's. Config.NewEncoder overrides the default libvpx
// backed factory.
type EncoderFactory func(config VideoEncoderConfig) (VideoEncoder, error)

// defaultEncoderFactory builds an encoder with the libmedia_vpx backend.
func defaultEncoderFactory(config VideoEncoderConfig) (VideoEncoder, error) {
	switch config.Codec {
	case VideoCodecVP8:
		return NewVP8Encoder(config)
	case VideoCodecVP9:
		return NewVP9Encoder(config)
	default:
		return nil, ErrCodecNotSupported
	}
}
