package bridge

import (
	"errors"
	"fmt"
	"time"
)

// VideoFrame represents a raw I420 video frame.
// The Data slices may point to caller-owned memory and are only valid for
// the duration of the Encode call they are passed to.
type VideoFrame struct {
	Data   [][]byte // Y, U, V plane data
	Stride []int    // Stride for each plane in bytes
	Width  int      // Frame width in pixels
	Height int      // Frame height in pixels
}

// I420Size returns the total buffer size of a packed I420 frame:
// width*height*3/2 with floor division, odd dimensions carried through the
// arithmetic rather than rounded per plane.
func I420Size(width, height int) int {
	return width * height * 3 / 2
}

// i420Frame wraps a packed I420 buffer (Y then U then V, row-major) as a
// VideoFrame without copying. The buffer must hold I420Size(width, height)
// bytes; whatever follows the Y plane is split evenly between U and V.
func i420Frame(width, height int, buf []byte) *VideoFrame {
	ySize := width * height
	uvSize := (len(buf) - ySize) / 2
	return &VideoFrame{
		Data: [][]byte{
			buf[:ySize],
			buf[ySize : ySize+uvSize],
			buf[ySize+uvSize : ySize+2*uvSize],
		},
		Stride: []int{width, (width + 1) / 2, (width + 1) / 2},
		Width:  width,
		Height: height,
	}
}

// ErrInvalidFrame reports a frame whose planes cannot be addressed.
var ErrInvalidFrame = errors.New("invalid video frame")

// validate rejects frames a native encoder cannot address: anything other
// than three planes, or a plane holding no bytes. Extreme geometries such
// as 1x1 leave the chroma planes empty.
func (f *VideoFrame) validate() error {
	if len(f.Data) != 3 {
		return fmt.Errorf("%w: %d planes, want 3", ErrInvalidFrame, len(f.Data))
	}
	for i, plane := range f.Data {
		if len(plane) == 0 {
			return fmt.Errorf("%w: plane %d is empty", ErrInvalidFrame, i)
		}
	}
	return nil
}

// FrameType indicates whether a frame is a keyframe or delta frame.
type FrameType int

const (
	FrameTypeUnknown FrameType = iota
	FrameTypeKey               // I-frame, can be decoded independently
	FrameTypeDelta             // P-frame, requires previous frames
)

func (f FrameType) String() string {
	switch f {
	case FrameTypeKey:
		return "Key"
	case FrameTypeDelta:
		return "Delta"
	default:
		return "Unknown"
	}
}

// EncodedFrame holds encoded video data produced by a VideoEncoder.
// The Data slice is owned by the caller of Encode once returned.
type EncodedFrame struct {
	Data      []byte    // Encoded bitstream data
	FrameType FrameType // Key or delta frame
}

// IsKeyframe returns true if this is a keyframe.
func (f *EncodedFrame) IsKeyframe() bool {
	return f.FrameType == FrameTypeKey
}

// Sample is the pipeline's delivery unit: one compressed frame plus its
// nominal presentation timestamp and playback duration. Samples are
// produced and consumed within a single frame submission, never persisted.
type Sample struct {
	Data      []byte        // Compressed bitstream
	Timestamp uint32        // RTP timestamp (90kHz clock)
	Duration  time.Duration // Nominal inter-frame interval
	Keyframe  bool
}
