//go:build !darwin && !linux

package bridge

import "fmt"

// libmedia_vpx is only loaded on darwin/linux. Hosts on other platforms
// must supply Config.NewEncoder.

// IsVPXAvailable checks if libmedia_vpx is available.
func IsVPXAvailable() bool { return false }

// IsVP8Available checks if the VP8 codec is available.
func IsVP8Available() bool { return false }

// IsVP9Available checks if the VP9 codec is available.
func IsVP9Available() bool { return false }

// NewVP8Encoder creates a new VP8 encoder.
func NewVP8Encoder(config VideoEncoderConfig) (VideoEncoder, error) {
	return nil, fmt.Errorf("VP8 encoder not available on this platform: %w", ErrCodecNotSupported)
}

// NewVP9Encoder creates a new VP9 encoder.
func NewVP9Encoder(config VideoEncoderConfig) (VideoEncoder, error) {
	return nil, fmt.Errorf("VP9 encoder not available on this platform: %w", ErrCodecNotSupported)
}
