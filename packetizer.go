package bridge

import (
	"fmt"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

// DefaultMTU bounds RTP packet sizes when the config does not say otherwise.
const DefaultMTU = 1200

// rtpHeaderSize is the fixed RTP header length without extensions.
const rtpHeaderSize = 12

// RTPPacketizer splits encoded samples into RTP packets.
type RTPPacketizer interface {
	// Packetize converts one sample to zero or more RTP packets. The
	// marker bit is set on the last packet of the sample.
	Packetize(sample *Sample) ([]*rtp.Packet, error)

	// Codec returns the codec this packetizer payloads.
	Codec() VideoCodec
}

// NewRTPPacketizer creates a packetizer for the given codec.
func NewRTPPacketizer(codec VideoCodec, ssrc uint32, pt uint8, mtu int) (RTPPacketizer, error) {
	switch codec {
	case VideoCodecVP8:
		return newVPXPacketizer(codec, ssrc, pt, mtu, &codecs.VP8Payloader{}), nil
	case VideoCodecVP9:
		return newVPXPacketizer(codec, ssrc, pt, mtu, &codecs.VP9Payloader{}), nil
	default:
		return nil, fmt.Errorf("%w: no packetizer for %s", ErrCodecNotSupported, codec)
	}
}

// vpxPacketizer packetizes VP8/VP9 samples using pion's payloaders.
type vpxPacketizer struct {
	codec       VideoCodec
	ssrc        uint32
	payloadType uint8
	mtu         int
	sequencer   rtp.Sequencer
	payloader   rtp.Payloader
	mu          sync.Mutex
}

func newVPXPacketizer(codec VideoCodec, ssrc uint32, pt uint8, mtu int, payloader rtp.Payloader) *vpxPacketizer {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	return &vpxPacketizer{
		codec:       codec,
		ssrc:        ssrc,
		payloadType: pt,
		mtu:         mtu,
		sequencer:   rtp.NewRandomSequencer(),
		payloader:   payloader,
	}
}

// Packetize implements RTPPacketizer.
func (p *vpxPacketizer) Packetize(sample *Sample) ([]*rtp.Packet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(sample.Data) == 0 {
		return nil, nil
	}

	payloads := p.payloader.Payload(uint16(p.mtu-rtpHeaderSize), sample.Data)
	if len(payloads) == 0 {
		return nil, nil
	}

	packets := make([]*rtp.Packet, len(payloads))
	for i, payload := range payloads {
		packets[i] = &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         i == len(payloads)-1,
				PayloadType:    p.payloadType,
				SequenceNumber: p.sequencer.NextSequenceNumber(),
				Timestamp:      sample.Timestamp,
				SSRC:           p.ssrc,
			},
			Payload: payload,
		}
	}
	return packets, nil
}

// Codec implements RTPPacketizer.
func (p *vpxPacketizer) Codec() VideoCodec { return p.codec }
