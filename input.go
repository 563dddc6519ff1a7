package bridge

import (
	"github.com/pion/webrtc/v4"
)

// handleDataChannel relays inbound peer channels. Only the reserved input
// label is wired through; everything else is observed and left alone.
func (s *Session) handleDataChannel(dc *webrtc.DataChannel) {
	if dc.Label() != inputChannelLabel {
		s.log.WithField("label", dc.Label()).Info("ignoring data channel with unknown label")
		return
	}

	s.log.Info("input data channel accepted")
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		s.deliverInput(msg.Data)
	})
}

// deliverInput forwards one inbound control message verbatim to the host's
// input callback. Runs on engine goroutines, concurrently with entry-point
// calls.
func (s *Session) deliverInput(data []byte) {
	if s.cfg.OnInput == nil {
		s.log.WithField("bytes", len(data)).Debug("no input callback registered, message dropped")
		return
	}
	s.cfg.OnInput(data)
}
