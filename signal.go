package bridge

import (
	"context"
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

// SetSignalCallback stores cb and subscribes, on the runner, to local
// network-path discovery and connectivity state transitions. Each
// discovered candidate is serialized as `{candidate,sdpMid,sdpMLineIndex}`
// JSON and delivered to cb; gathering completion and state transitions are
// logged only. Re-registration replaces both the callback and the engine
// handlers, so a candidate is never delivered twice.
func (s *Session) SetSignalCallback(cb SignalFunc) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.signalCb = cb
	pc := s.pc
	s.mu.Unlock()

	return s.run.Go("subscribe-signaling", func(ctx context.Context) {
		pc.OnICECandidate(func(c *webrtc.ICECandidate) {
			if c == nil {
				s.log.Debug("candidate gathering complete")
				return
			}
			payload, err := json.Marshal(c.ToJSON())
			if err != nil {
				s.log.WithError(err).Error("failed to serialize candidate")
				return
			}
			s.deliverSignal(string(payload))
		})

		pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
			entry := s.log.WithField("state", state)
			switch state {
			case webrtc.PeerConnectionStateFailed:
				entry.Error("peer connection failed")
			case webrtc.PeerConnectionStateDisconnected:
				entry.Warn("peer connection disconnected")
			default:
				entry.Info("peer connection state changed")
			}
		})
	})
}

// SetRemoteDescription parses payload as a `{type,sdp}` description and
// applies it as the remote description on the runner. When the description
// is an offer, the generated answer is applied locally and delivered
// through the signal callback. Fire-and-forget: parse and apply failures
// are logged and the task ends; the only caller-visible error is ErrClosed.
func (s *Session) SetRemoteDescription(payload string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	pc := s.pc
	s.mu.Unlock()

	return s.run.Go("set-remote-description", func(ctx context.Context) {
		var desc webrtc.SessionDescription
		if err := json.Unmarshal([]byte(payload), &desc); err != nil {
			s.log.WithError(err).Error("failed to parse remote description")
			return
		}

		s.log.WithField("type", desc.Type).Info("setting remote description")
		if err := pc.SetRemoteDescription(desc); err != nil {
			s.log.WithError(err).Error("failed to set remote description")
			return
		}

		if desc.Type != webrtc.SDPTypeOffer {
			return
		}

		answer, err := pc.CreateAnswer(nil)
		if err != nil {
			s.log.WithError(err).Error("failed to create answer")
			return
		}
		if err := pc.SetLocalDescription(answer); err != nil {
			s.log.WithError(err).Error("failed to set local description")
			return
		}

		out, err := json.Marshal(answer)
		if err != nil {
			s.log.WithError(err).Error("failed to serialize answer")
			return
		}
		s.deliverSignal(string(out))
	})
}

// AddICECandidate parses payload as a `{candidate,sdpMid,sdpMLineIndex}`
// network-path candidate and applies it on the runner. Fire-and-forget:
// malformed payloads never touch engine state, failures are logged and
// dropped.
func (s *Session) AddICECandidate(payload string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	pc := s.pc
	s.mu.Unlock()

	return s.run.Go("add-ice-candidate", func(ctx context.Context) {
		var cand webrtc.ICECandidateInit
		if err := json.Unmarshal([]byte(payload), &cand); err != nil {
			s.log.WithError(err).Error("failed to parse remote candidate")
			return
		}
		if err := pc.AddICECandidate(cand); err != nil {
			s.log.WithError(err).WithField("candidate", cand.Candidate).Error("failed to add remote candidate")
		}
	})
}

// deliverSignal invokes the stored signal callback, if any. Callbacks run
// on runner goroutines; the host must treat delivery as concurrent with its
// own entry-point calls.
func (s *Session) deliverSignal(payload string) {
	s.mu.Lock()
	cb := s.signalCb
	s.mu.Unlock()

	if cb == nil {
		s.log.WithField("bytes", len(payload)).Debug("no signal callback registered, payload dropped")
		return
	}
	cb(payload)
}
