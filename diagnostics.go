package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

// CandidateInfo describes one endpoint of the selected network path.
type CandidateInfo struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
	Type    string `json:"type"`
}

// Diagnostics is a snapshot of negotiation/connectivity state. Every field
// is optional; pieces that are not yet known are omitted from the JSON.
type Diagnostics struct {
	LocalICEUfrag           string         `json:"local_ice_ufrag,omitempty"`
	LocalICEPwd             string         `json:"local_ice_pwd,omitempty"`
	SelectedLocalCandidate  *CandidateInfo `json:"selected_local_candidate,omitempty"`
	SelectedRemoteCandidate *CandidateInfo `json:"selected_remote_candidate,omitempty"`
}

// GetDiagnostics gathers local negotiation credentials and the selected
// candidate pair, serialized as JSON. Unlike the other entry points it
// blocks the caller until the runner task finishes. Returns an error when
// the session is closed or serialization fails; a session that has not
// negotiated yet yields "{}".
func (s *Session) GetDiagnostics() (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	pc := s.pc
	s.mu.Unlock()

	var d Diagnostics
	if err := s.run.Wait("diagnostics", func(ctx context.Context) {
		collectDiagnostics(pc, &d)
	}); err != nil {
		return "", err
	}

	out, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("serialize diagnostics: %w", err)
	}
	return string(out), nil
}

func collectDiagnostics(pc *webrtc.PeerConnection, d *Diagnostics) {
	if ld := pc.LocalDescription(); ld != nil {
		d.LocalICEUfrag, d.LocalICEPwd = localICECredentials(ld.SDP)
	}

	sctp := pc.SCTP()
	if sctp == nil {
		return
	}
	dtls := sctp.Transport()
	if dtls == nil {
		return
	}
	ice := dtls.ICETransport()
	if ice == nil {
		return
	}

	pair, err := ice.GetSelectedCandidatePair()
	if err != nil || pair == nil {
		return
	}
	if pair.Local != nil {
		d.SelectedLocalCandidate = &CandidateInfo{
			Address: pair.Local.Address,
			Port:    pair.Local.Port,
			Type:    pair.Local.Typ.String(),
		}
	}
	if pair.Remote != nil {
		d.SelectedRemoteCandidate = &CandidateInfo{
			Address: pair.Remote.Address,
			Port:    pair.Remote.Port,
			Type:    pair.Remote.Typ.String(),
		}
	}
}

// localICECredentials extracts ice-ufrag/ice-pwd from a session
// description. Credentials may sit at session level or on the first media
// section that carries them.
func localICECredentials(raw string) (ufrag, pwd string) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return "", ""
	}

	scan := func(attrs []sdp.Attribute) {
		for _, a := range attrs {
			switch a.Key {
			case "ice-ufrag":
				if ufrag == "" {
					ufrag = a.Value
				}
			case "ice-pwd":
				if pwd == "" {
					pwd = a.Value
				}
			}
		}
	}

	scan(desc.Attributes)
	for _, md := range desc.MediaDescriptions {
		if ufrag != "" && pwd != "" {
			break
		}
		scan(md.Attributes)
	}
	return ufrag, pwd
}
