package bridge

import (
	"bytes"
	"sync"
	"testing"
)

func TestDeliverInput_ForwardsVerbatim(t *testing.T) {
	var (
		mu       sync.Mutex
		received [][]byte
	)
	s, _ := newTestSession(t, func(cfg *Config) {
		cfg.OnInput = func(data []byte) {
			mu.Lock()
			received = append(received, data)
			mu.Unlock()
		}
	})

	payloads := [][]byte{
		[]byte("move:10,20"),
		{0x00, 0xFF, 0x7F},
		{},
	}
	for _, p := range payloads {
		s.deliverInput(p)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != len(payloads) {
		t.Fatalf("delivered %d messages, want %d", len(received), len(payloads))
	}
	for i, want := range payloads {
		if !bytes.Equal(received[i], want) {
			t.Errorf("message %d = %v, want %v", i, received[i], want)
		}
	}
}

func TestDeliverInput_NoCallbackConfigured(t *testing.T) {
	s, _ := newTestSession(t, nil)

	// Messages with no registered callback are dropped, never panic.
	s.deliverInput([]byte("ignored"))
}

func TestHandleDataChannel_LabelFilter(t *testing.T) {
	s, _ := newTestSession(t, func(cfg *Config) {
		cfg.DisableInputChannel = true
	})

	// Channels with foreign labels are observed and ignored; the reserved
	// label is accepted. Neither path may panic.
	for _, label := range []string{"chat", inputChannelLabel} {
		dc, err := s.pc.CreateDataChannel(label, nil)
		if err != nil {
			t.Fatalf("CreateDataChannel(%q) failed: %v", label, err)
		}
		s.handleDataChannel(dc)
	}
}
