package protocol_test

import (
	"strings"
	"testing"

	"github.com/pairchat/pairchat/pkg/protocol"
)

func TestFrame_EncodeDecode(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*protocol.Frame, error)
		check func(t *testing.T, f *protocol.Frame)
	}{
		{
			name: "join frame with ack id",
			build: func() (*protocol.Frame, error) {
				return protocol.NewJoin("alice", "bob", 7)
			},
			check: func(t *testing.T, f *protocol.Frame) {
				if f.Event != protocol.EventJoin {
					t.Errorf("event = %q, want %q", f.Event, protocol.EventJoin)
				}
				if f.Ack != 7 {
					t.Errorf("ack = %d, want 7", f.Ack)
				}
				p, err := f.JoinPayload()
				if err != nil {
					t.Fatalf("JoinPayload() error = %v", err)
				}
				if p.Username != "alice" || p.Target != "bob" {
					t.Errorf("payload = %+v, want alice/bob", p)
				}
			},
		},
		{
			name: "send frame",
			build: func() (*protocol.Frame, error) {
				return protocol.NewSend("bob", "alice", "hey there")
			},
			check: func(t *testing.T, f *protocol.Frame) {
				if f.Event != protocol.EventSend {
					t.Errorf("event = %q, want %q", f.Event, protocol.EventSend)
				}
				p, err := f.OutgoingPayload()
				if err != nil {
					t.Fatalf("OutgoingPayload() error = %v", err)
				}
				if p.Target != "bob" || p.User != "alice" || p.Message != "hey there" {
					t.Errorf("payload = %+v", p)
				}
			},
		},
		{
			name: "delivery frame on a channel digest",
			build: func() (*protocol.Frame, error) {
				return protocol.NewDelivery(strings.Repeat("ab", 32), "bob", "yo")
			},
			check: func(t *testing.T, f *protocol.Frame) {
				if f.Event != strings.Repeat("ab", 32) {
					t.Errorf("event = %q, want channel digest", f.Event)
				}
				p, err := f.IncomingPayload()
				if err != nil {
					t.Fatalf("IncomingPayload() error = %v", err)
				}
				if p.User != "bob" || p.Message != "yo" {
					t.Errorf("payload = %+v", p)
				}
			},
		},
		{
			name: "ack frame",
			build: func() (*protocol.Frame, error) {
				return protocol.NewAck(3), nil
			},
			check: func(t *testing.T, f *protocol.Frame) {
				if f.Event != protocol.EventAck || f.Ack != 3 {
					t.Errorf("frame = %+v, want ack event with id 3", f)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := tt.build()
			if err != nil {
				t.Fatalf("build error = %v", err)
			}

			data, err := frame.Encode()
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if len(data) == 0 {
				t.Fatal("Encode() returned empty data")
			}

			var decoded protocol.Frame
			if err := decoded.Decode(data); err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			tt.check(t, &decoded)
		})
	}
}

func TestFrame_DecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "not json", data: []byte("not json at all")},
		{name: "missing event name", data: []byte(`{"data":{"user":"bob"}}`)},
		{name: "empty input", data: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f protocol.Frame
			if err := f.Decode(tt.data); err == nil {
				t.Errorf("Decode(%q) error = nil, want error", tt.data)
			}
		})
	}
}

func TestFrame_PayloadMismatch(t *testing.T) {
	f := &protocol.Frame{Event: protocol.EventJoin, Data: []byte(`[1,2,3]`)}
	if _, err := f.JoinPayload(); err == nil {
		t.Error("JoinPayload() on array data: error = nil, want error")
	}
}
