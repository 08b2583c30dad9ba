package message

import "testing"

func TestDecodeRejectsMissingType(t *testing.T) {
	_, err := Decode([]byte(`{"text":"hi"}`))
	if err != ErrMissingType {
		t.Fatalf("expected ErrMissingType, got %v", err)
	}
}

func TestDecodeToleratesUnknownFields(t *testing.T) {
	f, err := Decode([]byte(`{"type":"ping","bogus_field_from_the_future":123}`))
	if err != nil {
		t.Fatal(err)
	}
	if f.Type != FramePing {
		t.Fatalf("expected ping, got %s", f.Type)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := &Frame{
		Type:     FrameChat,
		ID:       "m1",
		UserID:   "u1",
		Username: "alice",
		Text:     "hello",
		RoomID:   "main",
	}
	data, err := Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if out.Text != "hello" || out.RoomID != "main" {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestSimulateDelayMetadata(t *testing.T) {
	m := Message{Metadata: map[string]interface{}{
		"simulate_delay": true,
		"delay_ms":       float64(500),
	}}
	d, ok := m.SimulateDelay()
	if !ok {
		t.Fatal("expected simulate_delay to be recognized")
	}
	if d.Milliseconds() != 500 {
		t.Fatalf("expected 500ms, got %v", d)
	}
}

func TestSimulateDelayAbsent(t *testing.T) {
	m := Message{}
	if _, ok := m.SimulateDelay(); ok {
		t.Fatal("expected no simulated delay")
	}
}
