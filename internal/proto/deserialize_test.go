package proto

import (
	"testing"

	"github.com/miroslavkrysl/bssrv/internal/types"
)

func TestDeserializeClientMessageLogin(t *testing.T) {
	msg, err := DeserializeClientMessage("login:alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	login, ok := msg.(Login)
	if !ok {
		t.Fatalf("got %T, want Login", msg)
	}
	if login.Nickname.String() != "alice" {
		t.Errorf("nickname = %q", login.Nickname.String())
	}
}

func TestDeserializeClientMessageNoPayload(t *testing.T) {
	for _, tc := range []struct {
		line string
		want ClientMessage
	}{
		{"alive", Alive{}},
		{"join_game", JoinGame{}},
		{"leave_game", LeaveGame{}},
		{"logout", Logout{}},
	} {
		msg, err := DeserializeClientMessage(tc.line)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.line, err)
		}
		if msg != tc.want {
			t.Errorf("%s: got %#v, want %#v", tc.line, msg, tc.want)
		}
	}
}

func TestDeserializeClientMessageUnknownHeader(t *testing.T) {
	if _, err := DeserializeClientMessage("restore_session:abc"); err == nil {
		t.Fatal("expected an error for an unknown/legacy header")
	}
}

func TestDeserializeShoot(t *testing.T) {
	msg, err := DeserializeClientMessage("shoot:3;7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	shoot, ok := msg.(Shoot)
	if !ok {
		t.Fatalf("got %T, want Shoot", msg)
	}
	if shoot.Position.Row != 3 || shoot.Position.Col != 7 {
		t.Errorf("position = %+v", shoot.Position)
	}
}

func TestDeserializeLayout(t *testing.T) {
	line := "layout:5;A;0;0;east;B;2;0;east;C;4;0;east;D;6;0;east;P;8;0;east"
	msg, err := DeserializeClientMessage(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	submit, ok := msg.(SubmitLayout)
	if !ok {
		t.Fatalf("got %T, want SubmitLayout", msg)
	}
	if len(submit.Layout) != 5 {
		t.Fatalf("layout has %d entries, want 5", len(submit.Layout))
	}
	if !submit.Layout.IsValid() {
		t.Error("expected a valid layout")
	}
	if submit.Layout[types.PatrolBoat].Anchor != (types.Position{Row: 8, Col: 0}) {
		t.Errorf("patrol boat anchor = %+v", submit.Layout[types.PatrolBoat])
	}
}

// TestDecoderIncrementalMatchesWhole is codec law L3.
func TestDecoderIncrementalMatchesWhole(t *testing.T) {
	stream := []byte("alive\nlogin:alice\nshoot:1;2\n")

	var whole Decoder
	if err := whole.Decode(stream); err != nil {
		t.Fatalf("whole decode failed: %v", err)
	}
	wholeMessages := whole.TakeMessages()

	var incremental Decoder
	for _, b := range stream {
		if err := incremental.Decode([]byte{b}); err != nil {
			t.Fatalf("incremental decode failed: %v", err)
		}
	}
	incrementalMessages := incremental.TakeMessages()

	if len(wholeMessages) != len(incrementalMessages) {
		t.Fatalf("got %d messages incrementally, %d whole", len(incrementalMessages), len(wholeMessages))
	}
	for i := range wholeMessages {
		if wholeMessages[i] != incrementalMessages[i] {
			t.Errorf("message %d differs: %#v vs %#v", i, wholeMessages[i], incrementalMessages[i])
		}
	}
}

func TestDecoderSplitMultibyteCharacter(t *testing.T) {
	// "login:日本語" starts its nickname with the 3-byte UTF-8 character
	// "日"; split the stream mid-character and confirm no InvalidUtf8 error
	// is raised early.
	full := []byte("login:日本語\n")
	var d Decoder
	if err := d.Decode(full[:7]); err != nil {
		t.Fatalf("unexpected error on partial multibyte sequence: %v", err)
	}
	if err := d.Decode(full[7:]); err != nil {
		t.Fatalf("unexpected error completing the sequence: %v", err)
	}
	messages := d.TakeMessages()
	if len(messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(messages))
	}
}

func TestDecoderMessageLengthExceeded(t *testing.T) {
	var d Decoder
	oversized := make([]byte, MaxMessageLength+1)
	for i := range oversized {
		oversized[i] = 'a'
	}
	if err := d.Decode(oversized); err == nil {
		t.Fatal("expected MessageLengthExceeded error")
	}
}

func TestDecoderEscapedNewlineIsNotATerminator(t *testing.T) {
	// join_game carries no payload items worth consuming, so an escaped
	// newline embedded in its (ignored) payload is a pure framing check:
	// it must not be mistaken for the frame terminator.
	var d Decoder
	if err := d.Decode([]byte("join_game:a\\\nb\n")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	messages := d.TakeMessages()
	if len(messages) != 1 {
		t.Fatalf("got %d messages, want 1", len(messages))
	}
	if _, ok := messages[0].(JoinGame); !ok {
		t.Fatalf("got %T, want JoinGame", messages[0])
	}
}
