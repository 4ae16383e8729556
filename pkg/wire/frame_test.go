package wire_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/duochat/duochat/pkg/wire"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    wire.FrameKind
		wantErr bool
	}{
		{
			name: "presence frame",
			data: `{"online":[{"userId":"u2","username":"bob"}]}`,
			want: wire.FramePresence,
		},
		{
			name: "empty roster is still a presence frame",
			data: `{"online":[]}`,
			want: wire.FramePresence,
		},
		{
			name: "text message frame",
			data: `{"sender":"u2","recipient":"u1","text":"hi","_id":"m1"}`,
			want: wire.FrameMessage,
		},
		{
			name: "file message frame without text",
			data: `{"sender":"u2","recipient":"u1","file":"abc.png","_id":"m2"}`,
			want: wire.FrameMessage,
		},
		{
			name: "unknown frame",
			data: `{"ping":true}`,
			want: wire.FrameUnknown,
		},
		{
			name:    "invalid json",
			data:    `{`,
			want:    wire.FrameUnknown,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := wire.Classify([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Errorf("Classify() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPresenceFrame_Decode(t *testing.T) {
	var f wire.PresenceFrame
	err := f.Decode([]byte(`{"online":[{"userId":"u2","username":"Bob"},{"userId":"u3","username":"carol"}]}`))
	if err != nil {
		t.Fatalf("PresenceFrame.Decode() error = %v", err)
	}

	want := []wire.Peer{
		{UserID: "u2", Username: "Bob"},
		{UserID: "u3", Username: "carol"},
	}
	if !reflect.DeepEqual(f.Online, want) {
		t.Errorf("PresenceFrame.Online = %v, want %v", f.Online, want)
	}
}

func TestSendFrame_Encode_TextMessageCarriesNullFile(t *testing.T) {
	f := wire.SendFrame{
		Recipient: "u2",
		Text:      "hi",
	}
	data, err := f.Encode()
	if err != nil {
		t.Fatalf("SendFrame.Encode() error = %v", err)
	}

	// The backend expects an explicit null for the file field.
	if !strings.Contains(string(data), `"file":null`) {
		t.Errorf("SendFrame.Encode() = %s, want explicit \"file\":null", data)
	}
}

func TestSendFrame_EncodeDecode_FileMessage(t *testing.T) {
	f := wire.SendFrame{
		Recipient: "u2",
		File: &wire.FilePayload{
			Name: "photo.png",
			Data: "data:image/png;base64,aGVsbG8=",
		},
	}
	data, err := f.Encode()
	if err != nil {
		t.Fatalf("SendFrame.Encode() error = %v", err)
	}

	var got wire.SendFrame
	if err := got.Decode(data); err != nil {
		t.Fatalf("SendFrame.Decode() error = %v", err)
	}
	if got.File == nil || got.File.Name != "photo.png" {
		t.Errorf("SendFrame.Decode() file = %+v, want name photo.png", got.File)
	}
}

func TestDistinctByID(t *testing.T) {
	msgs := []wire.Message{
		{ID: "m1", Sender: "u1", Text: "first"},
		{ID: "m2", Sender: "u2", Text: "second"},
		{ID: "m1", Sender: "u1", Text: "duplicate of first"},
		{ID: "m3", Sender: "u1", Text: "second"},
	}

	got := wire.DistinctByID(msgs)

	wantIDs := []string{"m1", "m2", "m3"}
	if len(got) != len(wantIDs) {
		t.Fatalf("DistinctByID() returned %d messages, want %d", len(got), len(wantIDs))
	}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Errorf("DistinctByID()[%d].ID = %q, want %q", i, got[i].ID, id)
		}
	}
	// First occurrence wins.
	if got[0].Text != "first" {
		t.Errorf("DistinctByID()[0].Text = %q, want %q", got[0].Text, "first")
	}
	// Same content under different ids is not collapsed.
	if got[1].Text != got[2].Text {
		t.Errorf("distinct ids with equal content should both survive, got %q and %q", got[1].Text, got[2].Text)
	}
}

func TestDistinctByID_Idempotent(t *testing.T) {
	msgs := []wire.Message{
		{ID: "m1", Text: "a"},
		{ID: "m1", Text: "b"},
		{ID: "m2", Text: "c"},
	}

	once := wire.DistinctByID(msgs)
	twice := wire.DistinctByID(once)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("DistinctByID applied twice = %v, want %v", twice, once)
	}
}

func TestFileURL(t *testing.T) {
	got := wire.FileURL("mern-chat", "1700000000-photo.png")
	want := "https://mern-chat.s3.amazonaws.com/1700000000-photo.png"
	if got != want {
		t.Errorf("FileURL() = %q, want %q", got, want)
	}
}
