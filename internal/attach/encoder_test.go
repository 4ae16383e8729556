package attach_test

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/duochat/duochat/internal/attach"
	"github.com/duochat/duochat/pkg/wire"
)

func TestEncode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	content := []byte("hello attachment")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	payload, err := attach.Encode(path)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	if payload.Name != "note.txt" {
		t.Errorf("payload.Name = %q, want %q", payload.Name, "note.txt")
	}
	if !strings.HasPrefix(payload.Data, "data:text/plain") {
		t.Errorf("payload.Data = %q, want data:text/plain prefix", payload.Data[:min(len(payload.Data), 40)])
	}

	idx := strings.Index(payload.Data, ";base64,")
	if idx < 0 {
		t.Fatalf("payload.Data = %q, want ;base64, marker", payload.Data)
	}
	decoded, err := base64.StdEncoding.DecodeString(payload.Data[idx+len(";base64,"):])
	if err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if string(decoded) != string(content) {
		t.Errorf("decoded payload = %q, want %q", decoded, content)
	}
}

func TestEncode_UnknownExtensionFallsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.zzqq")
	if err := os.WriteFile(path, []byte{0x01, 0x02}, 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	payload, err := attach.Encode(path)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !strings.HasPrefix(payload.Data, "data:application/octet-stream;base64,") {
		t.Errorf("payload.Data = %q, want octet-stream fallback", payload.Data)
	}
}

func TestEncode_MissingFile(t *testing.T) {
	if _, err := attach.Encode(filepath.Join(t.TempDir(), "missing.bin")); err == nil {
		t.Error("Encode() expected error for missing file")
	}
}

func TestEncodeAsync_CompletionTriggersCallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pic.png")
	if err := os.WriteFile(path, []byte("png bytes"), 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	done := make(chan wire.FilePayload, 1)
	attach.EncodeAsync(path, func(payload wire.FilePayload, err error) {
		if err != nil {
			t.Errorf("EncodeAsync() error = %v", err)
		}
		done <- payload
	})

	select {
	case payload := <-done:
		if payload.Name != "pic.png" {
			t.Errorf("payload.Name = %q, want %q", payload.Name, "pic.png")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for encode completion")
	}
}
