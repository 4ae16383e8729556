// Package attach converts a local file into the inline payload the send
// frame carries: the original filename plus a base64 data URI.
package attach

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/duochat/duochat/pkg/wire"
)

const fallbackMIME = "application/octet-stream"

// Encode reads the file's full binary content and produces its inline
// payload. Any readable file is accepted; there is no size limit or MIME
// filtering.
func Encode(path string) (wire.FilePayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return wire.FilePayload{}, fmt.Errorf("failed to read file: %w", err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = fallbackMIME
	}

	return wire.FilePayload{
		Name: filepath.Base(path),
		Data: "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
	}, nil
}

// EncodeAsync encodes the file off the calling goroutine and invokes done
// when finished. The completion callback is the trigger for the send, not
// a result the caller waits on.
func EncodeAsync(path string, done func(wire.FilePayload, error)) {
	go func() {
		done(Encode(path))
	}()
}
