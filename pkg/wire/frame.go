// Package wire defines the JSON frame model spoken over the duplex channel
// and by the REST history service.
package wire

import (
	"encoding/json"
	"fmt"
)

// FrameKind identifies which handler an inbound frame belongs to.
type FrameKind int

const (
	// FrameUnknown is returned for frames that match no known shape.
	FrameUnknown FrameKind = iota
	// FramePresence is a full online-roster push.
	FramePresence
	// FrameMessage is a chat message push.
	FrameMessage
)

// String returns the string representation of FrameKind.
func (k FrameKind) String() string {
	switch k {
	case FramePresence:
		return "PRESENCE"
	case FrameMessage:
		return "MESSAGE"
	default:
		return "UNKNOWN"
	}
}

// Peer is one entry of the online roster.
type Peer struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// PresenceFrame is the server push carrying the complete online roster.
// The roster is a full replacement, not a delta.
type PresenceFrame struct {
	Online []Peer `json:"online"`
}

// Decode decodes a presence frame from JSON bytes.
func (f *PresenceFrame) Decode(data []byte) error {
	if err := json.Unmarshal(data, f); err != nil {
		return fmt.Errorf("failed to decode presence frame: %w", err)
	}
	return nil
}

// Message is a chat message, both as pushed over the channel and as
// returned by the history service. File holds the blob-store key of an
// attachment; for file messages Text is empty.
//
// ID is backend-assigned once persisted. A locally-created optimistic
// message carries a millisecond-timestamp id until the next authoritative
// history replaces it.
type Message struct {
	ID        string `json:"_id,omitempty"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Text      string `json:"text,omitempty"`
	File      string `json:"file,omitempty"`
}

// Decode decodes a message frame from JSON bytes.
func (m *Message) Decode(data []byte) error {
	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("failed to decode message frame: %w", err)
	}
	return nil
}

// OwnedBy reports whether the message was sent by the given user.
func (m Message) OwnedBy(userID string) bool {
	return m.Sender == userID
}

// FilePayload is the inline attachment of an outbound send frame: the
// original filename plus the file content as a base64 data URI.
type FilePayload struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

// SendFrame is the client-to-server send frame. File is encoded as an
// explicit null for plain text messages, matching the backend protocol.
type SendFrame struct {
	Recipient string       `json:"recipient"`
	Text      string       `json:"text"`
	File      *FilePayload `json:"file"`
}

// Encode encodes the send frame into JSON bytes.
func (f *SendFrame) Encode() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode send frame: %w", err)
	}
	return data, nil
}

// Decode decodes a send frame from JSON bytes.
func (f *SendFrame) Decode(data []byte) error {
	if err := json.Unmarshal(data, f); err != nil {
		return fmt.Errorf("failed to decode send frame: %w", err)
	}
	return nil
}

// probe mirrors the discriminating fields of inbound frames.
type probe struct {
	Online json.RawMessage `json:"online"`
	Text   json.RawMessage `json:"text"`
	File   json.RawMessage `json:"file"`
}

// Classify inspects an inbound frame and reports which shape it has: a
// frame with an "online" field is a presence push, a frame with a "text"
// field or a file payload is a message.
func Classify(data []byte) (FrameKind, error) {
	var p probe
	if err := json.Unmarshal(data, &p); err != nil {
		return FrameUnknown, fmt.Errorf("failed to classify frame: %w", err)
	}
	switch {
	case p.Online != nil:
		return FramePresence, nil
	case p.Text != nil || p.File != nil:
		return FrameMessage, nil
	default:
		return FrameUnknown, nil
	}
}

// DistinctByID removes duplicate-id messages, keeping the first occurrence
// of each id in order. Messages with identical content but different ids
// are both kept.
func DistinctByID(msgs []Message) []Message {
	seen := make(map[string]bool, len(msgs))
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	return out
}

// FileURL derives the public URL of a stored attachment from its blob key.
func FileURL(bucket, key string) string {
	return "https://" + bucket + ".s3.amazonaws.com/" + key
}
