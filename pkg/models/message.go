package models

// Sender identifies which side of a conversation authored a message.
type Sender string

const (
	SenderUser         Sender = "user"
	SenderCounterparty Sender = "counterparty"
)

// Valid reports whether s is one of the two known senders.
func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderCounterparty
}

// MaxAttachments caps how many attachments a single message may carry.
const MaxAttachments = 5

// Attachment is an already-decoded file shared inside a message. Payload
// travels base64-encoded on the wire (encoding/json default for []byte).
type Attachment struct {
	Payload   []byte `json:"payload"`
	Filename  string `json:"filename"`
	MediaType string `json:"mediaType,omitempty"`
}

type Message struct {
	ID     string `json:"id"`
	Thread string `json:"thread"`
	Sender Sender `json:"sender"`
	// Body may be empty only when at least one attachment is present.
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
	// TS is the creation instant in unix nanoseconds. Within a thread it
	// is non-decreasing; insertion order remains the authoritative order.
	TS int64 `json:"ts"`
	// Read is the only mutable field of a stored message.
	Read bool `json:"read"`
}

// MessagePatch is a partial update merged into a stored message. Nil
// fields are left untouched. ID, thread, sender and timestamp are not
// patchable; stored messages are immutable apart from body corrections
// and the read flag.
type MessagePatch struct {
	Body *string `json:"body,omitempty"`
	Read *bool   `json:"read,omitempty"`
}
