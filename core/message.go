package core

import "github.com/google/uuid"

// MessageType distinguishes the two (and only two) message directions.
type MessageType string

const (
	// MessageForward travels caller -> callee and opens a call node.
	MessageForward MessageType = "forward"
	// MessageReturn travels callee -> caller and closes a call node. It
	// always targets the exact sender of the forward that produced it.
	MessageReturn MessageType = "return"
)

// Message is the envelope exchanged between call nodes. A forward/return
// pair shares one CallID; no other routing topology exists.
type Message struct {
	Type        MessageType  `json:"type"`
	Sender      string       `json:"sender"`
	Receiver    string       `json:"receiver"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CallID      string       `json:"call_id"`
}

// NewID generates a unique identifier for call nodes, messages and events.
func NewID() string { return uuid.NewString() }
