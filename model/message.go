package model

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"net/mail"
	"strings"
)

// Message is one raw message read from a mail archive. It is only valid for the
// duration of the iteration step that produced it.
type Message struct {
	// Index is the zero-based position of the message in its archive.
	Index int
	ID    string
	Hash  string
	Raw   []byte
}

// NewMessage builds a Message, deriving ID and Hash from raw.
func NewMessage(index int, raw []byte) Message {
	return Message{
		Index: index,
		ID:    messageID(raw),
		Hash:  Hash(raw),
		Raw:   raw,
	}
}

// Size returns the raw message size in bytes.
func (m Message) Size() int64 {
	return int64(len(m.Raw))
}

// Hash returns the base64 encoded SHA-256 of a raw message.
func Hash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// messageID returns the Message-Id header without angle brackets, or an empty
// string. Bounces generated by some MTAs carry none.
func messageID(raw []byte) string {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return ""
	}
	id := strings.TrimSpace(msg.Header.Get("Message-Id"))
	return strings.Trim(id, " <>")
}
