package imap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptions_Validate(t *testing.T) {
	assert.EqualError(t, Options{}.validate(), "imap host is empty")
	assert.EqualError(t, Options{Host: "imap.example.com"}.validate(), "imap port must be positive")
	assert.NoError(t, Options{Host: "imap.example.com", Port: 993}.validate())
}

func TestOptions_Mailbox(t *testing.T) {
	assert.Equal(t, "INBOX", Options{}.mailbox())
	assert.Equal(t, "Bounces", Options{Mailbox: "Bounces"}.mailbox())
}

func TestOpen_InvalidOptions(t *testing.T) {
	_, err := Open(context.Background(), Options{Port: 993}, nil)
	assert.Error(t, err)
}

func TestSource_CloseWithoutConnection(t *testing.T) {
	s := &Source{}
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
