package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

// maxMessageBytes caps inbound buyer text (~100KB). Anything larger is
// rejected at the edge before it reaches the event bus, the message
// table, or a model prompt.
const maxMessageBytes = 100000

// ValidateMessageContent validates buyer-supplied message text.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > maxMessageBytes {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid conversation ID format")
	}
	return nil
}
