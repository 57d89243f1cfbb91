package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Conversation is the ordered transcript of a chat. Messages are only ever appended, and only the content of
// the last message may change. A Conversation is not safe for concurrent use, its owner serializes access.
type Conversation struct {
	messages []Message
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// AppendUserMessage appends a user message with the given text. It returns ErrEmptyMessage, and leaves the
// conversation untouched, if text is empty or whitespace only.
func (c *Conversation) AppendUserMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	c.append(RoleUser, text)
	return nil
}

// AppendPlaceholder appends an empty assistant message that deltas will be appended to.
func (c *Conversation) AppendPlaceholder() {
	c.append(RoleAssistant, "")
}

// AppendDelta concatenates text onto the last message.
func (c *Conversation) AppendDelta(text string) {
	if len(c.messages) == 0 {
		return
	}
	c.messages[len(c.messages)-1].Content += text
}

// SetLastContent overwrites the content of the last message.
func (c *Conversation) SetLastContent(text string) {
	if len(c.messages) == 0 {
		return
	}
	c.messages[len(c.messages)-1].Content = text
}

// Last returns the last message, and false if the conversation is empty.
func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Messages returns a copy of the transcript.
func (c *Conversation) Messages() []Message {
	msgs := make([]Message, len(c.messages))
	copy(msgs, c.messages)
	return msgs
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

func (c *Conversation) append(role Role, content string) {
	c.messages = append(c.messages, Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}
