package models

import "time"

// Message is a single chat turn in a tutoring conversation.
type Message struct {
	ID             int       `json:"id"`
	ConversationID int       `json:"conversationId"`
	Sender         string    `json:"sender"`
	Content        string    `json:"content"`
	SentAt         time.Time `json:"sentAt"`
}

// MessageContext is the window of messages around a flagged message. It is built
// per request and never persisted.
type MessageContext struct {
	ConversationID   int       `json:"conversationId"`
	FlaggedMessageID int       `json:"flaggedMessageId"`
	Before           []Message `json:"before"`
	Flagged          Message   `json:"flagged"`
	After            []Message `json:"after"`
}

// Window builds the context of messageID from an ordered conversation, taking up
// to size messages on each side. ErrNotFound is returned when messageID is not part
// of msgs.
func Window(conversationID, messageID int, msgs []Message, size int) (MessageContext, error) {
	if size < 0 {
		size = 0
	}
	idx := -1
	for i, m := range msgs {
		if m.ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return MessageContext{}, ErrNotFound
	}
	lo := idx - size
	if lo < 0 {
		lo = 0
	}
	hi := idx + 1 + size
	if hi > len(msgs) {
		hi = len(msgs)
	}
	ctx := MessageContext{
		ConversationID:   conversationID,
		FlaggedMessageID: messageID,
		Before:           append([]Message{}, msgs[lo:idx]...),
		Flagged:          msgs[idx],
		After:            append([]Message{}, msgs[idx+1:hi]...),
	}
	return ctx, nil
}
