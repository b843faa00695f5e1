// Package model defines data structures for the chat relay.
package model

import (
	"bytes"
	"encoding/json"
)

// Conversation is an ordered sequence of turns, oldest first.
type Conversation []Turn

// DecodeConversation decodes an untrusted JSON value into a conversation.
// It returns false when the value is not a JSON array. Elements that are not
// turn-shaped decode as empty turns rather than failing the whole value.
func DecodeConversation(data []byte) (Conversation, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil, false
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, false
	}

	conv := make(Conversation, len(raws))
	for i, raw := range raws {
		_ = conv[i].UnmarshalJSON(raw)
	}
	return conv, true
}

// Clone returns a deep copy of the conversation.
func (c Conversation) Clone() Conversation {
	if c == nil {
		return nil
	}
	out := make(Conversation, len(c))
	for i, turn := range c {
		out[i] = Turn{Role: turn.Role, Content: turn.Content.clone()}
	}
	return out
}

// SystemIndex returns the index of the first system turn, or -1.
func (c Conversation) SystemIndex() int {
	for i, turn := range c {
		if turn.Role == RoleSystem {
			return i
		}
	}
	return -1
}

// HasSystem reports whether the conversation contains a system turn.
func (c Conversation) HasSystem() bool {
	return c.SystemIndex() >= 0
}

// LatestUserIndex returns the index of the newest turn if it was authored by
// the user, or -1 otherwise.
func (c Conversation) LatestUserIndex() int {
	last := len(c) - 1
	if last < 0 || c[last].Role != RoleUser {
		return -1
	}
	return last
}
