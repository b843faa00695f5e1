package model

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// PartKind identifies the payload of a content part.
type PartKind string

const (
	PartText     PartKind = "text"
	PartImageURL PartKind = "image_url"
	PartImage    PartKind = "image"
	PartAudio    PartKind = "audio"

	// PartString is a bare JSON string inside a content array.
	PartString PartKind = "string"
	// PartUnknown is any part shape the relay does not understand.
	PartUnknown PartKind = "unknown"
)

// IsMedia reports whether the part carries non-text data.
func (k PartKind) IsMedia() bool {
	return k == PartImageURL || k == PartImage || k == PartAudio
}

// Part is one element of a multi-part message content.
type Part struct {
	Kind     PartKind
	Text     string
	ImageURL string

	// raw keeps the original encoding so unknown parts round-trip untouched.
	raw json.RawMessage
}

// TextPart creates a text part.
func TextPart(text string) Part {
	return Part{Kind: PartText, Text: text}
}

// ImageURLPart creates an image_url part.
func ImageURLPart(url string) Part {
	return Part{Kind: PartImageURL, ImageURL: url}
}

// UnmarshalJSON decodes a part leniently. It never fails: shapes it cannot
// classify become PartUnknown.
func (p *Part) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*p = Part{Kind: PartUnknown, raw: append(json.RawMessage(nil), data...)}

	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			p.Kind = PartString
			p.Text = s
		}
	case '{':
		var obj struct {
			Type     string          `json:"type"`
			Text     json.RawMessage `json:"text"`
			ImageURL json.RawMessage `json:"image_url"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil
		}
		switch PartKind(obj.Type) {
		case PartText:
			var text string
			if err := json.Unmarshal(obj.Text, &text); err == nil {
				p.Kind = PartText
				p.Text = text
			}
		case PartImageURL:
			p.Kind = PartImageURL
			p.ImageURL = decodeImageURL(obj.ImageURL)
		case PartImage, PartAudio:
			p.Kind = PartKind(obj.Type)
		}
	}
	return nil
}

// MarshalJSON re-encodes the part, preferring the original bytes.
func (p Part) MarshalJSON() ([]byte, error) {
	if len(p.raw) > 0 {
		return p.raw, nil
	}
	switch p.Kind {
	case PartString:
		return json.Marshal(p.Text)
	case PartText:
		return json.Marshal(map[string]string{"type": string(PartText), "text": p.Text})
	case PartImageURL:
		return json.Marshal(map[string]any{
			"type":      string(PartImageURL),
			"image_url": map[string]string{"url": p.ImageURL},
		})
	case PartImage, PartAudio:
		return json.Marshal(map[string]string{"type": string(p.Kind)})
	default:
		return []byte("null"), nil
	}
}

func decodeImageURL(raw json.RawMessage) string {
	var url string
	if err := json.Unmarshal(raw, &url); err == nil {
		return url
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.URL
	}
	return ""
}

// ContentKind identifies which payload a Content holds.
type ContentKind int

const (
	ContentEmpty ContentKind = iota
	ContentText
	ContentParts
	// ContentOther is a non-string scalar or object; Text holds its raw JSON.
	ContentOther
)

// Content is the single logical payload of a turn.
type Content struct {
	Kind  ContentKind
	Text  string
	Parts []Part
}

// TextContent creates string content. An empty string yields empty content.
func TextContent(text string) Content {
	if text == "" {
		return Content{}
	}
	return Content{Kind: ContentText, Text: text}
}

// PartsContent creates multi-part content.
func PartsContent(parts ...Part) Content {
	return Content{Kind: ContentParts, Parts: parts}
}

// IsEmpty reports whether the content carries no payload.
func (c Content) IsEmpty() bool {
	return c.Kind == ContentEmpty
}

// String returns the string payload, or "" when the content is not a string.
func (c Content) String() string {
	if c.Kind == ContentText {
		return c.Text
	}
	return ""
}

// UnmarshalJSON decodes content leniently; it never fails on shape mismatches.
// Falsy scalars (false, 0) decode as empty content.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*c = Content{}

	if len(data) == 0 || bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte("false")) {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*c = Content{Kind: ContentOther, Text: string(data)}
			return nil
		}
		*c = TextContent(s)
	case '[':
		var raws []json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil {
			*c = Content{Kind: ContentOther, Text: string(data)}
			return nil
		}
		parts := make([]Part, len(raws))
		for i, raw := range raws {
			_ = parts[i].UnmarshalJSON(raw)
		}
		*c = Content{Kind: ContentParts, Parts: parts}
	default:
		if f, err := strconv.ParseFloat(string(data), 64); err == nil && f == 0 {
			return nil
		}
		*c = Content{Kind: ContentOther, Text: string(data)}
	}
	return nil
}

// MarshalJSON encodes content in the shape it was received in.
func (c Content) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case ContentText:
		return json.Marshal(c.Text)
	case ContentParts:
		parts := c.Parts
		if parts == nil {
			parts = []Part{}
		}
		return json.Marshal(parts)
	case ContentOther:
		if json.Valid([]byte(c.Text)) {
			return []byte(c.Text), nil
		}
		return json.Marshal(c.Text)
	default:
		return []byte(`""`), nil
	}
}

func (c Content) clone() Content {
	if c.Parts == nil {
		return c
	}
	parts := make([]Part, len(c.Parts))
	copy(parts, c.Parts)
	c.Parts = parts
	return c
}

// Turn represents one message exchanged in a conversation.
type Turn struct {
	Role    Role    `json:"role" validate:"required,oneof=system user assistant"`
	Content Content `json:"content"`
}

// NewTurn creates a turn with string content.
func NewTurn(role Role, text string) Turn {
	return Turn{Role: role, Content: TextContent(text)}
}

// UnmarshalJSON decodes a turn leniently. Non-object values and non-string
// roles decode to a turn with an empty role.
func (t *Turn) UnmarshalJSON(data []byte) error {
	*t = Turn{}

	var obj struct {
		Role    json.RawMessage `json:"role"`
		Content Content         `json:"content"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}

	var role string
	if err := json.Unmarshal(obj.Role, &role); err == nil {
		t.Role = Role(role)
	}
	t.Content = obj.Content
	return nil
}
