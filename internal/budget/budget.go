// Package budget estimates the token cost of conversations and trims them to
// fit a model's context window.
//
// Token counts are an estimate, not the output of a real tokenizer: a token
// is taken to be about four characters of text, and every turn pays a fixed
// overhead for its role metadata. The estimate is only used to decide which
// turns to keep.
package budget

import (
	"strings"
	"unicode/utf16"

	"github.com/capitalize-ai/komo-relay/internal/model"
)

const (
	// CharsPerToken is the characters-per-token ratio of the estimate.
	CharsPerToken = 4

	// RoleOverhead is the fixed cost charged once per turn.
	RoleOverhead = 3

	// MediaPartCost is the fixed cost of an image or audio part, regardless of size.
	MediaPartCost = 3

	// DefaultMaxTokens is the budget used when none is configured.
	DefaultMaxTokens = 2048
)

// Estimate returns the approximate token count of text: zero for empty text,
// otherwise ceil(length/4) and never less than one. Length is measured in
// UTF-16 code units, so a character outside the Basic Multilingual Plane
// counts twice.
func Estimate(text string) int {
	n := utf16Len(text)
	if n == 0 {
		return 0
	}
	return max(1, (n+CharsPerToken-1)/CharsPerToken)
}

func utf16Len(text string) int {
	n := 0
	for _, r := range text {
		n += utf16.RuneLen(r)
	}
	return n
}

// EstimateTurn returns the approximate token count of a turn, including the
// role overhead. A turn with no content costs the overhead alone.
func EstimateTurn(turn model.Turn) int {
	total := RoleOverhead

	switch turn.Content.Kind {
	case model.ContentText:
		total += Estimate(turn.Content.Text)
	case model.ContentOther:
		total += Estimate(otherText(turn.Content.Text))
	case model.ContentParts:
		for _, part := range turn.Content.Parts {
			total += estimatePart(part)
		}
	}
	return total
}

// objectText stands in for object content, whatever its size.
const objectText = "[object Object]"

// otherText returns the text a non-string scalar is costed as. Numbers and
// booleans cost their literal; objects cost objectText.
func otherText(raw string) string {
	if strings.HasPrefix(strings.TrimSpace(raw), "{") {
		return objectText
	}
	return raw
}

func estimatePart(part model.Part) int {
	switch {
	case part.Kind == model.PartText, part.Kind == model.PartString:
		return Estimate(part.Text)
	case part.Kind.IsMedia():
		return MediaPartCost
	default:
		return 0
	}
}

// EstimateConversation returns the sum of EstimateTurn over all turns.
// A nil conversation costs zero.
func EstimateConversation(conv model.Conversation) int {
	total := 0
	for _, turn := range conv {
		total += EstimateTurn(turn)
	}
	return total
}

// Truncate returns the largest suffix of conv's non-system turns that fits in
// maxTokens together with the system turn.
//
// The first system turn is always kept and placed first; any other system
// turn is discarded. Non-system turns are considered newest first and the walk
// stops at the first turn that would push the total over maxTokens, so a turn
// that lands exactly on the budget is kept. Turns are never split. If the
// system turn alone exceeds the budget the result holds only the system turn.
//
// The input is not modified. A nil conversation is returned unchanged.
func Truncate(conv model.Conversation, maxTokens int) model.Conversation {
	if conv == nil {
		return nil
	}

	sysIdx := conv.SystemIndex()
	total := 0
	if sysIdx >= 0 {
		total = EstimateTurn(conv[sysIdx])
	}

	// Index of the oldest accepted non-system turn.
	start := len(conv)
	for i := len(conv) - 1; i >= 0; i-- {
		if conv[i].Role == model.RoleSystem {
			continue
		}
		cost := EstimateTurn(conv[i])
		if total+cost > maxTokens {
			break
		}
		total += cost
		start = i
	}

	out := make(model.Conversation, 0, len(conv)-start+1)
	if sysIdx >= 0 {
		out = append(out, conv[sysIdx])
	}
	for _, turn := range conv[start:] {
		if turn.Role != model.RoleSystem {
			out = append(out, turn)
		}
	}
	return out.Clone()
}
