// Package redact scrubs personally identifiable information from user text
// before it leaves the relay.
//
// Redaction is a fixed, ordered list of regular-expression substitutions.
// Order matters: later rules must not be shadowed by earlier, more general
// ones. Matches are replaced with placeholders that no rule matches again, so
// redacting twice gives the same text as redacting once. The rules are
// context-free and accept false positives; a 16-digit number is treated as an
// ID number whatever it really is.
package redact

import (
	"regexp"

	"github.com/capitalize-ai/komo-relay/internal/model"
)

// Category names a kind of PII.
type Category string

const (
	CategoryEmail      Category = "email"
	CategoryPhone      Category = "phone"
	CategoryNationalID Category = "national_id"
	CategoryCreditCard Category = "credit_card"
	CategoryDate       Category = "date"
	CategoryPostalCode Category = "postal_code"
)

// Rule replaces every match of Pattern with Replacement, literally.
type Rule struct {
	Name        string
	Category    Category
	Pattern     *regexp.Regexp
	Replacement string
}

// Apply runs the rule over text and reports whether it matched.
func (r Rule) Apply(text string) (string, bool) {
	if !r.Pattern.MatchString(text) {
		return text, false
	}
	return r.Pattern.ReplaceAllLiteralString(text, r.Replacement), true
}

var defaultRules = []Rule{
	{
		Name:        "email",
		Category:    CategoryEmail,
		Pattern:     regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`),
		Replacement: "[EMAIL_REDACTED]",
	},
	{
		// Country or trunk prefix followed by the subscriber number.
		Name:        "phone_local",
		Category:    CategoryPhone,
		Pattern:     regexp.MustCompile(`\b(\+62|08|62)\d{8,15}\b`),
		Replacement: "[PHONE_REDACTED]",
	},
	{
		Name:        "phone",
		Category:    CategoryPhone,
		Pattern:     regexp.MustCompile(`\b\d{3}[- .]?\d{3}[- .]?\d{4}\b`),
		Replacement: "[PHONE_REDACTED]",
	},
	{
		Name:        "national_id",
		Category:    CategoryNationalID,
		Pattern:     regexp.MustCompile(`\b\d{16}\b`),
		Replacement: "[ID_NUM_REDACTED]",
	},
	{
		Name:        "credit_card",
		Category:    CategoryCreditCard,
		Pattern:     regexp.MustCompile(`\b(?:\d{4}[- ]?){3}\d{4}\b`),
		Replacement: "[CREDIT_CARD_REDACTED]",
	},
	{
		Name:        "date_dmy",
		Category:    CategoryDate,
		Pattern:     regexp.MustCompile(`\b\d{1,2}[-/]\d{1,2}[-/]\d{4}\b`),
		Replacement: "[DATE_REDACTED]",
	},
	{
		Name:        "date_ymd",
		Category:    CategoryDate,
		Pattern:     regexp.MustCompile(`\b\d{4}[-/]\d{1,2}[-/]\d{1,2}\b`),
		Replacement: "[DATE_REDACTED]",
	},
	{
		// Only postal codes introduced by a keyword; bare 5-digit numbers are left alone.
		Name:        "postal_code",
		Category:    CategoryPostalCode,
		Pattern:     regexp.MustCompile(`(?i)\b(?:Zip|Code|Pos)\s*:?\s*(\d{5})\b`),
		Replacement: "ZIP [REDACTED]",
	},
}

// DefaultRules returns a copy of the built-in rule list, in application order.
func DefaultRules() []Rule {
	return append([]Rule(nil), defaultRules...)
}

// Result is the outcome of redacting one piece of text.
type Result struct {
	Text    string
	Changed bool
	// Categories lists the categories that fired, in rule order, without duplicates.
	Categories []Category
}

// Redactor applies an ordered rule list. It holds no mutable state and is
// safe for concurrent use.
type Redactor struct {
	rules []Rule
}

// New creates a redactor. With no rules it uses DefaultRules.
func New(rules ...Rule) *Redactor {
	if len(rules) == 0 {
		rules = defaultRules
	}
	return &Redactor{rules: append([]Rule(nil), rules...)}
}

// Rules returns the redactor's rules in application order.
func (r *Redactor) Rules() []Rule {
	return append([]Rule(nil), r.rules...)
}

// Redact applies every rule to the output of the previous one.
func (r *Redactor) Redact(text string) Result {
	res := Result{Text: text}
	for _, rule := range r.rules {
		out, matched := rule.Apply(res.Text)
		if !matched {
			continue
		}
		res.Text = out
		res.Changed = true
		res.addCategory(rule.Category)
	}
	return res
}

func (res *Result) addCategory(c Category) {
	for _, existing := range res.Categories {
		if existing == c {
			return
		}
	}
	res.Categories = append(res.Categories, c)
}

// RedactLatestUser redacts the newest turn when it is a user turn with string
// content. Any other shape is left untouched. conv itself is never modified.
func (r *Redactor) RedactLatestUser(conv model.Conversation) (model.Conversation, Result) {
	out := conv.Clone()

	idx := out.LatestUserIndex()
	if idx < 0 || out[idx].Content.Kind != model.ContentText {
		return out, Result{}
	}

	res := r.Redact(out[idx].Content.Text)
	out[idx].Content = model.TextContent(res.Text)
	return out, res
}

var std = New()

// Redact redacts text with the default rules.
func Redact(text string) Result {
	return std.Redact(text)
}

// RedactLatestUser redacts the newest user turn with the default rules.
func RedactLatestUser(conv model.Conversation) (model.Conversation, Result) {
	return std.RedactLatestUser(conv)
}
