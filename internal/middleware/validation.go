package middleware

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/capitalize-ai/komo-relay/internal/model"
)

// MaxContentBytes bounds a single text payload.
const MaxContentBytes = 100000

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError describes a request that cannot be relayed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + " " + e.Message
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidateMessageContent validates one text payload.
func ValidateMessageContent(content string) error {
	if len(content) > MaxContentBytes {
		return errors.New("exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("must be valid UTF-8")
	}
	return nil
}

// ValidateMessage validates the single-message request form.
func ValidateMessage(message string) error {
	if message == "" {
		return &ValidationError{Field: "message", Message: "cannot be empty"}
	}
	if err := ValidateMessageContent(message); err != nil {
		return &ValidationError{Field: "message", Message: err.Error()}
	}
	return nil
}

// ValidateConversation checks every turn's role and the size of its text.
func ValidateConversation(conv model.Conversation) error {
	if len(conv) == 0 {
		return &ValidationError{Field: "messages", Message: "must be a non-empty array"}
	}

	for i, turn := range conv {
		field := fmt.Sprintf("messages[%d]", i)

		if err := validate.Struct(turn); err != nil {
			var fieldErrs validator.ValidationErrors
			if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
				return &ValidationError{Field: field + ".role", Message: roleMessage(fieldErrs[0])}
			}
			return &ValidationError{Field: field, Message: err.Error()}
		}

		if err := validateContent(turn.Content); err != nil {
			return &ValidationError{Field: field + ".content", Message: err.Error()}
		}
	}
	return nil
}

func roleMessage(fe validator.FieldError) string {
	if fe.Tag() == "required" {
		return "is required"
	}
	return "must be one of system, user, assistant"
}

func validateContent(c model.Content) error {
	switch c.Kind {
	case model.ContentText, model.ContentOther:
		return ValidateMessageContent(c.Text)
	case model.ContentParts:
		total := 0
		for _, p := range c.Parts {
			if err := ValidateMessageContent(p.Text); err != nil {
				return err
			}
			total += len(p.Text)
		}
		if total > MaxContentBytes {
			return errors.New("exceeds maximum length")
		}
	}
	return nil
}
