// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when a referenced entity does not exist
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

func NewCampaignNotFound(id string) error {
	return &NotFoundError{Entity: "campaign", ID: id}
}

func NewTemplateNotFound(id string) error {
	return &NotFoundError{Entity: "template", ID: id}
}

func NewSubscriberNotFound(id string) error {
	return &NotFoundError{Entity: "subscriber", ID: id}
}

// NewSentEmailNotFound is keyed by the provider message id, not the row id.
func NewSentEmailNotFound(providerID string) error {
	return &NotFoundError{Entity: "sent email", ID: providerID}
}

// ValidationError reports bad caller input. Handlers map it to 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

var (
	ErrCampaignAlreadySent = errors.New("campaign has already been sent")
	ErrCampaignBusy        = errors.New("campaign is already being sent")
	ErrAlreadyOnWaitlist   = errors.New("email is already on the waitlist")
	ErrUnsupportedAudience = errors.New("unsupported audience type")
)

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
