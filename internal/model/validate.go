package model

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

// Validate checks the fields the hub requires on an inbound document.
func (d *Document) Validate() error {
	if d.ID == uuid.Nil {
		return fmt.Errorf("document id is required")
	}
	return validation.ValidateStruct(d,
		validation.Field(&d.Name, validation.Required),
		validation.Field(&d.OwnerID, validation.Required),
	)
}

// Validate checks the fields the hub requires on an inbound annotation.
func (a *Annotation) Validate() error {
	if a.ID == uuid.Nil {
		return fmt.Errorf("annotation id is required")
	}
	if a.DocumentID == uuid.Nil {
		return fmt.Errorf("annotation document id is required")
	}
	return validation.ValidateStruct(a,
		validation.Field(&a.OwnerID, validation.Required),
		validation.Field(&a.Width, validation.Min(0.0)),
	)
}
