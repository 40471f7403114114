package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/linkmend/internal/linkservice"
	"github.com/starford/linkmend/internal/models"
)

// RepairRequest is the request body for repairing one broken link.
type RepairRequest struct {
	Document    string `json:"document" example:"/workspace/index.md" validate:"required"`
	Target      string `json:"target" example:"/workspace/old/name.md" validate:"required"`
	Replacement string `json:"replacement,omitempty" example:"/workspace/archive/old/name.md"`
}

// Validate checks the required fields.
func (r RepairRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Document, validation.Required),
		validation.Field(&r.Target, validation.Required),
	)
}

// AutoRepairRequest is the optional request body for an auto-repair pass.
type AutoRepairRequest struct {
	DryRun bool `json:"dry_run" example:"true"`
}

// MoveRequest is the request body for moving a document.
type MoveRequest struct {
	From string `json:"from" example:"guide/setup.md" validate:"required"`
	To   string `json:"to" example:"archive/setup.md" validate:"required"`
}

// Validate checks the required fields.
func (r MoveRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.From, validation.Required),
		validation.Field(&r.To, validation.Required, validation.By(differentFrom(r.From))),
	)
}

func differentFrom(other string) validation.RuleFunc {
	return func(value interface{}) error {
		if s, _ := value.(string); s == other {
			return validation.NewError("validation_same_path", "must differ from the source path")
		}
		return nil
	}
}

// DocumentListResponse wraps the indexed documents.
type DocumentListResponse struct {
	Documents []models.DocumentMetadata `json:"documents" validate:"required"`
	Total     int                       `json:"total" example:"42" validate:"required"`
}

// DocumentLinksResponse holds the outgoing and incoming links of a document.
type DocumentLinksResponse struct {
	Path      string                 `json:"path" example:"/workspace/index.md" validate:"required"`
	Links     []models.LinkReference `json:"links" validate:"required"`
	Backlinks []string               `json:"backlinks" validate:"required"`
}

// BrokenResponse wraps the broken links found by a probe.
type BrokenResponse struct {
	Broken []models.BrokenLink `json:"broken" validate:"required"`
	Total  int                 `json:"total" example:"3" validate:"required"`
}

// CandidatesResponse is the candidate set for one broken path plus the
// automatic selection, if any.
type CandidatesResponse struct {
	models.CandidateSet
	Selected string `json:"selected,omitempty" example:"/workspace/archive/old/name.md"`
}

// Aliases from the domain layer.
type (
	ScanReport       = linkservice.ScanReport
	RepairOutcome    = linkservice.RepairOutcome
	AutoRepairReport = linkservice.AutoRepairReport
	MoveReport       = linkservice.MoveReport
)
