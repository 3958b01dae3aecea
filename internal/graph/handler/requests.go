package handler

import (
	"zahori/internal/domain"
	dErrors "zahori/pkg/domain-errors"
)

type CreateCaseRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// Validate implements httputil.Validatable.
func (r *CreateCaseRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}

// SaveGraphRequest carries the complete node and link set of a case.
type SaveGraphRequest struct {
	Nodes []domain.Node `json:"nodes" validate:"max=10000"`
	Links []domain.Link `json:"links" validate:"max=50000"`
}

func (r *SaveGraphRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}
