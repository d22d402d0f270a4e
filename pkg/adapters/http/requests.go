package http

import (
	"errors"
	"fmt"

	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// AddNodeRequest is the body of POST /nodes.
type AddNodeRequest struct {
	Identifier string          `json:"identifier" validate:"required,max=200"`
	Parent     domain.NodeID   `json:"parent"`
	Name       string          `json:"name" validate:"omitempty,max=100"`
	Custom     map[string]any  `json:"custom" validate:"omitempty,max=100"`
	Ports      domain.PortList `json:"ports" validate:"omitempty,max=256"`
}

// ArcRequest is the body of POST and DELETE /arcs.
type ArcRequest struct {
	SrcNode domain.NodeID `json:"src_node" validate:"required,min=1"`
	SrcPort uint32        `json:"src_port"`
	DstNode domain.NodeID `json:"dst_node" validate:"required,min=1"`
	DstPort uint32        `json:"dst_port"`
}

func (r ArcRequest) Arc() domain.Arc {
	return domain.NewArc(r.SrcNode, r.SrcPort, r.DstNode, r.DstPort)
}

// PropertyRequest is the body of PATCH /nodes/{id}/properties. A null
// value removes a custom key.
type PropertyRequest struct {
	Key   string `json:"key" validate:"required,max=100"`
	Value any    `json:"value"`
}

type NodeResponse struct {
	domain.Node
	Warning string `json:"warning,omitempty"`
}

type ApplyResponse struct {
	Nodes    int      `json:"nodes"`
	Rejected []string `json:"rejected,omitempty"`
}

type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// Validate checks a request struct against its validate tags.
func Validate(req any) error {
	if err := validate.Struct(req); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError reports the first failing field.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	e := verrs[0]
	switch e.Tag() {
	case "required":
		return fmt.Errorf("%s: field is required", e.Field())
	case "min":
		return fmt.Errorf("%s: must be at least %s", e.Field(), e.Param())
	case "max":
		return fmt.Errorf("%s: must not exceed %s", e.Field(), e.Param())
	default:
		return fmt.Errorf("%s: failed %s validation", e.Field(), e.Tag())
	}
}
