package server

import (
	"bidforge/internal/domain"
)

// GenerateRequest starts a generation. When StrategyName is set the call is
// synchronous and returns a single draft instead of dispatching a job.
type GenerateRequest struct {
	ProjectName  string  `json:"project_name" example:"Casework Platform"`
	ClientName   string  `json:"client_name" example:"Riverdale Council"`
	RFPText      string  `json:"rfp_text,omitempty"`
	OwnerID      *string `json:"owner_id,omitempty"`
	StrategyName string  `json:"strategy_name,omitempty" enum:",Safe,Innovative,Disruptive"`
}

// GenerateResponse carries either the dispatched job id or, for the
// synchronous single-strategy mode, the draft itself.
type GenerateResponse struct {
	JobID string                `json:"job_id,omitempty"`
	Draft *domain.StrategyDraft `json:"draft,omitempty"`
}

type JobListResponse struct {
	Items      []domain.ProposalJob `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

type ResearchRequest struct {
	ProjectName string `json:"project_name"`
	ClientName  string `json:"client_name"`
	RFPText     string `json:"rfp_text,omitempty"`
}

type DraftRequest struct {
	StrategyName string `json:"strategy_name" enum:"Safe,Innovative,Disruptive"`
	ProjectName  string `json:"project_name"`
	ClientName   string `json:"client_name"`
	Research     string `json:"research,omitempty"`
}

type CritiqueRequest struct {
	Text string `json:"text"`
}

type HumanizeRequest struct {
	Text string `json:"text"`
}

type WriteRequest struct {
	ProjectName string               `json:"project_name"`
	ClientName  string               `json:"client_name"`
	Draft       domain.StrategyDraft `json:"draft"`
}

type EventListResponse struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
