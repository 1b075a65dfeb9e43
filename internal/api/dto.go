package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/engram/internal/index"
	"github.com/starford/engram/internal/knowledgeservice"
	"github.com/starford/engram/internal/models"
	"github.com/starford/engram/internal/parser"
)

// StageRequest is the request body for POST /vcs/stage.
type StageRequest struct {
	SessionIDs []string `json:"session_ids"`
	All        bool     `json:"all"`
}

// Validate requires either ids or the all flag.
func (r StageRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SessionIDs,
			validation.When(!r.All, validation.Required.Error("session_ids or all is required")),
			validation.Each(validation.Required)),
	)
}

// CommitRequest is the request body for POST /vcs/commit.
type CommitRequest struct {
	Message    string   `json:"message" example:"record retry decision"`
	SessionIDs []string `json:"session_ids"`
	All        bool     `json:"all"`
}

// Validate validates the commit request.
func (r CommitRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Message, validation.Required, validation.Length(1, 500)),
		validation.Field(&r.SessionIDs, validation.Each(validation.Required)),
	)
}

// BranchRequest is the request body for POST /vcs/branches.
type BranchRequest struct {
	Name  string `json:"name" example:"experiment"`
	Start string `json:"start,omitempty"`
}

// Validate validates the branch request. Name rules are enforced by the
// repository so they stay in one place.
func (r BranchRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 100)),
	)
}

// CheckoutRequest is the request body for POST /vcs/checkout.
type CheckoutRequest struct {
	Target string `json:"target" example:"main"`
	DryRun bool   `json:"dry_run"`
	Force  bool   `json:"force"`
}

// Validate validates the checkout request.
func (r CheckoutRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Target, validation.Required),
	)
}

// AppendBlockRequest is the request body for POST /blocks.
type AppendBlockRequest struct {
	Category  string `json:"category" example:"decisions"`
	SessionID string `json:"session_id,omitempty" example:"2025-01-01-retry"`
	Content   string `json:"content"`
	TTL       string `json:"ttl,omitempty" example:"30d"`
}

// Validate validates the append request.
func (r AppendBlockRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Category, validation.Required),
		validation.Field(&r.SessionID, validation.Match(parser.SessionIDRe)),
		validation.Field(&r.Content, validation.Required),
		validation.Field(&r.TTL, validation.Match(parser.TTLRe)),
	)
}

// LogResponse wraps a history listing.
type LogResponse struct {
	Commits []models.Commit `json:"commits"`
}

// BranchListResponse wraps the branch listing.
type BranchListResponse struct {
	Branches []models.Branch `json:"branches"`
}

// StageResponse reports how many ids were newly staged.
type StageResponse struct {
	Staged int `json:"staged"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results"`
}

// BlockListResponse wraps paginated block listings.
type BlockListResponse struct {
	Blocks []index.BlockRow `json:"blocks"`
	Total  int              `json:"total"`
}

// BlockDetail is the full block response type (aliased from the domain layer).
type BlockDetail = knowledgeservice.BlockDetail
