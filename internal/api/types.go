package api

import (
	"github.com/MJE43/buried-treasure-go/internal/accounts"
	"github.com/MJE43/buried-treasure-go/internal/game"
	"github.com/MJE43/buried-treasure-go/internal/store"
)

// EngineError represents a structured error response with context
type EngineError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
	Retryable bool                   `json:"retryable"`
}

// Error implements the error interface
func (e EngineError) Error() string {
	return e.Message
}

// Error types. The engine kinds are used verbatim so clients can map them
// back onto game.Kind.
const (
	ErrTypeInvalidInput       = string(game.KindInvalidInput)
	ErrTypeNotRegistered      = string(game.KindNotRegistered)
	ErrTypeRuleViolation      = string(game.KindRuleViolation)
	ErrTypeBusy               = string(game.KindBusy)
	ErrTypeComputeUnavailable = string(game.KindComputeUnavailable)
	ErrTypeTimedOut           = string(game.KindTimedOut)
	ErrTypeInternal           = string(game.KindInternal)
)

// ErrorCategory represents error categories for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryGame       ErrorCategory = "game"
	CategoryCompute    ErrorCategory = "compute"
	CategorySystem     ErrorCategory = "system"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeInvalidInput:
		return CategoryValidation
	case ErrTypeNotRegistered, ErrTypeRuleViolation, ErrTypeBusy:
		return CategoryGame
	case ErrTypeComputeUnavailable, ErrTypeTimedOut:
		return CategoryCompute
	default:
		return CategorySystem
	}
}

// VersionInfo contains engine version information
type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
}

// ActionRequest is the body of every game route. Pointers tell a missing
// coordinate apart from zero.
type ActionRequest struct {
	Wallet  string `json:"wallet"`
	TargetX *int   `json:"targetX,omitempty"`
	TargetY *int   `json:"targetY,omitempty"`
	Amount  *int64 `json:"amount,omitempty"`
}

// StateResponse wraps a full player record. Outstanding is the caller's own
// buried gold not yet dug up.
type StateResponse struct {
	State       store.PlayerRecord `json:"state"`
	Outstanding uint               `json:"outstanding"`
}

// LeaderboardResponse lists public counters only.
type LeaderboardResponse struct {
	Players       []game.Standing `json:"players"`
	EngineVersion string          `json:"engine_version"`
}

// EventsResponse is the public action feed.
type EventsResponse struct {
	Events        []game.ActionEvent `json:"events"`
	EngineVersion string             `json:"engine_version"`
}

// FactsResponse lists committed public facts.
type FactsResponse struct {
	Facts         []accounts.Entry `json:"facts"`
	EngineVersion string           `json:"engine_version"`
}
