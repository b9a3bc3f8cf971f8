// Package gateway is the boundary to the secure computation cluster.
//
// The engine hands a job to the cluster with Submit, which returns at once,
// and later blocks in Await for the result. A job runs at most once: a
// resubmitted job ID maps to the same handle. A result can be taken exactly
// once; a handle whose Await timed out is abandoned and its late result is
// dropped.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MJE43/buried-treasure-go/internal/board"
	"github.com/MJE43/buried-treasure-go/internal/grid"
)

var (
	ErrRateLimited   = errors.New("gateway: rate limited")
	ErrUnavailable   = errors.New("gateway: cluster unavailable")
	ErrTimedOut      = errors.New("gateway: timed out awaiting result")
	ErrUnknownHandle = errors.New("gateway: unknown or already retrieved handle")
	ErrRejected      = errors.New("gateway: job rejected by cluster")
	ErrInvalidJob    = errors.New("gateway: invalid job")
)

// Kind selects the computation a job runs.
type Kind string

const (
	KindMove    Kind = "move"
	KindExplore Kind = "explore"
	KindDig     Kind = "dig"
	KindBury    Kind = "bury"
)

func (k Kind) Valid() bool {
	switch k {
	case KindMove, KindExplore, KindDig, KindBury:
		return true
	}
	return false
}

// Handle refers to a submitted job.
type Handle string

// Job is one unit of work. EncryptedInput is an Input sealed to Requester.
type Job struct {
	ID             uuid.UUID `json:"id"`
	Kind           Kind      `json:"kind"`
	Requester      string    `json:"requester"`
	EncryptedInput []byte    `json:"encryptedInput"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

// Input is the plaintext of a job.
type Input struct {
	Target grid.Coord `json:"target"`
	Amount uint       `json:"amount,omitempty"`
}

// Output is the plaintext of a result. Tile is set for explore and dig.
type Output struct {
	Target grid.Coord  `json:"target"`
	Tile   *board.Tile `json:"tile,omitempty"`
}

// Result is what Await hands back. Payload is an Output sealed to the job's
// requester. Failure is set when the cluster refused the job.
type Result struct {
	JobID   uuid.UUID `json:"jobId"`
	Kind    Kind      `json:"kind"`
	Payload []byte    `json:"payload,omitempty"`
	Failure string    `json:"failure,omitempty"`
}

// Err converts a cluster refusal into ErrRejected.
func (r Result) Err() error {
	if r.Failure == "" {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrRejected, r.Failure)
}

// Gateway is the submit/await contract.
type Gateway interface {
	Submit(ctx context.Context, job Job) (Handle, error)
	Await(ctx context.Context, h Handle, timeout time.Duration) (Result, error)
}

// Checker is implemented by gateways that can report readiness.
type Checker interface {
	Check(ctx context.Context) error
}

// NewJob seals in for requester and stamps a fresh ID.
func NewJob(kind Kind, requester string, in Input) (Job, error) {
	sealed, err := Seal(requester, in)
	if err != nil {
		return Job{}, err
	}
	return Job{
		ID:             uuid.New(),
		Kind:           kind,
		Requester:      requester,
		EncryptedInput: sealed,
		SubmittedAt:    time.Now().UTC(),
	}, nil
}

func (j Job) validate() error {
	switch {
	case j.ID == uuid.Nil:
		return fmt.Errorf("%w: missing id", ErrInvalidJob)
	case !j.Kind.Valid():
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidJob, j.Kind)
	case j.Requester == "":
		return fmt.Errorf("%w: missing requester", ErrInvalidJob)
	case len(j.EncryptedInput) == 0:
		return fmt.Errorf("%w: missing input", ErrInvalidJob)
	}
	return nil
}
