package api

import (
	"fmt"

	"github.com/MJE43/buried-treasure-go/internal/game"
	"github.com/MJE43/buried-treasure-go/internal/grid"
)

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateWallet checks the identity field shared by every route.
func ValidateWallet(wallet string) error {
	if wallet == "" {
		return &ValidationError{Field: "wallet", Message: "wallet is required"}
	}
	if len(wallet) > game.MaxIdentityLength {
		return &ValidationError{Field: "wallet", Message: fmt.Sprintf("wallet must be at most %d characters", game.MaxIdentityLength)}
	}
	return nil
}

// ValidateTarget checks that both coordinates are present. Bounds are a
// game rule and are enforced by the engine.
func ValidateTarget(req *ActionRequest) (grid.Coord, error) {
	if err := ValidateWallet(req.Wallet); err != nil {
		return grid.Coord{}, err
	}
	if req.TargetX == nil {
		return grid.Coord{}, &ValidationError{Field: "targetX", Message: "targetX is required"}
	}
	if req.TargetY == nil {
		return grid.Coord{}, &ValidationError{Field: "targetY", Message: "targetY is required"}
	}
	return grid.Coord{X: *req.TargetX, Y: *req.TargetY}, nil
}

// ValidateBury additionally requires a non-negative amount.
func ValidateBury(req *ActionRequest) (grid.Coord, uint, error) {
	target, err := ValidateTarget(req)
	if err != nil {
		return grid.Coord{}, 0, err
	}
	if req.Amount == nil {
		return grid.Coord{}, 0, &ValidationError{Field: "amount", Message: "amount is required"}
	}
	if *req.Amount < 0 {
		return grid.Coord{}, 0, &ValidationError{Field: "amount", Message: "amount must not be negative"}
	}
	return target, uint(*req.Amount), nil
}
