// Package pause holds the boolean gate consulted by collateral transfers.
package pause

import (
	"magbot/internal/registry"
	dErrors "magbot/pkg/domain-errors"
)

var (
	// ErrPaused is returned when a gated operation runs while paused, or when
	// pausing an already paused gate.
	ErrPaused = registry.NewError(dErrors.CodeConflict, "registry is paused", "EnforcedPause")

	// ErrNotPaused is returned when unpausing a gate that is not paused.
	ErrNotPaused = registry.NewError(dErrors.CodeConflict, "registry is not paused", "ExpectedPause")
)

// Gate is a value type; registries persist it inside their instance state.
type Gate struct {
	Paused bool
}

// Pause returns the paused gate.
func (g Gate) Pause() (Gate, error) {
	if g.Paused {
		return g, ErrPaused
	}
	return Gate{Paused: true}, nil
}

// Unpause returns the running gate.
func (g Gate) Unpause() (Gate, error) {
	if !g.Paused {
		return g, ErrNotPaused
	}
	return Gate{Paused: false}, nil
}

// WhenNotPaused fails with ErrPaused while the gate is closed.
func (g Gate) WhenNotPaused() error {
	if g.Paused {
		return ErrPaused
	}
	return nil
}
