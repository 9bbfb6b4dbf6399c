// Package validation provides write-time checks for registry input.
package validation

import (
	"errors"
	"fmt"

	"github.com/Emmet-Finance/Bridge-Data/internal/model"
	"github.com/Emmet-Finance/Bridge-Data/internal/types"
	"github.com/sirupsen/logrus"
)

// ErrTooManySteps is returned when a phase exceeds MaxStepsPerPhase
var ErrTooManySteps = errors.New("too many steps")

// ValidationOptions holds configuration for the validation process
type ValidationOptions struct {
	// StrictStepCodes rejects strategies containing codes outside the step
	// enumeration. When false, unknown codes are accepted and only fail at
	// fee lookup time.
	StrictStepCodes bool

	// MaxStepsPerPhase bounds each phase of a strategy. Zero means unbounded.
	MaxStepsPerPhase int
}

// DefaultValidationOptions returns the permissive defaults
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		StrictStepCodes:  false,
		MaxStepsPerPhase: 0,
	}
}

// ValidateStrategy checks a strategy against the options
func ValidateStrategy(key model.StrategyKey, s model.StrategyEntry, opts ValidationOptions) error {
	phases := []struct {
		name  string
		steps []types.StepCode
	}{
		{"foreign", s.Foreign},
		{"incoming", s.Incoming},
		{"local", s.Local},
	}

	for _, p := range phases {
		if opts.MaxStepsPerPhase > 0 && len(p.steps) > opts.MaxStepsPerPhase {
			return fmt.Errorf("%w: %s phase of %s has %d steps, limit is %d",
				ErrTooManySteps, p.name, key, len(p.steps), opts.MaxStepsPerPhase)
		}
		if !opts.StrictStepCodes {
			continue
		}
		for i, step := range p.steps {
			if !isValidStep(p.name, step) {
				logrus.WithFields(logrus.Fields{
					"route": key.String(),
					"phase": p.name,
					"index": i,
					"step":  step.String(),
				}).Debug("Rejected strategy step")
				return fmt.Errorf("%w: %s at %s[%d] of %s", types.ErrUnknownStepCode, step, p.name, i, key)
			}
		}
	}
	return nil
}

// isValidStep checks one code. Foreign steps must carry a fee component since
// the estimator sums them; the other phases accept any defined step except None.
func isValidStep(phase string, step types.StepCode) bool {
	if phase == "foreign" {
		return step.HasForeignFee()
	}
	return step.IsDefined() && step != types.StepNone
}
