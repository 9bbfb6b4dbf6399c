package registry

import (
	"errors"

	"github.com/Emmet-Finance/Bridge-Data/internal/access"
	"github.com/Emmet-Finance/Bridge-Data/internal/estimate"
	"github.com/Emmet-Finance/Bridge-Data/internal/oracle"
	"github.com/Emmet-Finance/Bridge-Data/internal/types"
)

// ErrArgumentMismatch is returned by batch writes whose argument slices differ in length
var ErrArgumentMismatch = errors.New("argument length mismatch")

// Errors surfaced by registry and estimator operations
var (
	ErrUnauthorized       = access.ErrUnauthorized
	ErrUnknownStepCode    = types.ErrUnknownStepCode
	ErrArithmeticOverflow = estimate.ErrArithmeticOverflow
	ErrOracleUnavailable  = oracle.ErrOracleUnavailable
)
