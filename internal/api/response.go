package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Emmet-Finance/Bridge-Data/internal/registry"
	"github.com/Emmet-Finance/Bridge-Data/internal/types"
	"github.com/Emmet-Finance/Bridge-Data/internal/validation"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks malformed input
var errBadRequest = errors.New("bad request")

// errUnauthenticated marks a missing, expired, replayed or unverifiable request signature
var errUnauthenticated = errors.New("unauthenticated")

// errBusy marks a request refused for load, retryable later
var errBusy = errors.New("too many requests")

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Warnf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	if status >= http.StatusInternalServerError {
		logrus.Warn(msg)
	}
	writeJSON(w, status, errorBody{Error: msg})
}

// statusFor maps registry and estimator errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, registry.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, errBadRequest), errors.Is(err, registry.ErrArgumentMismatch),
		errors.Is(err, validation.ErrTooManySteps):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrUnknownStepCode), errors.Is(err, registry.ErrArithmeticOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, registry.ErrOracleUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func fail(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func chainIDVar(r *http.Request) (types.ChainID, error) {
	raw := mux.Vars(r)["chainId"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, badRequest("invalid chain id %q", raw)
	}
	return id, nil
}

func addressVar(r *http.Request, name string) (common.Address, error) {
	raw := mux.Vars(r)[name]
	if !common.IsHexAddress(raw) {
		return common.Address{}, badRequest("invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}
