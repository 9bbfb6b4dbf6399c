package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Emmet-Finance/Bridge-Data/internal/estimate"
	"github.com/Emmet-Finance/Bridge-Data/internal/model"
	"github.com/Emmet-Finance/Bridge-Data/internal/types"
	"github.com/sirupsen/logrus"
)

// quoteResponse is the wire form of an estimate. Amounts are decimal strings.
type quoteResponse struct {
	ChainID              types.ChainID    `json:"chainId"`
	FromToken            string           `json:"fromToken"`
	ToToken              string           `json:"toToken"`
	Steps                []types.StepCode `json:"steps"`
	Sum                  string           `json:"sum"`
	ForeignPrice         string           `json:"foreignPrice"`
	ForeignPriceDecimals uint8            `json:"foreignPriceDecimals"`
	LocalPrice           string           `json:"localPrice"`
	LocalPriceDecimals   uint8            `json:"localPriceDecimals"`
	Fee                  string           `json:"fee"`
	SelfChainID          types.ChainID    `json:"selfChainId"`
	SelfSymbol           string           `json:"selfSymbol"`
	Timestamp            int64            `json:"timestamp"`
}

func (s *Server) newQuoteResponse(q *estimate.Quote) quoteResponse {
	steps := q.Steps
	if steps == nil {
		steps = []types.StepCode{}
	}
	return quoteResponse{
		ChainID:              q.Route.ChainID,
		FromToken:            q.Route.FromToken,
		ToToken:              q.Route.ToToken,
		Steps:                steps,
		Sum:                  q.Sum.Dec(),
		ForeignPrice:         q.ForeignPrice.Dec(),
		ForeignPriceDecimals: q.ForeignDecimals,
		LocalPrice:           q.LocalPrice.Dec(),
		LocalPriceDecimals:   q.LocalDecimals,
		Fee:                  q.Fee.Dec(),
		SelfChainID:          s.registry.SelfChainID(),
		SelfSymbol:           s.registry.SelfSymbol(),
		Timestamp:            time.Now().Unix(),
	}
}

func (s *Server) quote(ctx context.Context, key model.StrategyKey) (*estimate.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	q, err := s.estimator.Quote(ctx, key.ChainID, key.FromToken, key.ToToken)
	if err != nil {
		s.metrics.estimates.WithLabelValues("error").Inc()
		return nil, err
	}
	s.metrics.estimates.WithLabelValues("success").Inc()
	return q, nil
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	key, err := routeVars(r)
	if err != nil {
		fail(w, err)
		return
	}
	q, err := s.quote(r.Context(), key)
	if err != nil {
		fail(w, err)
		return
	}

	resp := s.newQuoteResponse(q)
	if signed, _ := strconv.ParseBool(r.URL.Query().Get("signed")); signed {
		if s.opts.Signer == nil {
			fail(w, badRequest("quote signing is not configured"))
			return
		}
		payload, err := s.opts.Signer.SignPayload(resp)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type batchRequest struct {
	Routes []model.StrategyKey `json:"routes"`
}

type batchItem struct {
	Route model.StrategyKey `json:"route"`
	Quote *quoteResponse    `json:"quote,omitempty"`
	Error string            `json:"error,omitempty"`
	Code  int               `json:"code"`
}

func (s *Server) handleEstimateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		fail(w, badRequest("invalid request body: %v", err))
		return
	}
	if len(req.Routes) == 0 {
		fail(w, badRequest("no routes"))
		return
	}
	if len(req.Routes) > s.opts.MaxBatchSize {
		fail(w, badRequest("%d routes exceed the batch limit of %d", len(req.Routes), s.opts.MaxBatchSize))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()
	results := s.estimator.EstimateBatch(ctx, req.Routes, s.opts.BatchWorkers)

	items := make([]batchItem, len(results))
	for i, res := range results {
		items[i] = batchItem{Route: res.Route, Code: http.StatusOK}
		if res.Err != nil {
			s.metrics.estimates.WithLabelValues("error").Inc()
			items[i].Error = res.Err.Error()
			items[i].Code = statusFor(res.Err)
			continue
		}
		s.metrics.estimates.WithLabelValues("success").Inc()
		qr := s.newQuoteResponse(res.Quote)
		items[i].Quote = &qr
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": items})
}

// ChainlinkRequest matches the standard Chainlink External Adapter request format
type ChainlinkRequest struct {
	ID       string                 `json:"id"`
	JobRunID string                 `json:"jobRunId"`
	Data     map[string]interface{} `json:"data"`
	Meta     map[string]interface{} `json:"meta,omitempty"`
}

// ChainlinkResponse matches the standard Chainlink External Adapter response format
type ChainlinkResponse struct {
	JobRunID   string                 `json:"jobRunId,omitempty"`
	StatusCode int                    `json:"statusCode"`
	Status     string                 `json:"status"`
	Data       map[string]interface{} `json:"data"`
	Error      string                 `json:"error,omitempty"`
}

// adapterRoute reads chainId, fromToken and toToken from adapter request data.
// chainId may be a JSON number or a decimal string.
func adapterRoute(data map[string]interface{}) (model.StrategyKey, error) {
	var key model.StrategyKey
	switch v := data["chainId"].(type) {
	case json.Number:
		id, err := strconv.ParseUint(v.String(), 10, 64)
		if err != nil {
			return key, badRequest("invalid chainId %q", v)
		}
		key.ChainID = id
	case string:
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return key, badRequest("invalid chainId %q", v)
		}
		key.ChainID = id
	default:
		return key, badRequest("missing chainId")
	}

	from, _ := data["fromToken"].(string)
	to, _ := data["toToken"].(string)
	if from == "" || to == "" {
		return key, badRequest("fromToken and toToken are required")
	}
	key.FromToken, key.ToToken = from, to
	return key, nil
}

// handleAdapterRequest answers Chainlink node jobs with the estimated fee as result
func (s *Server) handleAdapterRequest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var request ChainlinkRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&request); err != nil {
		s.adapterError(w, request.JobRunID, http.StatusBadRequest, "Invalid request body")
		return
	}

	key, err := adapterRoute(request.Data)
	if err != nil {
		s.adapterError(w, request.JobRunID, http.StatusBadRequest, err.Error())
		return
	}

	q, err := s.quote(r.Context(), key)
	if err != nil {
		s.adapterError(w, request.JobRunID, statusFor(err), fmt.Sprintf("Error estimating fees: %v", err))
		return
	}

	response := ChainlinkResponse{
		JobRunID:   request.JobRunID,
		StatusCode: http.StatusOK,
		Status:     "success",
		Data: map[string]interface{}{
			"result":       q.Fee.Dec(),
			"chainId":      key.ChainID,
			"fromToken":    key.FromToken,
			"toToken":      key.ToToken,
			"sum":          q.Sum.Dec(),
			"foreignPrice": q.ForeignPrice.Dec(),
			"localPrice":   q.LocalPrice.Dec(),
			"selfChainId":  s.registry.SelfChainID(),
			"timestamp":    time.Now().Unix(),
		},
	}
	if request.ID != "" {
		response.Data["id"] = request.ID
	}

	if request.Meta == nil {
		request.Meta = make(map[string]interface{})
	}
	request.Meta["latencyMs"] = time.Since(start).Milliseconds()
	if s.opts.Signer != nil {
		request.Meta["signer"] = s.opts.Signer.Address().Hex()
	}
	response.Data["meta"] = request.Meta

	var responseData interface{} = response
	if s.opts.Signer != nil {
		signed, err := s.opts.Signer.SignPayload(response)
		if err != nil {
			logrus.Warnf("Failed to sign adapter response: %v", err)
		} else {
			responseData = signed
		}
	}
	writeJSON(w, http.StatusOK, responseData)
}

// adapterError returns a formatted error response for Chainlink nodes
func (s *Server) adapterError(w http.ResponseWriter, jobRunID string, statusCode int, errorMsg string) {
	logrus.Warn(errorMsg)
	writeJSON(w, statusCode, ChainlinkResponse{
		JobRunID:   jobRunID,
		StatusCode: statusCode,
		Status:     "error",
		Error:      errorMsg,
		Data:       map[string]interface{}{"error": errorMsg},
	})
}
