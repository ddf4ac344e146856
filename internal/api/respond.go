package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/vnmchuo/emotion-gateway/internal/auth"
	"github.com/vnmchuo/emotion-gateway/internal/gateway"
)

type envelope struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Meta      *meta      `json:"meta,omitempty"`
	Error     *errorBody `json:"error,omitempty"`
	RequestID string     `json:"requestId,omitempty"`
}

type meta struct {
	RequestID  string    `json:"requestId"`
	Model      string    `json:"model"`
	Provider   string    `json:"provider"`
	Usage      usageMeta `json:"usage"`
	StopReason string    `json:"stopReason"`
	Attempts   int       `json:"attempts"`
}

type usageMeta struct {
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	CostUSD      float64 `json:"costUsd"`
}

type errorBody struct {
	Type              string `json:"type"`
	Message           string `json:"message"`
	Field             string `json:"field,omitempty"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeResult(w http.ResponseWriter, data any, res *gateway.Result) {
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data:    data,
		Meta: &meta{
			RequestID: res.RequestID,
			Model:     res.Model,
			Provider:  res.Provider,
			Usage: usageMeta{
				InputTokens:  res.InputTokens,
				OutputTokens: res.OutputTokens,
				CostUSD:      res.CostUSD,
			},
			StopReason: string(res.StopReason),
			Attempts:   res.Attempts,
		},
	})
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeFailure(w http.ResponseWriter, r *http.Request, status int, body errorBody) {
	writeJSON(w, status, envelope{
		Error:     &body,
		RequestID: auth.GetRequestID(r.Context()),
	})
}

func badRequest(w http.ResponseWriter, r *http.Request, field, message string) {
	writeFailure(w, r, http.StatusBadRequest, errorBody{
		Type:    string(gateway.KindValidation),
		Message: message,
		Field:   field,
	})
}

// writeGatewayError renders an error returned by gateway.Complete.
func (h *Handler) writeGatewayError(w http.ResponseWriter, r *http.Request, err error) {
	kind := gateway.KindOf(err)
	body := errorBody{Type: string(kind), Message: err.Error()}
	status := http.StatusInternalServerError

	var (
		validationErr *gateway.ValidationError
		circuitErr    *gateway.CircuitOpenError
	)
	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
		body.Field = validationErr.Field
	case errors.As(err, &circuitErr):
		status = http.StatusServiceUnavailable
		body.RetryAfterSeconds = retryAfterSeconds(circuitErr)
		w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfterSeconds))
	case kind == gateway.KindUnavailable:
		status = http.StatusServiceUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
	case kind == gateway.KindUpstream:
		status = http.StatusBadGateway
	case kind == gateway.KindConfiguration:
		body.Message = "the service is not configured correctly"
	default:
		body.Message = "internal server error"
	}

	entry := h.logger.WithFields(logrus.Fields{
		"request_id": auth.GetRequestID(r.Context()),
		"status":     status,
		"kind":       string(kind),
		"event":      "request_failed",
	})
	if status >= http.StatusInternalServerError {
		entry.WithError(err).Error("Request failed")
	} else {
		entry.Info("Request rejected")
	}

	writeFailure(w, r, status, body)
}

func retryAfterSeconds(err *gateway.CircuitOpenError) int {
	return max(int(math.Ceil(err.RetryAfter.Seconds())), 1)
}
