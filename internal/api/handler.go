package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vnmchuo/emotion-gateway/internal/auth"
	"github.com/vnmchuo/emotion-gateway/internal/gateway"
)

const (
	maxLabelLength     = 100
	maxSituationLength = 2000
	maxAffirmations    = 5
)

type Handler struct {
	gateway        *gateway.Gateway
	logger         logrus.FieldLogger
	tracer         trace.Tracer
	requestTimeout time.Duration
	started        time.Time
}

func NewHandler(gw *gateway.Gateway, logger logrus.FieldLogger, tracer trace.Tracer, requestTimeout time.Duration) *Handler {
	return &Handler{
		gateway:        gw,
		logger:         logger,
		tracer:         tracer,
		requestTimeout: requestTimeout,
		started:        time.Now(),
	}
}

// flexString accepts a JSON string or number and keeps its text so the
// gateway validator sees exactly what the caller sent.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case len(data) > 0 && (data[0] == '-' || (data[0] >= '0' && data[0] <= '9')):
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*f = flexString(n.String())
	default:
		return fmt.Errorf("expected a number or a string, got %s", data)
	}
	return nil
}

type affirmationsRequest struct {
	Mood  string `json:"mood"`
	Focus string `json:"focus"`
	Count *int   `json:"count"`
}

type moodSupportRequest struct {
	Mood      string `json:"mood"`
	Situation string `json:"situation"`
}

type quotesRequest struct {
	Theme string `json:"theme"`
	Mood  string `json:"mood"`
}

type wellnessTipsRequest struct {
	Category string `json:"category"`
	Mood     string `json:"mood"`
}

type analyzeRequest struct {
	Text string `json:"text"`
}

type customRequest struct {
	Prompt       string     `json:"prompt"`
	SystemPrompt string     `json:"systemPrompt"`
	Model        string     `json:"model"`
	MaxTokens    flexString `json:"maxTokens"`
	Temperature  flexString `json:"temperature"`
}

func (h *Handler) HandleAffirmations(w http.ResponseWriter, r *http.Request) {
	var req affirmationsRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Mood, req.Focus = sanitize(req.Mood), sanitize(req.Focus)

	count := 3
	if req.Count != nil {
		count = *req.Count
	}
	if count < 1 || count > maxAffirmations {
		badRequest(w, r, "count", fmt.Sprintf("count must be between 1 and %d", maxAffirmations))
		return
	}
	if !h.checkLabel(w, r, "mood", req.Mood) || !h.checkLabel(w, r, "focus", req.Focus) {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write %d short, personal affirmations written in the first person.", count)
	if req.Mood != "" {
		fmt.Fprintf(&b, " The reader is currently feeling %s.", req.Mood)
	}
	if req.Focus != "" {
		fmt.Fprintf(&b, " Focus on %s.", req.Focus)
	}
	b.WriteString(" Return one affirmation per line without numbering.")

	h.complete(w, r, "affirmations", gateway.Input{
		SystemPrompt: companionPrompt,
		Prompt:       b.String(),
	}, func(res *gateway.Result) any {
		return map[string]any{
			"affirmations": splitLines(res.Text),
			"mood":         req.Mood,
			"focus":        req.Focus,
		}
	})
}

func (h *Handler) HandleMoodSupport(w http.ResponseWriter, r *http.Request) {
	var req moodSupportRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Mood, req.Situation = sanitize(req.Mood), sanitize(req.Situation)

	if req.Mood == "" {
		badRequest(w, r, "mood", "mood is required")
		return
	}
	if !h.checkLabel(w, r, "mood", req.Mood) {
		return
	}
	if len([]rune(req.Situation)) > maxSituationLength {
		badRequest(w, r, "situation", fmt.Sprintf("situation must be at most %d characters", maxSituationLength))
		return
	}

	prompt := fmt.Sprintf("I am feeling %s.", req.Mood)
	if req.Situation != "" {
		prompt += " Here is what is going on: " + req.Situation
	}
	prompt += " Offer a brief, compassionate response with one or two gentle, practical suggestions."

	h.complete(w, r, "mood-support", gateway.Input{
		SystemPrompt: companionPrompt + " " + safetyPrompt,
		Prompt:       prompt,
	}, func(res *gateway.Result) any {
		return map[string]any{"support": res.Text, "mood": req.Mood}
	})
}

func (h *Handler) HandleQuotes(w http.ResponseWriter, r *http.Request) {
	var req quotesRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Theme, req.Mood = sanitize(req.Theme), sanitize(req.Mood)
	if !h.checkLabel(w, r, "theme", req.Theme) || !h.checkLabel(w, r, "mood", req.Mood) {
		return
	}

	prompt := "Share one uplifting quote"
	if req.Theme != "" {
		prompt += " about " + req.Theme
	}
	if req.Mood != "" {
		prompt += " for someone feeling " + req.Mood
	}
	prompt += `. Reply with the quote followed by a new line and "- " and the author, or "- Unknown" if unsure.`

	h.complete(w, r, "quotes", gateway.Input{
		SystemPrompt: companionPrompt,
		Prompt:       prompt,
	}, func(res *gateway.Result) any {
		quote, author := splitQuote(res.Text)
		return map[string]any{"quote": quote, "author": author, "theme": req.Theme}
	})
}

func (h *Handler) HandleWellnessTips(w http.ResponseWriter, r *http.Request) {
	var req wellnessTipsRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Category, req.Mood = sanitize(req.Category), sanitize(req.Mood)
	if !h.checkLabel(w, r, "category", req.Category) || !h.checkLabel(w, r, "mood", req.Mood) {
		return
	}

	category := req.Category
	if category == "" {
		category = "general wellbeing"
	}
	prompt := fmt.Sprintf("Give three concise, actionable wellness tips about %s.", category)
	if req.Mood != "" {
		prompt += " Tailor them to someone feeling " + req.Mood + "."
	}
	prompt += " Return one tip per line without numbering."

	h.complete(w, r, "wellness-tips", gateway.Input{
		SystemPrompt: companionPrompt,
		Prompt:       prompt,
	}, func(res *gateway.Result) any {
		return map[string]any{"tips": splitLines(res.Text), "category": category}
	})
}

func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Text = sanitize(req.Text)
	if req.Text == "" {
		badRequest(w, r, "text", "text is required")
		return
	}

	h.complete(w, r, "analyze", gateway.Input{
		SystemPrompt: analystPrompt,
		Prompt:       "Describe the emotional tone of the following text in two or three sentences:\n\n" + req.Text,
	}, func(res *gateway.Result) any {
		return map[string]any{"analysis": res.Text}
	})
}

func (h *Handler) HandleCustom(w http.ResponseWriter, r *http.Request) {
	var req customRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.complete(w, r, "custom", gateway.Input{
		Prompt:       sanitize(req.Prompt),
		SystemPrompt: sanitize(req.SystemPrompt),
		Model:        strings.TrimSpace(req.Model),
		MaxTokens:    strings.TrimSpace(string(req.MaxTokens)),
		Temperature:  strings.TrimSpace(string(req.Temperature)),
	}, func(res *gateway.Result) any {
		return map[string]any{"text": res.Text}
	})
}

// complete runs in through the gateway under the per-request timeout and
// writes either render(result) or the mapped error.
func (h *Handler) complete(w http.ResponseWriter, r *http.Request, endpoint string, in gateway.Input, render func(*gateway.Result) any) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	ctx, span := h.tracer.Start(ctx, "api."+endpoint)
	defer span.End()
	requestID := auth.GetRequestID(r.Context())
	span.SetAttributes(attribute.String("request_id", requestID))

	in.RequestID = requestID
	res, err := h.gateway.Complete(ctx, in)
	if err != nil {
		h.writeGatewayError(w, r, err)
		return
	}
	writeResult(w, render(res), res)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeFailure(w, r, http.StatusRequestEntityTooLarge, errorBody{
			Type:    string(gateway.KindValidation),
			Message: "request body too large",
		})
		return false
	}
	h.logger.WithFields(logrus.Fields{
		"request_id": auth.GetRequestID(r.Context()),
		"error":      err.Error(),
		"event":      "parse_error",
	}).Warn("Failed to parse request body")
	badRequest(w, r, "", "invalid request body")
	return false
}

func (h *Handler) checkLabel(w http.ResponseWriter, r *http.Request, field, value string) bool {
	if len([]rune(value)) > maxLabelLength {
		badRequest(w, r, field, fmt.Sprintf("%s must be at most %d characters", field, maxLabelLength))
		return false
	}
	return true
}

// sanitize drops control characters other than newlines and tabs, then trims.
func sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func splitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•"))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func splitQuote(text string) (quote, author string) {
	text = strings.TrimSpace(text)
	if i := strings.LastIndex(text, "\n- "); i >= 0 {
		return strings.Trim(strings.TrimSpace(text[:i]), `"“”`), strings.TrimSpace(text[i+3:])
	}
	return strings.Trim(text, `"“”`), "Unknown"
}
