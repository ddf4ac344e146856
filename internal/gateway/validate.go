package gateway

import (
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Input carries unvalidated request fields. Empty MaxTokens and Temperature
// mean "not provided".
type Input struct {
	Prompt       string
	SystemPrompt string
	Model        string
	MaxTokens    string
	Temperature  string
	RequestID    string
}

// CompletionRequest is an Input that passed validation.
type CompletionRequest struct {
	Prompt       string
	SystemPrompt string
	Model        string
	MaxTokens    int
	Temperature  float64
	RequestID    string
}

type Limits struct {
	MaxPromptLength       int
	MaxSystemPromptLength int
	MaxTokensCeiling      int
	DefaultMaxTokens      int
	DefaultTemperature    float64
	DefaultModel          string
	AllowedModels         []string
}

func DefaultLimits() Limits {
	return Limits{
		MaxPromptLength:       50000,
		MaxSystemPromptLength: 10000,
		MaxTokensCeiling:      4096,
		DefaultMaxTokens:      1024,
		DefaultTemperature:    0.7,
	}
}

type Validator struct {
	limits Limits
}

func NewValidator(limits Limits) *Validator {
	return &Validator{limits: limits}
}

func (v *Validator) Limits() Limits {
	return v.limits
}

// Validate checks prompt, systemPrompt, model, maxTokens and temperature in
// that order and reports the first violation. maxTokens above the ceiling is
// clamped, not rejected.
func (v *Validator) Validate(in Input) (CompletionRequest, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return CompletionRequest{}, &ValidationError{Field: "prompt", Message: "is required"}
	}
	if n := utf8.RuneCountInString(prompt); n > v.limits.MaxPromptLength {
		return CompletionRequest{}, &ValidationError{
			Field:   "prompt",
			Message: "exceeds maximum length of " + strconv.Itoa(v.limits.MaxPromptLength) + " characters",
		}
	}

	if utf8.RuneCountInString(in.SystemPrompt) > v.limits.MaxSystemPromptLength {
		return CompletionRequest{}, &ValidationError{
			Field:   "systemPrompt",
			Message: "exceeds maximum length of " + strconv.Itoa(v.limits.MaxSystemPromptLength) + " characters",
		}
	}

	model := in.Model
	if model == "" {
		model = v.limits.DefaultModel
	} else if !slices.Contains(v.limits.AllowedModels, model) {
		return CompletionRequest{}, &ValidationError{
			Field:   "model",
			Message: "must be one of: " + strings.Join(v.limits.AllowedModels, ", "),
		}
	}

	maxTokens := v.limits.DefaultMaxTokens
	if raw := strings.TrimSpace(in.MaxTokens); raw != "" {
		n, ok := parseTokenCount(raw)
		if !ok {
			return CompletionRequest{}, &ValidationError{Field: "maxTokens", Message: "must be a positive integer"}
		}
		maxTokens = n
	}
	maxTokens = min(maxTokens, v.limits.MaxTokensCeiling)

	temperature := v.limits.DefaultTemperature
	if raw := strings.TrimSpace(in.Temperature); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(t) || t < 0 || t > 1 {
			return CompletionRequest{}, &ValidationError{Field: "temperature", Message: "must be a number between 0 and 1"}
		}
		temperature = t
	}

	requestID := in.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	return CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: in.SystemPrompt,
		Model:        model,
		MaxTokens:    maxTokens,
		Temperature:  temperature,
		RequestID:    requestID,
	}, nil
}

// parseTokenCount accepts integers and integral floats such as 1000.0 or 1e3.
// Values beyond int32 saturate; the ceiling clamps them afterwards.
func parseTokenCount(raw string) (int, bool) {
	if n, err := strconv.Atoi(raw); err == nil {
		return n, n >= 1
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f < 1 || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt32 {
		return math.MaxInt32, true
	}
	return int(f), true
}
