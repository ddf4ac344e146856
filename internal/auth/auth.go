package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderAPIKey    = "X-API-Key"
	HeaderAdminKey  = "X-Admin-Key"
)

type Middleware func(next http.Handler) http.Handler

type contextKey string

const (
	apiKeyIDKey  contextKey = "api_key_id"
	requestIDKey contextKey = "request_id"
)

// RequestID propagates the caller's X-Request-ID or assigns a new one, and
// echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), requestID)))
	})
}

// NewMiddleware checks the X-API-Key header or a Bearer token against keys.
// With no keys configured every request passes.
func NewMiddleware(keys []string) Middleware {
	hashes := make([][]byte, 0, len(keys))
	for _, k := range keys {
		hashes = append(hashes, hashKey(k))
	}

	return func(next http.Handler) http.Handler {
		if len(hashes) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractKey(r)
			if key == "" {
				unauthorized(w, r, "missing API key")
				return
			}

			presented := hashKey(key)
			for _, h := range hashes {
				if subtle.ConstantTimeCompare(presented, h) == 1 {
					ctx := WithAPIKeyID(r.Context(), hex.EncodeToString(h[:6]))
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}
			unauthorized(w, r, "invalid API key")
		})
	}
}

// AdminOnly lets requests through outside production, or when X-Admin-Key
// matches adminKey.
func AdminOnly(production bool, adminKey string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !production {
				next.ServeHTTP(w, r)
				return
			}
			presented := r.Header.Get(HeaderAdminKey)
			if adminKey == "" || subtle.ConstantTimeCompare(hashKey(presented), hashKey(adminKey)) != 1 {
				writeError(w, r, http.StatusForbidden, "forbidden", "admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(HeaderAPIKey)); key != "" {
		return key
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

// hashKey gives every key the same length so ConstantTimeCompare does not
// leak key lengths.
func hashKey(key string) []byte {
	h := sha256.Sum256([]byte(key))
	return h[:]
}

func unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="emotion-gateway"`)
	writeError(w, r, http.StatusUnauthorized, "unauthorized", message)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error": map[string]string{
			"type":    errType,
			"message": message,
		},
		"requestId": GetRequestID(r.Context()),
	})
}

// Helpers to extract from context
func GetAPIKeyID(ctx context.Context) string {
	if id, ok := ctx.Value(apiKeyIDKey).(string); ok {
		return id
	}
	return ""
}

func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func WithAPIKeyID(ctx context.Context, apiKeyID string) context.Context {
	return context.WithValue(ctx, apiKeyIDKey, apiKeyID)
}
