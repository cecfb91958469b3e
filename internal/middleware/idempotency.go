package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"propvest/pkg/cache"
	apperrors "propvest/pkg/errors"
)

// IdempotencyStore is the cache surface the idempotency middleware needs.
type IdempotencyStore interface {
	cache.Cache
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
}

const (
	idempotencyHeader  = "Idempotency-Key"
	maxCapturedBody    = 1 << 20
	defaultReplayWait  = 5 * time.Second
	replayPollInterval = 100 * time.Millisecond
)

// IdempotencyMiddleware replays the stored response when a client repeats an
// unsafe request with the same Idempotency-Key. Keys are scoped per user.
type IdempotencyMiddleware struct {
	store IdempotencyStore
	ttl   time.Duration
	wait  time.Duration
}

func NewIdempotencyMiddleware(store IdempotencyStore, ttl time.Duration) *IdempotencyMiddleware {
	return &IdempotencyMiddleware{
		store: store,
		ttl:   ttl,
		wait:  defaultReplayWait,
	}
}

// Require handles POST/PUT/PATCH/DELETE requests that carry the header.
// Requests without it pass through unchanged.
func (m *IdempotencyMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodPut &&
			r.Method != http.MethodPatch && r.Method != http.MethodDelete {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(idempotencyHeader)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > 128 {
			jsonError(w, http.StatusBadRequest, "Idempotency-Key too long")
			return
		}

		userID, _ := UserIDFromContext(r.Context())
		scope := fmt.Sprintf("%d:%s:%s:%s", userID, r.Method, r.URL.Path, key)
		dataKey := "idempotency:data:" + scope
		lockKey := "idempotency:lock:" + scope

		if m.replayCached(w, r, dataKey) {
			return
		}

		acquired, err := m.store.SetNX(r.Context(), lockKey, RequestIDFromContext(r.Context()), m.ttl)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		if !acquired {
			// Another request with this key is in flight; wait for its response.
			deadline := time.NewTimer(m.wait)
			defer deadline.Stop()
			tick := time.NewTicker(replayPollInterval)
			defer tick.Stop()
			for {
				select {
				case <-r.Context().Done():
					return
				case <-deadline.C:
					jsonError(w, http.StatusConflict, apperrors.ErrDuplicateRequest.Error())
					return
				case <-tick.C:
					if m.replayCached(w, r, dataKey) {
						return
					}
				}
			}
		}
		defer m.store.Delete(context.WithoutCancel(r.Context()), lockKey)

		cw := newCaptureWriter(w, maxCapturedBody)
		next.ServeHTTP(cw, r)

		// Server errors are not cached so the client can retry.
		if cw.status == 0 || cw.status >= 500 || cw.truncated {
			return
		}
		_ = m.store.Set(context.WithoutCancel(r.Context()), dataKey, capturedResponse{
			Status:  cw.status,
			Body:    cw.buf,
			Headers: cw.headers,
		}, m.ttl)
	})
}

type capturedResponse struct {
	Status  int               `json:"status"`
	Body    []byte            `json:"body"`
	Headers map[string]string `json:"headers"`
}

func (m *IdempotencyMiddleware) replayCached(w http.ResponseWriter, r *http.Request, dataKey string) bool {
	var cr capturedResponse
	if err := m.store.Get(r.Context(), dataKey, &cr); err != nil {
		return false
	}

	for k, v := range cr.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(cr.Status)
	_, _ = w.Write(cr.Body)
	return true
}

type captureWriter struct {
	http.ResponseWriter
	buf       []byte
	limit     int
	status    int
	truncated bool
	headers   map[string]string
}

func newCaptureWriter(w http.ResponseWriter, limit int) *captureWriter {
	return &captureWriter{
		ResponseWriter: w,
		buf:            make([]byte, 0, 1024),
		limit:          limit,
		headers:        make(map[string]string),
	}
}

func (w *captureWriter) WriteHeader(statusCode int) {
	if w.status != 0 {
		return
	}
	w.status = statusCode
	for k, v := range w.ResponseWriter.Header() {
		if len(v) > 0 {
			w.headers[k] = v[0]
		}
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	if space := w.limit - len(w.buf); space < len(p) {
		w.truncated = true
		if space > 0 {
			w.buf = append(w.buf, p[:space]...)
		}
	} else {
		w.buf = append(w.buf, p...)
	}
	return w.ResponseWriter.Write(p)
}
