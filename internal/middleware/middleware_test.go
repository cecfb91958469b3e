package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propvest/pkg/cache"
	"propvest/pkg/domain"
	"propvest/pkg/logger"
)

const secret = "test-secret"

func signToken(t *testing.T, userID, role string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"email":   "user@example.com",
		"role":    role,
		"exp":     exp.Unix(),
		"iat":     time.Now().Unix(),
	})
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func identityHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := UserIDFromContext(r.Context())
		role, _ := RoleFromContext(r.Context())
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": id, "role": role})
	})
}

func TestAuthenticate(t *testing.T) {
	m := NewAuthMiddleware(secret, nil)
	h := m.Authenticate(identityHandler())

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, "7", "customer", time.Now().Add(-time.Minute)), http.StatusUnauthorized},
		{"non numeric id", "Bearer " + signToken(t, "abc", "customer", time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"valid", "Bearer " + signToken(t, "7", "customer", time.Now().Add(time.Hour)), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/wallet/summary", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "7", "manager", time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.JSONEq(t, `{"id":7,"role":"manager"}`, rec.Body.String())
}

func TestAuthenticate_Blacklisted(t *testing.T) {
	store := cache.NewMemory()
	bl := NewCacheTokenBlacklist(store)
	token := signToken(t, "7", "customer", time.Now().Add(time.Hour))
	require.NoError(t, bl.Blacklist(context.Background(), token, time.Hour))

	h := NewAuthMiddleware(secret, bl).Authenticate(identityHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Token revoked")
}

func TestRequireStaff(t *testing.T) {
	h := RequireStaff(identityHandler())

	for role, status := range map[domain.UserRole]int{
		domain.RoleCustomer: http.StatusForbidden,
		domain.RoleManager:  http.StatusOK,
		domain.RoleAdmin:    http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodGet, "/admin/profits", nil)
		req = req.WithContext(WithIdentity(req.Context(), 1, "a@example.com", role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, status, rec.Code, string(role))
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(cache.NewMemory(), 2, time.Minute, "api")
	h := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	// A different user from the same address has its own window.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req = req.WithContext(WithIdentity(req.Context(), 9, "", domain.RoleCustomer))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestIdempotency_ReplaysResponse(t *testing.T) {
	var calls int32
	h := NewIdempotencyMiddleware(cache.NewMemory(), time.Hour).Require(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := atomic.AddInt32(&calls, 1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = fmt.Fprintf(w, `{"n":%d}`, n)
		}))

	send := func(userID int64, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/wallet/deposit", strings.NewReader(`{}`))
		req.Header.Set("Idempotency-Key", key)
		req = req.WithContext(WithIdentity(req.Context(), userID, "", domain.RoleCustomer))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := send(1, "k1")
	second := send(1, "k1")
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// Same key from another user is a separate request.
	send(2, "k1")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotency_NoHeaderPassesThrough(t *testing.T) {
	var calls int32
	h := NewIdempotencyMiddleware(cache.NewMemory(), time.Hour).Require(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { atomic.AddInt32(&calls, 1) }))

	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	}
	assert.Equal(t, int32(2), calls)
}

func TestIdempotency_InFlightConflict(t *testing.T) {
	store := cache.NewMemory()
	m := NewIdempotencyMiddleware(store, time.Hour)
	m.wait = 150 * time.Millisecond

	_, err := store.SetNX(context.Background(), "idempotency:lock:0:POST:/x:k", "other", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set("Idempotency-Key", "k")
	rec := httptest.NewRecorder()
	m.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run while another request holds the key")
	})).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

type recordingSink struct {
	entries []*domain.SecurityLog
}

func (s *recordingSink) Log(_ context.Context, entry *domain.SecurityLog) {
	s.entries = append(s.entries, entry)
}

func TestAudit_RecordsMutations(t *testing.T) {
	sink := &recordingSink{}
	m := NewAuditMiddleware(sink)
	m.async = false

	r := mux.NewRouter()
	r.Use(m.Audit)
	r.HandleFunc("/admin/properties/{id}/update", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}).Methods(http.MethodPut)
	r.HandleFunc("/admin/properties", func(w http.ResponseWriter, r *http.Request) {}).Methods(http.MethodGet)

	req := httptest.NewRequest(http.MethodPut, "/admin/properties/3/update", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	req = req.WithContext(WithIdentity(req.Context(), 4, "", domain.RoleAdmin))
	r.ServeHTTP(httptest.NewRecorder(), req)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/admin/properties", nil))

	require.Len(t, sink.entries, 1)
	e := sink.entries[0]
	assert.Equal(t, "PUT /admin/properties/{id}/update", e.Action)
	assert.Equal(t, "properties", e.Resource)
	assert.Equal(t, "3", *e.ResourceID)
	assert.Equal(t, int64(4), *e.UserID)
	assert.Equal(t, "203.0.113.9", e.IPAddress)
	assert.Equal(t, http.StatusAccepted, e.Status)
}

func TestRecovery(t *testing.T) {
	h := Recovery(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}

func TestBodyLimit(t *testing.T) {
	h := BodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"100000"}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCorrelationID(t *testing.T) {
	var seen string
	h := CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
