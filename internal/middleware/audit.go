package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"propvest/pkg/domain"
)

// AuditSink persists security log entries; security.Service implements it.
type AuditSink interface {
	Log(ctx context.Context, entry *domain.SecurityLog)
}

// AuditMiddleware writes every mutating request to the security log.
type AuditMiddleware struct {
	sink  AuditSink
	async bool
}

func NewAuditMiddleware(sink AuditSink) *AuditMiddleware {
	return &AuditMiddleware{sink: sink, async: true}
}

func (m *AuditMiddleware) Audit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		wrapped := wrapWriter(w)
		next.ServeHTTP(wrapped, r)

		entry := &domain.SecurityLog{
			Action:    r.Method + " " + routeTemplate(r),
			Resource:  resourceFromPath(r.URL.Path),
			IPAddress: ClientIP(r),
			UserAgent: r.UserAgent(),
			Status:    wrapped.statusCode,
			Details:   domain.Metadata{"path": r.URL.Path},
		}
		if reqID := RequestIDFromContext(r.Context()); reqID != "" {
			entry.Details["request_id"] = reqID
		}
		if id, ok := UserIDFromContext(r.Context()); ok {
			entry.UserID = &id
		}
		if id, ok := mux.Vars(r)["id"]; ok {
			entry.ResourceID = &id
		}

		if !m.async {
			m.sink.Log(r.Context(), entry)
			return
		}
		go func(ctx context.Context) {
			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			m.sink.Log(ctx, entry)
		}(context.WithoutCancel(r.Context()))
	})
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// resourceFromPath maps /admin/properties/3/update to "properties".
func resourceFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		if (p == "admin" || p == "api") && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	if len(parts) > 0 {
		return parts[0]
	}
	return ""
}
