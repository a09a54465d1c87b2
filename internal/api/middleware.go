package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	headerTenant = "X-Tenant-ID"
	headerUser   = "X-User-ID"
	headerRole   = "X-User-Role"

	roleAdmin = "admin"
)

// Identity is the caller established by the boundary headers.
type Identity struct {
	TenantID uuid.UUID
	UserID   *uuid.UUID
	Role     string
}

type identityKey struct{}

// IdentityFrom returns the caller stored by identify.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// identify requires a tenant header and records the caller on the context.
func identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, err := uuid.Parse(strings.TrimSpace(r.Header.Get(headerTenant)))
		if err != nil || tenant == uuid.Nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing or invalid " + headerTenant})
			return
		}

		id := Identity{TenantID: tenant, Role: strings.ToLower(strings.TrimSpace(r.Header.Get(headerRole)))}
		if raw := strings.TrimSpace(r.Header.Get(headerUser)); raw != "" {
			user, err := uuid.Parse(raw)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid " + headerUser})
				return
			}
			id.UserID = &user
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

// requireAdmin rejects callers without the admin role.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())
		if id.Role != roleAdmin {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "admin role required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// tenantLimiter holds one token bucket per tenant.
type tenantLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[uuid.UUID]*rate.Limiter
}

func newTenantLimiter(perMinute, burst int) *tenantLimiter {
	if perMinute <= 0 {
		perMinute = 6
	}
	if burst <= 0 {
		burst = 1
	}
	return &tenantLimiter{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
		limiters: make(map[uuid.UUID]*rate.Limiter),
	}
}

func (t *tenantLimiter) get(tenant uuid.UUID) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[tenant]
	if !ok {
		l = rate.NewLimiter(t.limit, t.burst)
		t.limiters[tenant] = l
	}
	return l
}

func (t *tenantLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFrom(r.Context())
		if !t.get(id.TenantID).Allow() {
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "upload rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
