package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quotevault/internal/adapters/http/dto"
	"github.com/jsamuelsen/quotevault/internal/domain"
	"github.com/jsamuelsen/quotevault/internal/platform/config"
	"github.com/jsamuelsen/quotevault/internal/platform/logging"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var authConfig = &config.AuthConfig{
	SubjectHeader:   "X-User-ID",
	RolesHeader:     "X-User-Roles",
	PrivilegedRoles: []string{"admin", "editor"},
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "generated when absent"},
		{name: "propagated when present", incoming: "req-123", keep: true},
		{name: "replaced when oversized", incoming: string(bytes.Repeat([]byte("x"), 200))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string

			r := gin.New()
			r.Use(RequestID())
			r.GET("/", func(c *gin.Context) {
				seen = GetRequestID(c)
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(HeaderRequestID, tt.incoming)
			}

			w := serve(r, req)

			require.NotEmpty(t, seen)
			assert.Equal(t, seen, w.Header().Get(HeaderRequestID))

			if tt.keep {
				assert.Equal(t, tt.incoming, seen)
			} else {
				assert.NotEqual(t, tt.incoming, seen)
			}
		})
	}
}

func TestIDs_EnrichContextLogger(t *testing.T) {
	var buf bytes.Buffer

	base := slog.New(slog.NewJSONHandler(&buf, nil))

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(logging.WithContext(c.Request.Context(), base))
		c.Next()
	}, RequestID(), CorrelationID())
	r.GET("/", func(c *gin.Context) {
		logging.FromContext(c.Request.Context()).Info("handled")
		assert.Equal(t, "corr-1", GetCorrelationID(c))
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "req-1")
	req.Header.Set(HeaderCorrelationID, "corr-1")
	serve(r, req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "corr-1", entry["correlation_id"])
}

func TestCallerIdentity(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		roles   string
		want    domain.Caller
		present bool
	}{
		{name: "anonymous"},
		{name: "reader", subject: "u1", roles: "reader", want: domain.Caller{ID: "u1"}, present: true},
		{name: "admin", subject: "u2", roles: "reader, admin", want: domain.Caller{ID: "u2", Privileged: true}, present: true},
		{name: "editor", subject: "u3", roles: "editor", want: domain.Caller{ID: "u3", Privileged: true}, present: true},
		{name: "roles without subject", roles: "admin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				got     domain.Caller
				present bool
				claims  *Claims
			)

			r := gin.New()
			r.Use(CallerIdentity(authConfig))
			r.GET("/", func(c *gin.Context) {
				got, present = domain.CallerFromContext(c.Request.Context())
				claims = GetClaims(c)
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-User-ID", tt.subject)
			req.Header.Set("X-User-Roles", tt.roles)
			serve(r, req)

			require.NotNil(t, claims)
			assert.Equal(t, tt.present, present)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractClaims_TrimsRoles(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("X-User-ID", " u1 ")
	c.Request.Header.Set("X-User-Roles", "admin, ,reader,")

	claims := ExtractClaims(c, authConfig)

	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, []string{"admin", "reader"}, claims.Roles)
	assert.True(t, claims.HasAnyRole("reader"))
	assert.False(t, claims.HasAnyRole("owner"))
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := gin.New()
	r.Use(Recovery(logger))
	r.GET("/panic", func(*gin.Context) { panic("tag index corrupted") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, dto.ErrorCodeInternal, resp.Error.Code)
	assert.NotContains(t, w.Body.String(), "tag index corrupted")

	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), "tag index corrupted")
}

func TestLogging(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		level  string
		logged bool
	}{
		{name: "success", path: "/api/v1/quotes", status: http.StatusOK, level: "INFO", logged: true},
		{name: "client error", path: "/api/v1/quotes", status: http.StatusConflict, level: "WARN", logged: true},
		{name: "server error", path: "/api/v1/quotes", status: http.StatusInternalServerError, level: "ERROR", logged: true},
		{name: "liveness skipped", path: "/-/live", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			r := gin.New()
			r.Use(CallerIdentity(authConfig), Logging(logger))
			r.GET(tt.path, func(c *gin.Context) { c.Status(tt.status) })

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("X-User-ID", "admin-1")
			serve(r, req)

			if !tt.logged {
				assert.Empty(t, buf.String())
				return
			}

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, tt.path, entry["route"])
			assert.Equal(t, "admin-1", entry["caller"])
			assert.InDelta(t, tt.status, entry["status"], 0)
		})
	}
}

func TestDeadline(t *testing.T) {
	var deadline time.Time

	r := gin.New()
	r.Use(Deadline(50 * time.Millisecond))
	r.GET("/", func(c *gin.Context) {
		var ok bool
		deadline, ok = c.Request.Context().Deadline()
		assert.True(t, ok)

		<-c.Request.Context().Done()
		assert.ErrorIs(t, c.Request.Context().Err(), context.DeadlineExceeded)
		c.Status(http.StatusGatewayTimeout)
	})

	start := time.Now()
	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.WithinDuration(t, start.Add(50*time.Millisecond), deadline, 40*time.Millisecond)
}
