package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisx/aegisgate-go/internal/application/services"
	"github.com/aegisx/aegisgate-go/internal/domain/verification"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/engine/risk"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/messaging"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/observability/logging"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/observability/performance"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/persistence/database"
	persistence "github.com/aegisx/aegisgate-go/internal/infrastructure/persistence/verification"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/security"
	"github.com/aegisx/aegisgate-go/internal/presentation/http/middleware"
)

const testVerifySecret = "verify-secret"

type handlerFixture struct {
	router  *gin.Engine
	session *services.SessionService
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := database.NewConnection("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)
	require.NoError(t, db.EnsureSchema())

	config := logging.DefaultLoggerConfig()
	config.OutputToFile = false
	config.OutputToConsole = false
	config.DefaultLevel = slog.LevelError + 1
	logger, err := logging.NewChanneledLogger(config)
	require.NoError(t, err)

	sessions := persistence.NewSQLSessionRepository(db)
	evidence := persistence.NewSQLEvidenceRepository(db)
	profiles := persistence.NewSQLProfileRepository(db)
	actions := persistence.NewSQLActionRepository(db)
	quarantine := persistence.NewSQLQuarantineRepository(db)
	links := persistence.NewSQLLinkRepository(db)

	broadcaster := messaging.NewActionBroadcaster(logger)
	resolution := services.NewResolutionService(
		sessions, evidence, profiles, actions, quarantine, links,
		nil, broadcaster, logger, 24, 5,
	)
	session := services.NewSessionService(
		sessions, evidence, profiles, actions,
		risk.New(risk.DefaultConfig()), resolution, services.NewSurgeTracker(30*time.Second, 3), logger,
		time.Hour, 2*time.Second,
	)

	perfTracker := performance.NewTracker(100)
	verifyHandlers := NewVerifyHandlers(session, resolution, logger, perfTracker)

	router := gin.New()
	verify := router.Group("/api/v1/verify")
	{
		verify.POST("/issue", middleware.SignatureMiddleware(testVerifySecret, "identity"), verifyHandlers.PostIssue)
		verify.POST("/submit", verifyHandlers.PostSubmit)
		verify.GET("/status/:token", verifyHandlers.GetStatus)
		verify.POST("/resolve", middleware.SignatureMiddleware(testVerifySecret, "token"), verifyHandlers.PostResolve)
	}

	return &handlerFixture{router: router, session: session}
}

func (f *handlerFixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func signedHeaders(value string) map[string]string {
	return map[string]string{"X-Signature": security.SignToken(testVerifySecret, value)}
}

func (f *handlerFixture) issueToken(t *testing.T, identity string) string {
	t.Helper()

	w := f.do(t, http.MethodPost, "/api/v1/verify/issue", gin.H{"identity": identity}, signedHeaders(identity))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		OK    bool   `json:"ok"`
		Token string `json:"token"`
		Link  string `json:"link"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.OK)
	require.NotEmpty(t, resp.Token)
	require.Contains(t, resp.Link, resp.Token)
	return resp.Token
}

func submitBody(token string) gin.H {
	return gin.H{
		"token":       token,
		"fingerprint": "fp-1",
		"behavioralTrace": gin.H{
			"typing":   []int{120, 90, 150},
			"mouse":    []int{14, 22, 19},
			"timezone": "UTC",
		},
		"honeypotTriggered": false,
	}
}

func TestIssueRequiresValidSignature(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/verify/issue", gin.H{"identity": "alice"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/verify/issue", gin.H{"identity": "alice"},
		map[string]string{"X-Signature": "bogus"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIssueConflictOnLiveToken(t *testing.T) {
	f := newHandlerFixture(t)
	f.issueToken(t, "alice")

	w := f.do(t, http.MethodPost, "/api/v1/verify/issue", gin.H{"identity": "alice"}, signedHeaders("alice"))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSubmitAccepted(t *testing.T) {
	f := newHandlerFixture(t)
	token := f.issueToken(t, "bob")

	w := f.do(t, http.MethodPost, "/api/v1/verify/submit", submitBody(token), nil)
	assert.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"ok":true`)
}

func TestSubmitDuplicateConflicts(t *testing.T) {
	f := newHandlerFixture(t)
	token := f.issueToken(t, "carol")

	w := f.do(t, http.MethodPost, "/api/v1/verify/submit", submitBody(token), nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/verify/submit", submitBody(token), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSubmitOversizedTraceRejected(t *testing.T) {
	f := newHandlerFixture(t)
	token := f.issueToken(t, "dave")

	body := submitBody(token)
	oversize := make([]int, verification.MaxKeystrokeSamples+1)
	body["behavioralTrace"] = gin.H{"typing": oversize, "mouse": []int{}, "timezone": "UTC"}

	w := f.do(t, http.MethodPost, "/api/v1/verify/submit", body, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "malformed evidence")
}

func TestSubmitUnknownToken(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/verify/submit", submitBody("no-such-token"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusLifecycle(t *testing.T) {
	f := newHandlerFixture(t)
	token := f.issueToken(t, "erin")

	w := f.do(t, http.MethodGet, "/api/v1/verify/status/"+token, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"pending"`)

	w = f.do(t, http.MethodPost, "/api/v1/verify/submit", submitBody(token), nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		w := f.do(t, http.MethodGet, "/api/v1/verify/status/"+token, nil, nil)
		var resp struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			return false
		}
		return verification.Status(resp.Status).Terminal()
	}, 3*time.Second, 20*time.Millisecond)

	w = f.do(t, http.MethodGet, "/api/v1/verify/status/"+token, nil, nil)
	assert.Contains(t, w.Body.String(), `"status":"verified"`)
}

func TestStatusUnknownTokenIs404(t *testing.T) {
	f := newHandlerFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/verify/status/unknown", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResolveRequiresSignature(t *testing.T) {
	f := newHandlerFixture(t)

	body := gin.H{"token": "tok", "verdict": "verified", "action": "verified"}
	w := f.do(t, http.MethodPost, "/api/v1/verify/resolve", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestResolveAppliesVerdict(t *testing.T) {
	f := newHandlerFixture(t)
	token := f.issueToken(t, "frank")

	w := f.do(t, http.MethodPost, "/api/v1/verify/submit", submitBody(token), nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	resolve := func() *httptest.ResponseRecorder {
		body := gin.H{
			"token":   token,
			"verdict": "banned",
			"action":  "ban",
			"reason":  "manual review",
		}
		return f.do(t, http.MethodPost, "/api/v1/verify/resolve", body, signedHeaders(token))
	}

	// The local engine races this callback; both paths finalize exactly
	// once, and the duplicate is a 200 no-op either way.
	require.Equal(t, http.StatusOK, resolve().Code)
	require.Equal(t, http.StatusOK, resolve().Code)

	require.Eventually(t, func() bool {
		w := f.do(t, http.MethodGet, "/api/v1/verify/status/"+token, nil, nil)
		var resp struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			return false
		}
		return verification.Status(resp.Status).Terminal()
	}, 3*time.Second, 20*time.Millisecond)
}

func TestRateLimiterMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	limiter := middleware.NewRateLimiter(10*time.Second, 3)
	router := gin.New()
	router.POST("/limited", limiter.Middleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/limited", nil))
		require.Equal(t, http.StatusOK, w.Code, fmt.Sprintf("request %d", i))
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/limited", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
