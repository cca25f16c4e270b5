package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/aegisx/aegisgate-go/internal/application/services"
	"github.com/aegisx/aegisgate-go/internal/domain/verification"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/messaging"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/observability/logging"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/observability/performance"
	"github.com/aegisx/aegisgate-go/internal/presentation/http/middleware"
)

// AdminHandlers contains the operator endpoints.
type AdminHandlers struct {
	adminService   *services.AdminService
	authService    *services.AuthService
	sessionService *services.SessionService
	broadcaster    *messaging.ActionBroadcaster
	logger         *logging.ChanneledLogger
	perfTracker    *performance.Tracker
	upgrader       websocket.Upgrader
}

// NewAdminHandlers creates admin handlers with injected dependencies
func NewAdminHandlers(adminService *services.AdminService, authService *services.AuthService, sessionService *services.SessionService, broadcaster *messaging.ActionBroadcaster, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *AdminHandlers {
	return &AdminHandlers{
		adminService:   adminService,
		authService:    authService,
		sessionService: sessionService,
		broadcaster:    broadcaster,
		logger:         logger,
		perfTracker:    perfTracker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// PostLogin handles POST /api/v1/admin/login
func (h *AdminHandlers) PostLogin(c *gin.Context) {
	marker := h.perfTracker.StartOperation("admin_login")
	defer marker.Complete()

	var req struct {
		Operator string `json:"operator"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		marker.SetSuccess(false)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	token, err := h.authService.Login(req.Operator, req.Password)
	if err != nil {
		marker.SetSuccess(false)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// GetExport handles GET /api/v1/admin/export - streams the session corpus as CSV
func (h *AdminHandlers) GetExport(c *gin.Context) {
	marker := h.perfTracker.StartOperation("admin_export")
	defer marker.Complete()

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="sessions.csv"`)

	if err := h.adminService.ExportSessionsCSV(c.Writer); err != nil {
		marker.SetError(err)
		h.logger.Auth().Error("Session export failed", "error", err.Error())
	}
}

// GetSurge handles GET /api/v1/admin/surge - reports issuance surge state
func (h *AdminHandlers) GetSurge(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"surgeActive": h.sessionService.SurgeActive()})
}

// PostUnquarantine handles POST /api/v1/admin/unquarantine/:identity
func (h *AdminHandlers) PostUnquarantine(c *gin.Context) {
	marker := h.perfTracker.StartOperation("admin_unquarantine")
	defer marker.Complete()

	operator, _ := middleware.OperatorFromContext(c)
	identity := c.Param("identity")

	if err := h.adminService.Unquarantine(identity, operator); err != nil {
		marker.SetError(err)
		if errors.Is(err, verification.ErrTokenNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active quarantine for identity"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to release quarantine"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GetLinks handles GET /api/v1/admin/links/:identity
func (h *AdminHandlers) GetLinks(c *gin.Context) {
	links, err := h.adminService.IdentityLinks(c.Param("identity"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load links"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"links": links})
}

// GetHistory handles GET /api/v1/admin/history/:identity
func (h *AdminHandlers) GetHistory(c *gin.Context) {
	actions, err := h.adminService.IdentityHistory(c.Param("identity"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

// PostRescore handles POST /api/v1/admin/rescore/:token - retries scoring
// for a session stranded in submitted by an engine outage.
func (h *AdminHandlers) PostRescore(c *gin.Context) {
	marker := h.perfTracker.StartOperation("admin_rescore")
	defer marker.Complete()

	if err := h.sessionService.ReScore(c.Param("token")); err != nil {
		marker.SetError(err)
		switch {
		case errors.Is(err, verification.ErrTokenNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "token not found"})
		case errors.Is(err, verification.ErrAlreadySubmitted):
			c.JSON(http.StatusConflict, gin.H{"error": "session is not awaiting scoring"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "rescore failed"})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"ok": true})
}

// GetActionsLive handles GET /api/v1/admin/actions/live - streams audit
// actions to the operator dashboard over a websocket.
func (h *AdminHandlers) GetActionsLive(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Feed().Error("Websocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()

	ch := h.broadcaster.AddClient()
	defer h.broadcaster.RemoveClient(ch)

	h.logger.Feed().Info("Action feed client connected", "clients", h.broadcaster.ClientCount())

	// Drain reads so close frames and pings are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
