// Package handlers provides HTTP request handlers for the presentation layer.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aegisx/aegisgate-go/internal/application/services"
	domainservices "github.com/aegisx/aegisgate-go/internal/domain/services"
	"github.com/aegisx/aegisgate-go/internal/domain/verification"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/observability/logging"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/observability/performance"
	"github.com/aegisx/aegisgate-go/pkg/config"
)

// VerifyHandlers contains the public verification endpoints: token
// issuance, evidence submission, status polling, and the engine resolve
// callback.
type VerifyHandlers struct {
	sessionService    *services.SessionService
	resolutionService *services.ResolutionService
	logger            *logging.ChanneledLogger
	perfTracker       *performance.Tracker
}

// NewVerifyHandlers creates verify handlers with injected dependencies
func NewVerifyHandlers(sessionService *services.SessionService, resolutionService *services.ResolutionService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *VerifyHandlers {
	return &VerifyHandlers{
		sessionService:    sessionService,
		resolutionService: resolutionService,
		logger:            logger,
		perfTracker:       perfTracker,
	}
}

// PostIssue handles POST /api/v1/verify/issue - creates a verification session
func (h *VerifyHandlers) PostIssue(c *gin.Context) {
	marker := h.perfTracker.StartOperation("issue_token_request")
	defer marker.Complete()

	var req struct {
		Identity string `json:"identity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		marker.SetSuccess(false)
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid request body"})
		return
	}

	session, err := h.sessionService.Issue(req.Identity)
	if err != nil {
		marker.SetError(err)
		if errors.Is(err, verification.ErrDuplicateIssuance) {
			c.JSON(http.StatusConflict, gin.H{"ok": false, "error": "identity already holds an unresolved token"})
			return
		}
		h.logger.Session().Error("Token issuance failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"token":     session.Token,
		"expiresAt": session.ExpiresAt,
		"link":      config.PublicBaseURL + "/verify?vt=" + session.Token,
	})
}

// PostSubmit handles POST /api/v1/verify/submit - accepts one evidence bundle
func (h *VerifyHandlers) PostSubmit(c *gin.Context) {
	marker := h.perfTracker.StartOperation("submit_evidence_request")
	defer marker.Complete()

	var req services.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		marker.SetSuccess(false)
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid request body"})
		return
	}
	req.ClientIP = c.ClientIP()
	req.UserAgent = c.Request.UserAgent()

	if err := h.sessionService.Submit(&req); err != nil {
		marker.SetError(err)
		switch {
		case errors.Is(err, verification.ErrMalformedEvidence):
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "malformed evidence"})
		case errors.Is(err, verification.ErrTokenNotFound):
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "token not found"})
		case errors.Is(err, verification.ErrTokenExpired):
			c.JSON(http.StatusGone, gin.H{"ok": false, "error": "token expired"})
		case errors.Is(err, verification.ErrAlreadySubmitted):
			c.JSON(http.StatusConflict, gin.H{"ok": false, "error": "token already used"})
		default:
			h.logger.Evidence().Error("Evidence submission failed", "error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to accept evidence"})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"ok": true, "status": string(verification.StatusSubmitted)})
}

// GetStatus handles GET /api/v1/verify/status/:token - the polling endpoint
func (h *VerifyHandlers) GetStatus(c *gin.Context) {
	marker := h.perfTracker.StartOperation("status_request")
	defer marker.Complete()

	result, err := h.sessionService.Status(c.Param("token"))
	if err != nil {
		marker.SetSuccess(false)
		if errors.Is(err, verification.ErrTokenNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "token not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to read status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"status":   result.Status,
		"action":   result.Action,
		"reason":   result.Reason,
		"used":     result.Used,
		"identity": result.Identity,
	})
}

// PostResolve handles POST /api/v1/verify/resolve - the signed verdict
// callback from a remote decision engine.
func (h *VerifyHandlers) PostResolve(c *gin.Context) {
	marker := h.perfTracker.StartOperation("resolve_callback")
	defer marker.Complete()

	var req struct {
		Token                string   `json:"token"`
		Verdict              string   `json:"verdict"`
		Action               string   `json:"action"`
		Reason               string   `json:"reason"`
		CorrelatedIdentities []string `json:"correlatedIdentities"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		marker.SetSuccess(false)
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid request body"})
		return
	}

	verdict := &domainservices.Verdict{
		Status:               verification.Status(req.Verdict),
		Action:               req.Action,
		Reason:               req.Reason,
		CorrelatedIdentities: req.CorrelatedIdentities,
	}

	if err := h.resolutionService.Resolve(req.Token, verdict); err != nil {
		marker.SetError(err)
		if errors.Is(err, verification.ErrTokenNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "token not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
