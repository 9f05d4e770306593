package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CoachCoe/polkadot-sso-sub002/core"
	"github.com/CoachCoe/polkadot-sso-sub002/service"
)

// Handlers contains HTTP handlers for the SSO endpoints
type Handlers struct {
	challenges *service.ChallengeService
	tokens     *service.TokenService
	audits     *service.AuditService
}

// NewHandlers creates new handlers
func NewHandlers(challenges *service.ChallengeService, tokens *service.TokenService, audits *service.AuditService) *Handlers {
	return &Handlers{
		challenges: challenges,
		tokens:     tokens,
		audits:     audits,
	}
}

// Challenge issues a new sign-in challenge for a client/address pair
func (h *Handlers) Challenge(c *gin.Context) {
	clientID := c.Query("client_id")
	address := c.Query("address")
	if clientID == "" || address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "client_id and address are required"})
		return
	}

	ch, err := h.challenges.GenerateChallenge(c.Request.Context(), clientID, address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create challenge"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"challenge_id":  ch.ID,
		"message":       ch.Message,
		"code_verifier": ch.CodeVerifier,
		"state":         ch.State,
		"nonce":         ch.Nonce,
		"expires_at":    ch.ExpiresAt,
	})
}

// Verify checks a signed challenge and returns a single-use
// authorization code
func (h *Handlers) Verify(c *gin.Context) {
	var req struct {
		ChallengeID  string `json:"challenge_id" binding:"required"`
		ClientID     string `json:"client_id" binding:"required"`
		Address      string `json:"address" binding:"required"`
		Signature    string `json:"signature" binding:"required"`
		CodeVerifier string `json:"code_verifier" binding:"required"`
		State        string `json:"state" binding:"required"`
		Message      string `json:"message"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	code, err := h.challenges.Verify(c.Request.Context(), service.VerifyRequest{
		ChallengeID:  req.ChallengeID,
		ClientID:     req.ClientID,
		Address:      req.Address,
		Signature:    req.Signature,
		CodeVerifier: req.CodeVerifier,
		State:        req.State,
		Message:      req.Message,
		IPAddress:    c.ClientIP(),
		UserAgent:    c.GetHeader("User-Agent"),
	})
	if err != nil {
		status, msg := statusForError(err)
		c.JSON(status, gin.H{"error": msg, "reason": core.Reason(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":       code.Code,
		"expires_at": code.ExpiresAt,
	})
}

// Token exchanges an authorization code for a token pair
func (h *Handlers) Token(c *gin.Context) {
	var req struct {
		Code     string `json:"code" binding:"required"`
		ClientID string `json:"client_id" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	sess, err := h.tokens.ExchangeCode(c.Request.Context(), req.Code, req.ClientID)
	if err != nil {
		status, msg := statusForError(err)
		c.JSON(status, gin.H{"error": msg, "reason": core.Reason(err)})
		return
	}

	c.JSON(http.StatusOK, tokenResponse(sess))
}

// Refresh rotates the full token pair behind a refresh token
func (h *Handlers) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	sess, err := h.tokens.RefreshSession(c.Request.Context(), req.RefreshToken)
	if err != nil {
		status, msg := statusForError(err)
		c.JSON(status, gin.H{"error": msg, "reason": core.Reason(err)})
		return
	}

	c.JSON(http.StatusOK, tokenResponse(sess))
}

// Logout invalidates the session behind the presented access token
func (h *Handlers) Logout(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		var req struct {
			AccessToken string `json:"access_token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		token = req.AccessToken
	}

	_, err := h.tokens.InvalidateSession(c.Request.Context(), token)
	if err != nil {
		// A token that is already expired or dead still counts as
		// logged out from the caller's point of view.
		switch core.Reason(err) {
		case "token_expired", "session_inactive", "session_not_found":
			c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
			return
		case "":
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
			return
		}
		status, msg := statusForError(err)
		c.JSON(status, gin.H{"error": msg, "reason": core.Reason(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns information about the authenticated user
func (h *Handlers) Me(c *gin.Context) {
	address, exists := c.Get("userAddress")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User not found in context"})
		return
	}
	clientID, _ := c.Get("clientID")

	c.JSON(http.StatusOK, gin.H{
		"address":   address,
		"client_id": clientID,
	})
}

// Authorize confirms the presented access token is valid
func (h *Handlers) Authorize(c *gin.Context) {
	address, exists := c.Get("userAddress")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User not found in context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authorized": true,
		"address":    address,
	})
}

// Stats reports challenge counters
func (h *Handlers) Stats(c *gin.Context) {
	stats, err := h.challenges.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":   stats.Total,
		"active":  stats.Active,
		"used":    stats.Used,
		"expired": stats.Expired,
	})
}

// Audit lists audit events, newest first
func (h *Handlers) Audit(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	events, err := h.audits.List(c.Request.Context(), core.AuditFilter{
		EventType:   c.Query("event_type"),
		UserAddress: c.Query("address"),
		ClientID:    c.Query("client_id"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load audit log"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

func tokenResponse(sess *core.Session) gin.H {
	expiresIn := (sess.AccessTokenExpiresAt - sess.LastUsedAt) / int64(time.Second/time.Millisecond)
	return gin.H{
		"access_token":  sess.AccessToken,
		"refresh_token": sess.RefreshToken,
		"token_type":    "Bearer",
		"expires_in":    expiresIn,
		"address":       sess.Address,
	}
}

// statusForError maps rejection reasons to status codes. Anything
// without a reason is a storage failure.
func statusForError(err error) (int, string) {
	var coreErr *core.Error
	if !errors.As(err, &coreErr) {
		return http.StatusInternalServerError, "Internal error"
	}
	switch coreErr.Reason {
	case "invalid_request", "client_mismatch":
		return http.StatusBadRequest, coreErr.Message
	case "challenge_not_found", "code_not_found", "session_not_found":
		return http.StatusNotFound, coreErr.Message
	default:
		return http.StatusUnauthorized, coreErr.Message
	}
}
