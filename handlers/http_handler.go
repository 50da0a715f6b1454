package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/centsible/services-receipts/apperror"
	"github.com/centsible/services-receipts/auth"
	"github.com/centsible/services-receipts/health"
	"github.com/centsible/services-receipts/logging"
	"github.com/centsible/services-receipts/models"
	"github.com/centsible/services-receipts/services"
)

const qrServiceURL = "https://api.qrserver.com/v1/create-qr-code/?size=240x240&data="

type HttpHandler struct {
	sessionService services.SessionService
	uploadService  services.UploadService
	receiptService services.ReceiptService

	publicOrigin string
	checks       []health.ReadinessCheck

	logger logging.Logger
}

func NewHttpHandler(
	sessionSvc services.SessionService,
	uploadSvc services.UploadService,
	receiptSvc services.ReceiptService,
	publicOrigin string,
	checks []health.ReadinessCheck,
	l logging.Logger,
) *HttpHandler {
	return &HttpHandler{
		sessionService: sessionSvc,
		uploadService:  uploadSvc,
		receiptService: receiptSvc,
		publicOrigin:   publicOrigin,
		checks:         checks,
		logger:         l,
	}
}

func (h *HttpHandler) RegisterRoutes(router *gin.Engine, requireAuth gin.HandlerFunc) {
	router.GET("/health", h.healthCheck)

	// Capability-based: the unguessable session id in the URL is the
	// only credential the phone holds.
	router.POST("/sessions/:id/upload", h.uploadReceipt)

	authed := router.Group("/")
	authed.Use(requireAuth)

	authed.POST("/sessions", h.createSession)
	authed.GET("/sessions/:id", h.getSession)
	authed.GET("/receipts", h.listReceipts)
	authed.GET("/receipts/:id", h.getReceipt)
}

// sessionView deliberately omits the owner: the session id is a bearer
// capability, the response must not tie it to a user.
type sessionView struct {
	SessionID    string    `json:"sessionId"`
	Status       string    `json:"status"`
	ReceiptID    *string   `json:"receiptId"`
	ErrorMessage *string   `json:"errorMessage"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toSessionView(s *models.Session) sessionView {
	return sessionView{
		SessionID:    s.SessionID,
		Status:       s.Status.String(),
		ReceiptID:    s.ReceiptID,
		ErrorMessage: s.Error,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func (h *HttpHandler) createSession(c *gin.Context) {
	userID := c.GetString(auth.UserIDKey)

	session, err := h.sessionService.CreateSession(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create session"})
		return
	}

	uploadURL := fmt.Sprintf("%s/mobile-upload?session=%s", h.publicOrigin, session.SessionID)

	c.JSON(http.StatusCreated, gin.H{
		"sessionId":        session.SessionID,
		"status":           session.Status.String(),
		"expiresInSeconds": int(time.Until(session.ExpiresAt).Seconds()),
		"uploadUrl":        uploadURL,
		"qrUrl":            qrServiceURL + url.QueryEscape(uploadURL),
	})
}

func (h *HttpHandler) getSession(c *gin.Context) {
	userID := c.GetString(auth.UserIDKey)
	sessionID := c.Param("id")

	session, err := h.sessionService.GetSessionForOwner(c.Request.Context(), sessionID, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found or expired"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read session"})
		return
	}

	c.JSON(http.StatusOK, toSessionView(session))
}

func (h *HttpHandler) uploadReceipt(c *gin.Context) {
	sessionID := c.Param("id")

	// Decode the multipart payload leniently; validation is a protocol
	// step and its failure must land in the session row, not a 400.
	var upload services.ReceiptUpload
	if fileHeader, err := c.FormFile("file"); err == nil {
		file, err := fileHeader.Open()
		if err == nil {
			defer file.Close()
			upload = services.ReceiptUpload{
				Filename:    fileHeader.Filename,
				Size:        fileHeader.Size,
				ContentType: fileHeader.Header.Get("Content-Type"),
				Body:        file,
			}
		}
	}

	receiptID, err := h.uploadService.ProcessUpload(c.Request.Context(), sessionID, upload)
	if err != nil {
		h.writeUploadError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"receiptId": receiptID,
	})
}

func (h *HttpHandler) writeUploadError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperror.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found or expired"})
	case errors.Is(err, apperror.ErrUploadConflict):
		c.JSON(http.StatusConflict, gin.H{"error": apperror.ErrUploadConflict.Error()})
	case errors.Is(err, apperror.ErrSessionClosed):
		c.JSON(http.StatusConflict, gin.H{"error": apperror.ErrSessionClosed.Error()})
	default:
		var procErr *apperror.ProcessingError
		if errors.As(err, &procErr) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": procErr.Msg})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload processing failed"})
	}
}

func (h *HttpHandler) listReceipts(c *gin.Context) {
	userID := c.GetString(auth.UserIDKey)

	resp, err := h.receiptService.GetReceipts(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list receipts"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *HttpHandler) getReceipt(c *gin.Context) {
	userID := c.GetString(auth.UserIDKey)
	receiptID := c.Param("id")

	receipt, err := h.receiptService.GetReceiptForOwner(c.Request.Context(), receiptID, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrReceiptNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "receipt not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read receipt"})
		return
	}

	c.JSON(http.StatusOK, receipt)
}

func (h *HttpHandler) healthCheck(c *gin.Context) {
	for _, check := range h.checks {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 500*time.Millisecond)
		err := check.IsReady(ctx)
		cancel()

		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"check":  check.Name(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
