package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/centsible/services-receipts/apperror"
	"github.com/centsible/services-receipts/logging"
	"github.com/centsible/services-receipts/models"
	"github.com/centsible/services-receipts/store"
)

type SessionService interface {
	CreateSession(ctx context.Context, userID string) (*models.Session, error)
	GetSessionForOwner(ctx context.Context, sessionID, userID string) (*models.Session, error)
}

type SessionServiceImpl struct {
	sessionStore store.SessionStore
	logger       logging.Logger
}

func NewSessionServiceImpl(sessionStore store.SessionStore, l logging.Logger) *SessionServiceImpl {
	return &SessionServiceImpl{
		sessionStore: sessionStore,
		logger:       l,
	}
}

func (svc *SessionServiceImpl) CreateSession(ctx context.Context, userID string) (*models.Session, error) {
	sessionID, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	session := models.Session{
		SessionID: sessionID,
		UserID:    userID,
		Status:    models.StatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(models.SessionTTL),
	}

	if err := svc.sessionStore.CreateSession(ctx, session); err != nil {
		svc.logger.Error("failed to create session", "error", err)
		return nil, fmt.Errorf("%w: %v", apperror.ErrStoreUnavailable, err)
	}

	svc.logger.Info("session created", "session", logging.TrimID(sessionID), "user_id", userID)
	return &session, nil
}

func (svc *SessionServiceImpl) GetSessionForOwner(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	return svc.sessionStore.GetSessionForOwner(ctx, sessionID, userID)
}

// GenerateSessionID returns a cryptographically random capability id.
// 32 bytes = 256 bits of entropy; the id alone grants upload access.
func GenerateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
