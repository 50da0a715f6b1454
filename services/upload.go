package services

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/centsible/services-receipts/apperror"
	"github.com/centsible/services-receipts/logging"
	"github.com/centsible/services-receipts/models"
	"github.com/centsible/services-receipts/store"
)

// PresignTTL bounds how long the extraction pipeline can fetch the
// stored image.
const PresignTTL = 1 * time.Hour

// ReceiptUpload is the phone's multipart payload, decoded by the
// handler and validated here.
type ReceiptUpload struct {
	Filename    string
	Size        int64
	ContentType string
	Body        io.Reader
}

// ExtractionTrigger turns an uploaded image into a result record and
// an asynchronous extraction job. Only the record creation is
// synchronous; the job kickoff is fire-and-forget.
type ExtractionTrigger interface {
	TriggerExtraction(ctx context.Context, imageKey, imageURL, userID string) (string, error)
}

type UploadService interface {
	// ProcessUpload drives a session from waiting to a terminal state.
	// It is idempotent for processed sessions and rejects concurrent
	// attempts with apperror.ErrUploadConflict.
	ProcessUpload(ctx context.Context, sessionID string, upload ReceiptUpload) (string, error)
}

type UploadServiceImpl struct {
	sessionStore store.SessionStore
	imageStorage store.ImageStorage
	trigger      ExtractionTrigger

	logger logging.Logger
}

func NewUploadServiceImpl(
	sessionStore store.SessionStore,
	imageStorage store.ImageStorage,
	trigger ExtractionTrigger,
	l logging.Logger,
) *UploadServiceImpl {
	return &UploadServiceImpl{
		sessionStore: sessionStore,
		imageStorage: imageStorage,
		trigger:      trigger,
		logger:       l,
	}
}

func (svc *UploadServiceImpl) ProcessUpload(ctx context.Context, sessionID string, upload ReceiptUpload) (string, error) {
	// The phone holds only the capability URL, so no ownership check.
	session, err := svc.sessionStore.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}

	// Retry after success: hand back the existing receipt, touch nothing.
	if session.Status == models.StatusProcessed && session.ReceiptID != nil {
		return *session.ReceiptID, nil
	}

	// Single conditional update; the store rules out the read-then-act
	// race between two concurrent submissions.
	err = svc.sessionStore.MarkUploading(ctx, sessionID)
	if errors.Is(err, apperror.ErrNotWaiting) {
		return svc.classifyLostTransition(ctx, sessionID)
	}
	if err != nil {
		svc.logger.Error("failed to mark session uploading", "session", logging.TrimID(sessionID), "error", err)
		return "", err
	}

	// From here on the session owes a terminal state: every failure is
	// recorded into the row before it surfaces to the caller.
	receiptID, perr := svc.process(ctx, session, upload)
	if perr != nil {
		msg := perr.Error()
		if ferr := svc.sessionStore.FailSession(ctx, sessionID, msg); ferr != nil {
			svc.logger.Error("failed to record session failure", "session", logging.TrimID(sessionID), "error", ferr)
		}
		svc.logger.Warn("upload processing failed", "session", logging.TrimID(sessionID), "reason", msg)
		return "", apperror.NewProcessingError(msg)
	}

	if err := svc.sessionStore.CompleteSession(ctx, sessionID, receiptID); err != nil {
		// The receipt exists; the polling reader will see the session
		// stall until expiry, but the upload itself succeeded.
		svc.logger.Error("failed to complete session", "session", logging.TrimID(sessionID), "receipt_id", receiptID, "error", err)
	}

	svc.logger.Info("upload processed", "session", logging.TrimID(sessionID), "receipt_id", receiptID)
	return receiptID, nil
}

// classifyLostTransition re-reads a session after a lost conditional
// update and maps its state to the caller-facing outcome.
func (svc *UploadServiceImpl) classifyLostTransition(ctx context.Context, sessionID string) (string, error) {
	current, err := svc.sessionStore.GetSession(ctx, sessionID)
	if err != nil {
		return "", apperror.ErrSessionNotFound
	}

	switch current.Status {
	case models.StatusProcessed:
		if current.ReceiptID != nil {
			return *current.ReceiptID, nil
		}
		return "", apperror.ErrUploadConflict
	case models.StatusUploading:
		return "", apperror.ErrUploadConflict
	case models.StatusError:
		return "", apperror.ErrSessionClosed
	default:
		return "", apperror.ErrUploadConflict
	}
}

func (svc *UploadServiceImpl) process(ctx context.Context, session *models.Session, upload ReceiptUpload) (string, error) {
	if upload.Body == nil || upload.Size <= 0 || upload.Filename == "" {
		return "", errors.New("empty or missing receipt file")
	}

	key := store.BuildObjectKey(upload.Filename)

	if err := svc.imageStorage.Put(ctx, key, upload.Body, upload.Size, upload.ContentType); err != nil {
		return "", errors.New(store.TranslateStorageError(err))
	}

	imageURL, err := svc.imageStorage.PresignGet(ctx, key, PresignTTL)
	if err != nil {
		return "", errors.New(store.TranslateStorageError(err))
	}

	receiptID, err := svc.trigger.TriggerExtraction(ctx, key, imageURL, session.UserID)
	if err != nil {
		return "", err
	}

	return receiptID, nil
}
