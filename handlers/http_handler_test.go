package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centsible/services-receipts/apperror"
	"github.com/centsible/services-receipts/auth"
	"github.com/centsible/services-receipts/models"
	"github.com/centsible/services-receipts/services"
)

type stubSessionService struct {
	created *models.Session
	byOwner map[string]*models.Session // sessionID|userID -> session
}

func (s *stubSessionService) CreateSession(ctx context.Context, userID string) (*models.Session, error) {
	if s.created == nil {
		return nil, errors.New("unavailable")
	}
	return s.created, nil
}

func (s *stubSessionService) GetSessionForOwner(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	if found, ok := s.byOwner[sessionID+"|"+userID]; ok {
		return found, nil
	}
	return nil, apperror.ErrSessionNotFound
}

type stubUploadService struct {
	receiptID string
	err       error

	gotSessionID string
	gotUpload    services.ReceiptUpload
}

func (s *stubUploadService) ProcessUpload(ctx context.Context, sessionID string, upload services.ReceiptUpload) (string, error) {
	s.gotSessionID = sessionID
	s.gotUpload = upload
	if s.err != nil {
		return "", s.err
	}
	return s.receiptID, nil
}

type stubReceiptService struct {
	receipts map[string]*models.Receipt
}

func (s *stubReceiptService) GetReceipts(ctx context.Context, userID string) (*models.ReceiptsResponse, error) {
	return &models.ReceiptsResponse{Receipts: []models.Receipt{}}, nil
}

func (s *stubReceiptService) GetReceiptForOwner(ctx context.Context, receiptID, userID string) (*models.Receipt, error) {
	if r, ok := s.receipts[receiptID+"|"+userID]; ok {
		return r, nil
	}
	return nil, apperror.ErrReceiptNotFound
}

type stubTokenStore map[string]string

func (s stubTokenStore) Resolve(ctx context.Context, token string) (string, error) {
	if uid, ok := s[token]; ok {
		return uid, nil
	}
	return "", auth.ErrInvalidToken
}

func (s stubTokenStore) Issue(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	return "", errors.New("not implemented")
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, kv ...any) {}
func (nopLogger) Info(msg string, kv ...any)  {}
func (nopLogger) Warn(msg string, kv ...any)  {}
func (nopLogger) Error(msg string, kv ...any) {}

func newTestRouter(sessions *stubSessionService, uploads *stubUploadService, receipts *stubReceiptService) *gin.Engine {
	gin.SetMode(gin.TestMode)

	handler := NewHttpHandler(
		sessions,
		uploads,
		receipts,
		"https://app.example.com",
		nil,
		nopLogger{},
	)

	tokens := stubTokenStore{"tok-a": "user-a"}
	router := gin.New()
	handler.RegisterRoutes(router, auth.RequireAuth(tokens))
	return router
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return &buf, w.FormDataContentType()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCreateSession(t *testing.T) {
	now := time.Now().UTC()
	sessions := &stubSessionService{
		created: &models.Session{
			SessionID: "sess-abc",
			UserID:    "user-a",
			Status:    models.StatusWaiting,
			CreatedAt: now,
			UpdatedAt: now,
			ExpiresAt: now.Add(models.SessionTTL),
		},
	}
	router := newTestRouter(sessions, &stubUploadService{}, &stubReceiptService{})

	req := httptest.NewRequest(http.MethodPost, "/sessions", nil)
	req.Header.Set("Authorization", "Bearer tok-a")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "sess-abc", body["sessionId"])
	assert.Equal(t, "waiting", body["status"])
	assert.InDelta(t, 3600, body["expiresInSeconds"], 2)
	assert.Contains(t, body["uploadUrl"], "/mobile-upload?session=sess-abc")
	assert.Contains(t, body["qrUrl"], "api.qrserver.com")

	// The owner never leaks into the response.
	raw := rec.Body.String()
	assert.NotContains(t, raw, "user-a")
	assert.NotContains(t, raw, "user_id")
}

func TestCreateSession_Unauthenticated(t *testing.T) {
	router := newTestRouter(&stubSessionService{}, &stubUploadService{}, &stubReceiptService{})

	req := httptest.NewRequest(http.MethodPost, "/sessions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetSession(t *testing.T) {
	receiptID := "rcpt-1"
	now := time.Now().UTC()
	session := &models.Session{
		SessionID: "sess-abc",
		UserID:    "user-a",
		Status:    models.StatusProcessed,
		ReceiptID: &receiptID,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(models.SessionTTL),
	}
	sessions := &stubSessionService{
		byOwner: map[string]*models.Session{"sess-abc|user-a": session},
	}
	router := newTestRouter(sessions, &stubUploadService{}, &stubReceiptService{})

	req := httptest.NewRequest(http.MethodGet, "/sessions/sess-abc", nil)
	req.Header.Set("Authorization", "Bearer tok-a")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "processed", body["status"])
	assert.Equal(t, "rcpt-1", body["receiptId"])
	assert.NotContains(t, rec.Body.String(), "user-a")
}

func TestGetSession_ForeignSessionIsNotFound(t *testing.T) {
	session := &models.Session{SessionID: "sess-abc", UserID: "user-b", Status: models.StatusWaiting}
	sessions := &stubSessionService{
		byOwner: map[string]*models.Session{"sess-abc|user-b": session},
	}
	router := newTestRouter(sessions, &stubUploadService{}, &stubReceiptService{})

	// tok-a resolves to user-a, who does not own sess-abc.
	req := httptest.NewRequest(http.MethodGet, "/sessions/sess-abc", nil)
	req.Header.Set("Authorization", "Bearer tok-a")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadReceipt_Success(t *testing.T) {
	uploads := &stubUploadService{receiptID: "rcpt-9"}
	router := newTestRouter(&stubSessionService{}, uploads, &stubReceiptService{})

	buf, contentType := multipartBody(t, "file", "dinner.jpg", bytes.Repeat([]byte{1}, 10*1024))
	req := httptest.NewRequest(http.MethodPost, "/sessions/sess-abc/upload", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "rcpt-9", body["receiptId"])

	assert.Equal(t, "sess-abc", uploads.gotSessionID)
	assert.Equal(t, "dinner.jpg", uploads.gotUpload.Filename)
	assert.Equal(t, int64(10*1024), uploads.gotUpload.Size)
}

func TestUploadReceipt_StatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not found", apperror.ErrSessionNotFound, http.StatusNotFound},
		{"conflict", apperror.ErrUploadConflict, http.StatusConflict},
		{"closed", apperror.ErrSessionClosed, http.StatusConflict},
		{"processing", apperror.NewProcessingError("storage permission denied"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uploads := &stubUploadService{err: tc.err}
			router := newTestRouter(&stubSessionService{}, uploads, &stubReceiptService{})

			buf, contentType := multipartBody(t, "file", "x.jpg", []byte{1, 2, 3})
			req := httptest.NewRequest(http.MethodPost, "/sessions/sess-abc/upload", buf)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestUploadReceipt_ProcessingErrorBody(t *testing.T) {
	uploads := &stubUploadService{err: apperror.NewProcessingError("storage bucket not found or misconfigured")}
	router := newTestRouter(&stubSessionService{}, uploads, &stubReceiptService{})

	buf, contentType := multipartBody(t, "file", "x.jpg", []byte{1})
	req := httptest.NewRequest(http.MethodPost, "/sessions/sess-abc/upload", buf)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "storage bucket not found or misconfigured", body["error"])
}

func TestUploadReceipt_MissingFileStillReachesProtocol(t *testing.T) {
	// A request without a file must still run the protocol so the
	// validation failure lands in the session row.
	uploads := &stubUploadService{err: apperror.NewProcessingError("empty or missing receipt file")}
	router := newTestRouter(&stubSessionService{}, uploads, &stubReceiptService{})

	req := httptest.NewRequest(http.MethodPost, "/sessions/sess-abc/upload", io.NopCloser(bytes.NewReader(nil)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "sess-abc", uploads.gotSessionID)
	assert.Nil(t, uploads.gotUpload.Body)
}

func TestGetReceipt_OwnerScoped(t *testing.T) {
	receipts := &stubReceiptService{
		receipts: map[string]*models.Receipt{
			"rcpt-1|user-a": {ReceiptID: "rcpt-1", UserID: "user-a", Status: models.ReceiptExtracted},
		},
	}
	router := newTestRouter(&stubSessionService{}, &stubUploadService{}, receipts)

	req := httptest.NewRequest(http.MethodGet, "/receipts/rcpt-1", nil)
	req.Header.Set("Authorization", "Bearer tok-a")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/receipts/rcpt-2", nil)
	req.Header.Set("Authorization", "Bearer tok-a")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
