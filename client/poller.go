// Package client implements the desktop-side polling loop: a fixed
// 2-second read of the session until it reaches a terminal state.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/centsible/services-receipts/apperror"
	"github.com/centsible/services-receipts/models"
)

const DefaultInterval = 2 * time.Second

type Poller struct {
	BaseURL  string
	Token    string
	Interval time.Duration

	HTTPClient *http.Client
}

func NewPoller(baseURL, token string) *Poller {
	return &Poller{
		BaseURL:    baseURL,
		Token:      token,
		Interval:   DefaultInterval,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Result is the terminal outcome of a hand-off session as observed by
// the poller.
type Result struct {
	Status       models.SessionStatus
	ReceiptID    string
	ErrorMessage string
}

type sessionView struct {
	SessionID    string  `json:"sessionId"`
	Status       string  `json:"status"`
	ReceiptID    *string `json:"receiptId"`
	ErrorMessage *string `json:"errorMessage"`
}

// WaitForResult polls until the session is terminal, the read fails,
// or ctx is cancelled. Expired, foreign and unknown sessions all
// surface as the same not-found error; the loop never distinguishes
// them. There is no backoff and no attempt cap: if the phone never
// uploads, the session expires and the next read ends the loop.
func (p *Poller) WaitForResult(ctx context.Context, sessionID string) (*Result, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, done, err := p.poll(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if done {
			return result, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) poll(ctx context.Context, sessionID string) (*Result, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/sessions/"+sessionID, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+p.Token)

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, false, apperror.ErrSessionNotFound
	default:
		return nil, false, fmt.Errorf("session read failed with status %d", resp.StatusCode)
	}

	var view sessionView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return nil, false, err
	}

	status, err := models.ParseSessionStatus(view.Status)
	if err != nil {
		return nil, false, err
	}

	if !status.Terminal() {
		return nil, false, nil
	}

	result := &Result{Status: status}
	if view.ReceiptID != nil {
		result.ReceiptID = *view.ReceiptID
	}
	if view.ErrorMessage != nil {
		result.ErrorMessage = *view.ErrorMessage
	}
	return result, true, nil
}
