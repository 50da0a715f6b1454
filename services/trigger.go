package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/centsible/services-receipts/caching"
	"github.com/centsible/services-receipts/logging"
	"github.com/centsible/services-receipts/models"
	"github.com/centsible/services-receipts/queues"
	"github.com/centsible/services-receipts/store"
)

const extractionRequestTimeout = 10 * time.Second

// ReceiptExtractionTrigger creates the receipt record synchronously,
// then hands the extraction job to the queue without awaiting it.
type ReceiptExtractionTrigger struct {
	receiptStore store.ReceiptStore
	requester    queues.ExtractionRequester
	cachingSvc   caching.CachingService

	logger logging.Logger
}

func NewReceiptExtractionTrigger(
	receiptStore store.ReceiptStore,
	requester queues.ExtractionRequester,
	cachingSvc caching.CachingService,
	l logging.Logger,
) *ReceiptExtractionTrigger {
	return &ReceiptExtractionTrigger{
		receiptStore: receiptStore,
		requester:    requester,
		cachingSvc:   cachingSvc,
		logger:       l,
	}
}

func (t *ReceiptExtractionTrigger) TriggerExtraction(ctx context.Context, imageKey, imageURL, userID string) (string, error) {
	now := time.Now().UTC()
	receipt := models.Receipt{
		ReceiptID: uuid.NewString(),
		UserID:    userID,
		ImageKey:  imageKey,
		ImageURL:  imageURL,
		Status:    models.ReceiptPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := t.receiptStore.CreateReceipt(ctx, receipt); err != nil {
		return "", fmt.Errorf("could not create receipt record: %w", err)
	}

	receiptsKey := fmt.Sprintf("user:receipts:%s", userID)
	if err := t.cachingSvc.Delete(ctx, receiptsKey); err != nil {
		t.logger.Warn("cached receipts invalidation failed", "receipt_id", receipt.ReceiptID, "error", err)
	}

	// Fire-and-forget: the session's outcome is already decided by the
	// record creation above. A lost enqueue is logged and swallowed;
	// the receipt simply stays pending.
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), extractionRequestTimeout)
		defer cancel()

		req := models.ExtractionRequest{
			ReceiptID: receipt.ReceiptID,
			UserID:    userID,
			ImageURL:  imageURL,
		}
		if err := t.requester.RequestExtraction(bgCtx, req); err != nil {
			t.logger.Error("extraction request enqueue failed", "receipt_id", receipt.ReceiptID, "error", err)
		}
	}()

	return receipt.ReceiptID, nil
}
