package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/centsible/services-receipts/apperror"
	"github.com/centsible/services-receipts/caching"
	"github.com/centsible/services-receipts/logging"
	"github.com/centsible/services-receipts/models"
	"github.com/centsible/services-receipts/store"
)

const receiptsCacheTTL = 60 * time.Second

type ReceiptService interface {
	GetReceipts(ctx context.Context, userID string) (*models.ReceiptsResponse, error)
	GetReceiptForOwner(ctx context.Context, receiptID, userID string) (*models.Receipt, error)
}

type ReceiptServiceImpl struct {
	receiptStore store.ReceiptStore
	cachingSvc   caching.CachingService

	logger logging.Logger
}

func NewReceiptServiceImpl(receiptStore store.ReceiptStore, cachingSvc caching.CachingService, l logging.Logger) *ReceiptServiceImpl {
	return &ReceiptServiceImpl{
		receiptStore: receiptStore,
		cachingSvc:   cachingSvc,
		logger:       l,
	}
}

func (svc *ReceiptServiceImpl) GetReceipts(ctx context.Context, userID string) (*models.ReceiptsResponse, error) {
	cacheKey := fmt.Sprintf("user:receipts:%s", userID)

	if cached, ok, err := svc.cachingSvc.Get(ctx, cacheKey); err == nil && ok {
		var resp models.ReceiptsResponse
		if err := json.Unmarshal([]byte(cached), &resp); err == nil {
			return &resp, nil
		}
	}

	receipts, err := svc.receiptStore.ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := &models.ReceiptsResponse{Receipts: receipts}

	if data, err := json.Marshal(resp); err == nil {
		if err := svc.cachingSvc.Set(ctx, cacheKey, string(data), receiptsCacheTTL); err != nil {
			svc.logger.Warn("failed to cache receipts", "user_id", userID, "error", err)
		}
	}

	return resp, nil
}

func (svc *ReceiptServiceImpl) GetReceiptForOwner(ctx context.Context, receiptID, userID string) (*models.Receipt, error) {
	receipt, err := svc.receiptStore.GetReceipt(ctx, receiptID)
	if err != nil {
		return nil, err
	}

	if receipt.UserID != userID {
		return nil, apperror.ErrReceiptNotFound
	}

	return receipt, nil
}
