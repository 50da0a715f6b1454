package queues

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/centsible/services-receipts/caching"
	"github.com/centsible/services-receipts/logging"
	"github.com/centsible/services-receipts/models"
	"github.com/centsible/services-receipts/store"
)

// ExtractionResultsReceiver consumes the pipeline's result events and
// applies them to receipt records.
type ExtractionResultsReceiver interface {
	Start()
	Shutdown(ctx context.Context) error
}

type ExtractionResultsReceiverImpl struct {
	client       *sqs.Client
	receiptStore store.ReceiptStore
	cachingSvc   caching.CachingService
	queueUrl     string

	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewExtractionResultsReceiverImpl(
	parent context.Context,
	client *sqs.Client,
	receiptStore store.ReceiptStore,
	cachingSvc caching.CachingService,
	queueUrl string,
	l logging.Logger,
) *ExtractionResultsReceiverImpl {

	ctx, cancel := context.WithCancel(parent)

	return &ExtractionResultsReceiverImpl{
		client:       client,
		receiptStore: receiptStore,
		cachingSvc:   cachingSvc,
		queueUrl:     queueUrl,
		logger:       l,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (r *ExtractionResultsReceiverImpl) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.pollLoop()
	}()
}

func (r *ExtractionResultsReceiverImpl) pollLoop() error {
	for {
		select {
		case <-r.ctx.Done():
			return r.ctx.Err()
		default:
		}

		out, err := r.client.ReceiveMessage(r.ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(r.queueUrl),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     20, // long poll
			VisibilityTimeout:   30,
		})
		if err != nil {
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range out.Messages {
			r.handleMessage(r.ctx, msg)
		}
	}
}

func (r *ExtractionResultsReceiverImpl) deleteMessage(ctx context.Context, msg types.Message) error {
	_, err := r.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(r.queueUrl),
		ReceiptHandle: msg.ReceiptHandle,
	})
	return err
}

func (r *ExtractionResultsReceiverImpl) handleMessage(ctx context.Context, msg types.Message) {
	if msg.Body == nil {
		r.deleteMessage(ctx, msg)
		return
	}

	var result models.ExtractionResult
	if err := json.Unmarshal([]byte(*msg.Body), &result); err != nil {
		// poison message
		r.deleteMessage(ctx, msg)
		return
	}

	if result.ReceiptID == "" || result.Status == "" {
		r.deleteMessage(ctx, msg)
		return
	}

	receipt, err := r.receiptStore.ApplyExtraction(ctx, result)
	if err != nil {
		r.logger.Error("failed to apply extraction result", "receipt_id", result.ReceiptID, "error", err)
		return // leave for redelivery
	}

	receiptsKey := fmt.Sprintf("user:receipts:%s", receipt.UserID)
	if err = r.cachingSvc.Delete(ctx, receiptsKey); err != nil {
		r.logger.Warn("cached receipts invalidation failed", "receipt_id", receipt.ReceiptID, "error", err)
	}

	r.logger.Info("extraction result applied", "receipt_id", receipt.ReceiptID, "status", result.Status)
	r.deleteMessage(ctx, msg)
}

func (r *ExtractionResultsReceiverImpl) Shutdown(ctx context.Context) error {
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
