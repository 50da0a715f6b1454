package queues

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/centsible/services-receipts/models"
)

// ExtractionRequester sends the one-way message that kicks off the
// OCR/LLM pipeline for a receipt. Delivery outcome never feeds back
// into the hand-off session.
type ExtractionRequester interface {
	RequestExtraction(ctx context.Context, req models.ExtractionRequest) error
}

type SqsExtractionRequester struct {
	client   *sqs.Client
	queueUrl string
}

func NewSqsExtractionRequester(client *sqs.Client, queueUrl string) *SqsExtractionRequester {
	return &SqsExtractionRequester{
		client:   client,
		queueUrl: queueUrl,
	}
}

func (r *SqsExtractionRequester) RequestExtraction(ctx context.Context, req models.ExtractionRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	_, err = r.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(r.queueUrl),
		MessageBody: aws.String(string(body)),
	})
	return err
}
