package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/centsible/services-receipts/apperror"
	"github.com/centsible/services-receipts/health"
	"github.com/centsible/services-receipts/models"
	"github.com/centsible/services-receipts/retries"
)

type ReceiptStore interface {
	CreateReceipt(ctx context.Context, receipt models.Receipt) error
	GetReceipt(ctx context.Context, receiptID string) (*models.Receipt, error)
	ListByOwner(ctx context.Context, userID string) ([]models.Receipt, error)

	// ApplyExtraction patches a receipt with the pipeline's result and
	// returns the updated record so callers can invalidate caches.
	ApplyExtraction(ctx context.Context, result models.ExtractionResult) (*models.Receipt, error)

	health.ReadinessCheck
}

type ReceiptStoreImpl struct {
	client    *dynamodb.Client
	tableName string
}

func NewReceiptStoreImpl(client *dynamodb.Client, tableName string) *ReceiptStoreImpl {
	return &ReceiptStoreImpl{
		client:    client,
		tableName: tableName,
	}
}

func (s *ReceiptStoreImpl) IsReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	return err
}

func (s *ReceiptStoreImpl) Name() string {
	return "ReceiptStore[" + s.tableName + "]"
}

func (s *ReceiptStoreImpl) CreateReceipt(ctx context.Context, receipt models.Receipt) error {
	item, err := attributevalue.MarshalMap(receipt)
	if err != nil {
		return err
	}

	return retries.Retry(
		ctx,
		retries.DefaultAttempts,
		retries.DefaultBaseDelay,
		func() error {
			_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
				TableName:           aws.String(s.tableName),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(receipt_id)"),
			})
			return err
		},
		retries.IsRetriableDbError,
	)
}

func (s *ReceiptStoreImpl) GetReceipt(ctx context.Context, receiptID string) (*models.Receipt, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"receipt_id": &types.AttributeValueMemberS{Value: receiptID},
		},
	})
	if err != nil {
		return nil, err
	}

	if out.Item == nil {
		return nil, apperror.ErrReceiptNotFound
	}

	var receipt models.Receipt
	if err = attributevalue.UnmarshalMap(out.Item, &receipt); err != nil {
		return nil, err
	}

	return &receipt, nil
}

func (s *ReceiptStoreImpl) ListByOwner(ctx context.Context, userID string) ([]models.Receipt, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String("user_id-index"),
		KeyConditionExpression: aws.String("user_id = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, err
	}

	var receipts []models.Receipt
	if err = attributevalue.UnmarshalListOfMaps(out.Items, &receipts); err != nil {
		return nil, err
	}

	return receipts, nil
}

func (s *ReceiptStoreImpl) ApplyExtraction(ctx context.Context, result models.ExtractionResult) (*models.Receipt, error) {
	var updated map[string]types.AttributeValue

	err := retries.Retry(
		ctx,
		retries.DefaultAttempts,
		retries.DefaultBaseDelay,
		func() error {
			out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
				TableName: aws.String(s.tableName),
				Key: map[string]types.AttributeValue{
					"receipt_id": &types.AttributeValueMemberS{Value: result.ReceiptID},
				},
				UpdateExpression:    aws.String("SET #st = :st, merchant = :m, total_cents = :t, updated_at = :now"),
				ConditionExpression: aws.String("attribute_exists(receipt_id)"),
				ExpressionAttributeNames: map[string]string{
					"#st": "status",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":st":  &types.AttributeValueMemberS{Value: result.Status},
					":m":   &types.AttributeValueMemberS{Value: result.Merchant},
					":t":   &types.AttributeValueMemberN{Value: strconv.FormatInt(result.TotalCents, 10)},
					":now": timeAttr(time.Now().UTC()),
				},
				ReturnValues: types.ReturnValueAllNew,
			})
			if err != nil {
				return err
			}
			updated = out.Attributes
			return nil
		},
		retries.IsRetriableDbError,
	)

	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil, apperror.ErrReceiptNotFound
	}
	if err != nil {
		return nil, err
	}

	var receipt models.Receipt
	if err = attributevalue.UnmarshalMap(updated, &receipt); err != nil {
		return nil, err
	}

	return &receipt, nil
}
