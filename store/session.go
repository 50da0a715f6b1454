package store

import (
	"context"
	"errors"
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

type SessionStore interface {
	CreateSession(ctx context.Context, session models.Session) error

	// GetSession applies the soft-expiry filter: an expired row is
	// reported as apperror.ErrSessionNotFound, same as a missing one.
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)

	// GetSessionForOwner additionally requires an owner match; a
	// mismatch is indistinguishable from not found.
	GetSessionForOwner(ctx context.Context, sessionID, userID string) (*models.Session, error)

	// MarkUploading performs the waiting -> uploading transition as a
	// single conditional update, clearing any previous error. A lost
	// condition is apperror.ErrNotWaiting; callers re-read to classify.
	MarkUploading(ctx context.Context, sessionID string) error

	// CompleteSession and FailSession are the terminal patches. Each
	// removes the other outcome field to keep the result/error
	// invariants.
	CompleteSession(ctx context.Context, sessionID, receiptID string) error
	FailSession(ctx context.Context, sessionID, message string) error

	health.ReadinessCheck
}

type SessionStoreImpl struct {
	client    *dynamodb.Client
	tableName string
}

func NewSessionStoreImpl(client *dynamodb.Client, tableName string) *SessionStoreImpl {
	return &SessionStoreImpl{
		client:    client,
		tableName: tableName,
	}
}

func (s *SessionStoreImpl) IsReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	return retries.Retry(
		ctx,
		retries.HealthAttempts,
		retries.HealthBaseDelay,
		func() error {
			_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
				TableName: aws.String(s.tableName),
			})
			return err
		},
		retries.IsRetriableDbError,
	)
}

func (s *SessionStoreImpl) Name() string {
	return "SessionStore[" + s.tableName + "]"
}

func (s *SessionStoreImpl) CreateSession(ctx context.Context, session models.Session) error {
	item, err := attributevalue.MarshalMap(session)
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
				ConditionExpression: aws.String("attribute_not_exists(session_id)"),
			})
			return err
		},
		retries.IsRetriableDbError,
	)
}

func (s *SessionStoreImpl) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session

	err := retries.Retry(
		ctx,
		retries.DefaultAttempts,
		retries.DefaultBaseDelay,
		func() error {
			out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
				TableName: aws.String(s.tableName),
				Key: map[string]types.AttributeValue{
					"session_id": &types.AttributeValueMemberS{Value: sessionID},
				},
			})
			if err != nil {
				return err
			}

			if out.Item == nil {
				return apperror.ErrSessionNotFound
			}

			return attributevalue.UnmarshalMap(out.Item, &session)
		},
		retries.IsRetriableDbError,
	)
	if err != nil {
		return nil, err
	}

	if session.ExpiredAt(time.Now().UTC()) {
		return nil, apperror.ErrSessionNotFound
	}

	return &session, nil
}

func (s *SessionStoreImpl) GetSessionForOwner(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.UserID != userID {
		return nil, apperror.ErrSessionNotFound
	}

	return session, nil
}

func (s *SessionStoreImpl) MarkUploading(ctx context.Context, sessionID string) error {
	err := retries.Retry(
		ctx,
		retries.DefaultAttempts,
		retries.DefaultBaseDelay,
		func() error {
			_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
				TableName: aws.String(s.tableName),
				Key: map[string]types.AttributeValue{
					"session_id": &types.AttributeValueMemberS{Value: sessionID},
				},
				UpdateExpression:    aws.String("SET #st = :uploading, updated_at = :now REMOVE #er"),
				ConditionExpression: aws.String("attribute_exists(session_id) AND #st = :waiting"),
				ExpressionAttributeNames: map[string]string{
					"#st": "status",
					"#er": "error",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":uploading": &types.AttributeValueMemberS{Value: models.StatusUploading.String()},
					":waiting":   &types.AttributeValueMemberS{Value: models.StatusWaiting.String()},
					":now":       timeAttr(time.Now().UTC()),
				},
			})
			return err
		},
		retries.IsRetriableDbError,
	)

	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return apperror.ErrNotWaiting
	}
	return err
}

func (s *SessionStoreImpl) CompleteSession(ctx context.Context, sessionID, receiptID string) error {
	return s.terminalPatch(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"session_id": &types.AttributeValueMemberS{Value: sessionID},
		},
		UpdateExpression:    aws.String("SET #st = :processed, receipt_id = :rid, updated_at = :now REMOVE #er"),
		ConditionExpression: aws.String("attribute_exists(session_id)"),
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
			"#er": "error",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":processed": &types.AttributeValueMemberS{Value: models.StatusProcessed.String()},
			":rid":       &types.AttributeValueMemberS{Value: receiptID},
			":now":       timeAttr(time.Now().UTC()),
		},
	})
}

func (s *SessionStoreImpl) FailSession(ctx context.Context, sessionID, message string) error {
	return s.terminalPatch(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"session_id": &types.AttributeValueMemberS{Value: sessionID},
		},
		UpdateExpression:    aws.String("SET #st = :error, #er = :msg, updated_at = :now REMOVE receipt_id"),
		ConditionExpression: aws.String("attribute_exists(session_id)"),
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
			"#er": "error",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":error": &types.AttributeValueMemberS{Value: models.StatusError.String()},
			":msg":   &types.AttributeValueMemberS{Value: message},
			":now":   timeAttr(time.Now().UTC()),
		},
	})
}

func (s *SessionStoreImpl) terminalPatch(ctx context.Context, input *dynamodb.UpdateItemInput) error {
	err := retries.Retry(
		ctx,
		retries.DefaultAttempts,
		retries.DefaultBaseDelay,
		func() error {
			_, err := s.client.UpdateItem(ctx, input)
			return err
		},
		retries.IsRetriableDbError,
	)

	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return apperror.ErrSessionNotFound
	}
	return err
}

func timeAttr(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: t.Format(time.RFC3339Nano)}
}
