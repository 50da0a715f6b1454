package test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centsible/services-receipts/apperror"
	"github.com/centsible/services-receipts/caching"
	"github.com/centsible/services-receipts/logging"
	"github.com/centsible/services-receipts/models"
	"github.com/centsible/services-receipts/queues"
	"github.com/centsible/services-receipts/store"
)

const awsEndpoint = "http://localhost:4566"

type TestEnv struct {
	Dynamo   *dynamodb.Client
	Sqs      *sqs.Client
	QueueURL string
}

func setupTestEnv(t *testing.T) *TestEnv {
	if os.Getenv("LOCALSTACK") == "" {
		t.Skip("set LOCALSTACK=1 to run integration tests against localstack")
	}

	ctx := context.Background()

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion("us-east-1"))
	require.NoError(t, err)

	db := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		o.BaseEndpoint = aws.String(awsEndpoint)
	})

	sqsClient := sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		o.BaseEndpoint = aws.String(awsEndpoint)
	})

	createTable := func(name, key string) {
		_, err := db.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String(name),
			AttributeDefinitions: []types.AttributeDefinition{
				{
					AttributeName: aws.String(key),
					AttributeType: types.ScalarAttributeTypeS,
				},
			},
			KeySchema: []types.KeySchemaElement{
				{
					AttributeName: aws.String(key),
					KeyType:       types.KeyTypeHash,
				},
			},
			BillingMode: types.BillingModePayPerRequest,
		})

		var exists *types.ResourceInUseException
		if err != nil && !errors.As(err, &exists) {
			require.NoError(t, err)
		}
	}

	createTable("receipt_sessions", "session_id")
	createTable("receipts", "receipt_id")

	q, err := sqsClient.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName: aws.String("receipt-extraction-results"),
	})
	require.NoError(t, err)

	return &TestEnv{
		Dynamo:   db,
		Sqs:      sqsClient,
		QueueURL: *q.QueueUrl,
	}
}

func newWaitingSession(id string) models.Session {
	now := time.Now().UTC()
	return models.Session{
		SessionID: id,
		UserID:    "user-a",
		Status:    models.StatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(models.SessionTTL),
	}
}

func TestSessionStore_TransitionFlow(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	sessionStore := store.NewSessionStoreImpl(env.Dynamo, "receipt_sessions")

	session := newWaitingSession("it-sess-flow")
	require.NoError(t, sessionStore.CreateSession(ctx, session))

	// Duplicate id is rejected by the conditional put.
	require.Error(t, sessionStore.CreateSession(ctx, session))

	got, err := sessionStore.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, got.Status)

	// First transition wins, second loses the condition.
	require.NoError(t, sessionStore.MarkUploading(ctx, session.SessionID))
	err = sessionStore.MarkUploading(ctx, session.SessionID)
	require.ErrorIs(t, err, apperror.ErrNotWaiting)

	require.NoError(t, sessionStore.CompleteSession(ctx, session.SessionID, "rcpt-1"))

	got, err = sessionStore.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessed, got.Status)
	require.NotNil(t, got.ReceiptID)
	assert.Equal(t, "rcpt-1", *got.ReceiptID)
	assert.Nil(t, got.Error)
}

func TestSessionStore_SoftExpiry(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	sessionStore := store.NewSessionStoreImpl(env.Dynamo, "receipt_sessions")

	session := newWaitingSession("it-sess-expired")
	session.CreatedAt = session.CreatedAt.Add(-models.SessionTTL - time.Minute)
	session.ExpiresAt = session.CreatedAt.Add(models.SessionTTL)
	require.NoError(t, sessionStore.CreateSession(ctx, session))

	// Row exists but every read hides it.
	_, err := sessionStore.GetSession(ctx, session.SessionID)
	require.ErrorIs(t, err, apperror.ErrSessionNotFound)

	_, err = sessionStore.GetSessionForOwner(ctx, session.SessionID, "user-a")
	require.ErrorIs(t, err, apperror.ErrSessionNotFound)
}

func TestSessionStore_OwnerIsolation(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	sessionStore := store.NewSessionStoreImpl(env.Dynamo, "receipt_sessions")

	session := newWaitingSession("it-sess-owner")
	require.NoError(t, sessionStore.CreateSession(ctx, session))

	_, err := sessionStore.GetSessionForOwner(ctx, session.SessionID, "user-b")
	require.ErrorIs(t, err, apperror.ErrSessionNotFound)
}

func TestExtractionResults_AppliedToReceipt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	env := setupTestEnv(t)

	receiptStore := store.NewReceiptStoreImpl(env.Dynamo, "receipts")
	logger := logging.NewSlogLogger(logging.CreateAppLogger("test"))

	now := time.Now().UTC()
	receipt := models.Receipt{
		ReceiptID: "it-rcpt-1",
		UserID:    "user-a",
		ImageKey:  "receipts/123-abcd-groceries.jpg",
		Status:    models.ReceiptPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, receiptStore.CreateReceipt(ctx, receipt))

	receiver := queues.NewExtractionResultsReceiverImpl(
		ctx,
		env.Sqs,
		receiptStore,
		caching.NewNullCachingService(),
		env.QueueURL,
		logger,
	)
	receiver.Start()
	t.Cleanup(func() {
		shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shCancel()
		receiver.Shutdown(shCtx)
	})

	result := models.ExtractionResult{
		ReceiptID:  receipt.ReceiptID,
		Status:     string(models.ReceiptExtracted),
		Merchant:   "Trader Joe's",
		TotalCents: 4523,
	}
	body, err := json.Marshal(result)
	require.NoError(t, err)

	_, err = env.Sqs.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(env.QueueURL),
		MessageBody: aws.String(string(body)),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := receiptStore.GetReceipt(ctx, receipt.ReceiptID)
		if err != nil {
			return false
		}
		return got.Status == models.ReceiptExtracted && got.Merchant == "Trader Joe's"
	}, 15*time.Second, 500*time.Millisecond)
}
