package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/centsible/services-receipts/auth"
	"github.com/centsible/services-receipts/caching"
	"github.com/centsible/services-receipts/handlers"
	"github.com/centsible/services-receipts/health"
	"github.com/centsible/services-receipts/queues"
	"github.com/centsible/services-receipts/services"
	"github.com/centsible/services-receipts/store"
)

type Stores struct {
	sessions store.SessionStore
	receipts store.ReceiptStore
	images   store.ImageStorage
}

type Services struct {
	Sessions services.SessionService
	Uploads  services.UploadService
	Receipts services.ReceiptService
	Results  queues.ExtractionResultsReceiver

	Stores *Stores

	HttpHandler *handlers.HttpHandler
	RequireAuth gin.HandlerFunc
}

type Shutdowner interface {
	Shutdown(context.Context) error
}

func BuildServices(app *App) *Services {
	sessStore := store.NewSessionStoreImpl(app.DynamoDB, app.Config.DynamoDBConfig.SessionsTableName)
	receiptStore := store.NewReceiptStoreImpl(app.DynamoDB, app.Config.DynamoDBConfig.ReceiptsTableName)
	imageStorage := store.NewS3ImageStorage(app.S3, app.Config.S3Config.ReceiptsBucketName, app.Logger)

	var cachingSvc caching.CachingService
	cachingSvc = caching.NewNullCachingService()
	if app.Redis != nil {
		cachingSvc = caching.NewRedisCachingService(app.Redis)
	}

	requestQueueUrl := queueUrl(app, app.Config.ServiceConfig.ExtractionQueueName)
	resultsQueueUrl := queueUrl(app, app.Config.ServiceConfig.ExtractionResultsQueueName)

	requester := queues.NewSqsExtractionRequester(app.Sqs, requestQueueUrl)
	trigger := services.NewReceiptExtractionTrigger(receiptStore, requester, cachingSvc, app.Logger)

	sessSvc := services.NewSessionServiceImpl(sessStore, app.Logger)
	uploadSvc := services.NewUploadServiceImpl(sessStore, imageStorage, trigger, app.Logger)
	receiptSvc := services.NewReceiptServiceImpl(receiptStore, cachingSvc, app.Logger)

	resultsReceiver := queues.NewExtractionResultsReceiverImpl(
		context.Background(),
		app.Sqs,
		receiptStore,
		cachingSvc,
		resultsQueueUrl,
		app.Logger,
	)
	resultsReceiver.Start()

	checks := []health.ReadinessCheck{sessStore, receiptStore}
	if rc, ok := cachingSvc.(health.ReadinessCheck); ok {
		checks = append(checks, rc)
	}

	handler := handlers.NewHttpHandler(
		sessSvc,
		uploadSvc,
		receiptSvc,
		app.Config.ServiceConfig.PublicOrigin,
		checks,
		app.Logger,
	)

	var requireAuth gin.HandlerFunc
	if app.Redis != nil {
		requireAuth = auth.RequireAuth(auth.NewRedisTokenStore(app.Redis))
	} else {
		// Without redis every authenticated route is a 401; the
		// capability upload route still works.
		requireAuth = auth.RequireAuth(noTokens{})
	}

	return &Services{
		Sessions: sessSvc,
		Uploads:  uploadSvc,
		Receipts: receiptSvc,
		Results:  resultsReceiver,

		Stores: &Stores{
			sessions: sessStore,
			receipts: receiptStore,
			images:   imageStorage,
		},

		HttpHandler: handler,
		RequireAuth: requireAuth,
	}
}

type noTokens struct{}

func (noTokens) Resolve(ctx context.Context, token string) (string, error) {
	return "", auth.ErrInvalidToken
}

func (noTokens) Issue(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	return "", errors.New("token issuing disabled")
}

func queueUrl(app *App, name string) string {
	return fmt.Sprintf(
		"https://sqs.%s.amazonaws.com/%s/%s",
		app.Config.AWSConfig.Region,
		app.Config.AWSConfig.AccountID,
		name,
	)
}

func (s *Services) Shutdown(ctx context.Context) error {
	log.Println("shutting down services")

	if s.Results != nil {
		if err := s.Results.Shutdown(ctx); err != nil {
			log.Printf("results receiver shutdown error: %v", err)
		}
	}

	if s.Stores != nil {
		if err := s.Stores.Shutdown(ctx); err != nil {
			log.Printf("stores shutdown error: %v", err)
		}
	}

	log.Println("services shutdown complete")
	return nil
}

func (s *Stores) Shutdown(ctx context.Context) error {
	shutdownIfPossible := func(name string, v any) {
		if sh, ok := v.(Shutdowner); ok {
			if err := sh.Shutdown(ctx); err != nil {
				log.Printf("%s store shutdown error: %v", name, err)
			}
		}
	}

	shutdownIfPossible("sessions", s.sessions)
	shutdownIfPossible("receipts", s.receipts)
	shutdownIfPossible("images", s.images)

	return nil
}
