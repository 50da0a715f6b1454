package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/centsible/services-receipts/config"
	"github.com/centsible/services-receipts/logging"
	"github.com/centsible/services-receipts/tracing"
)

type App struct {
	Router *gin.Engine
	Server *http.Server

	DynamoDB *dynamodb.Client
	S3       *s3.Client
	Redis    *redis.Client
	Sqs      *sqs.Client

	Config    config.Config
	AwsConfig aws.Config

	Services       *Services
	TracerProvider *trace.TracerProvider
	Logger         logging.Logger
}

func SetupApp() (*App, error) {
	cfg := config.LoadConfig()

	if err := cfg.AWSConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.AWSConfig.ValidateSecrets(); err != nil {
		return nil, err
	}

	awsCfg, err := initAWS(cfg.AWSConfig)
	if err != nil {
		return nil, err
	}

	db := initDynamo(awsCfg)
	if db == nil {
		return nil, errors.New("could not init dynamodb")
	}

	s3Client := initS3(awsCfg)
	if s3Client == nil {
		return nil, errors.New("could not init s3")
	}

	sqsClient := initSqs(awsCfg)
	if sqsClient == nil {
		return nil, errors.New("could not init sqs")
	}

	rdb := initRedis(cfg.RedisConfig)

	appLogger := logging.NewSlogLogger(logging.CreateAppLogger(cfg.Env))

	app := &App{
		DynamoDB: db,
		S3:       s3Client,
		Redis:    rdb,
		Sqs:      sqsClient,

		Config:    cfg,
		AwsConfig: awsCfg,
		Logger:    appLogger,
	}

	if app.Config.Tracing {
		tp, err := tracing.InitTracer(context.Background(), "receipts", cfg.TracingAddr)
		if err != nil {
			log.Fatalf("failed to start tracing: %v", err)
		}
		log.Println("tracing in progress...")

		app.TracerProvider = tp
	}

	app.Services = BuildServices(app)
	app.Router = buildRouter(app)

	return app, nil
}

func buildRouter(app *App) *gin.Engine {
	if app.Config.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	if app.Config.Tracing {
		router.Use(otelgin.Middleware("receipts"))
	}

	app.Services.HttpHandler.RegisterRoutes(router, app.Services.RequireAuth)

	return router
}

func (a *App) Run() error {
	a.Server = &http.Server{
		Addr:    a.Config.ServiceConfig.HTTPAddr,
		Handler: a.Router,
	}

	return a.Server.ListenAndServe()
}

func initAWS(cfg config.AWSConfig) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(
		context.Background(),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

func initDynamo(cfg aws.Config) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg)
}

func initS3(cfg aws.Config) *s3.Client {
	return s3.NewFromConfig(cfg)
}

func initSqs(cfg aws.Config) *sqs.Client {
	return sqs.NewFromConfig(cfg)
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       0,
	})
}

func (a *App) Shutdown(ctx context.Context) error {
	log.Println("starting graceful shutdown")

	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			log.Printf("http server shutdown error: %v", err)
		}
	}

	if a.Services != nil {
		if err := a.Services.Shutdown(ctx); err != nil {
			log.Printf("services shutdown error: %v", err)
		}
	}

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
	}

	if a.TracerProvider != nil {
		if err := a.TracerProvider.Shutdown(ctx); err != nil {
			log.Printf("tracer shutdown error: %v", err)
		}
	}

	log.Println("graceful shutdown complete")
	return nil
}
