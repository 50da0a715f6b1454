package config

import (
	"errors"
	"os"
)

type AWSConfig struct {
	Region    string
	AccountID string
}

func (c AWSConfig) Validate() error {
	if c.Region == "" {
		return errors.New("AWS_REGION is required")
	}
	return nil
}

// ValidateSecrets checks that AWS credentials are present in the
// environment before any client is built.
func (c AWSConfig) ValidateSecrets() error {
	if os.Getenv("AWS_ACCESS_KEY_ID") == "" || os.Getenv("AWS_SECRET_ACCESS_KEY") == "" {
		return errors.New("aws credentials are not set")
	}
	return nil
}

type DynamoDBConfig struct {
	SessionsTableName string
	ReceiptsTableName string
}

type S3Config struct {
	ReceiptsBucketName string
}

type RedisConfig struct {
	Addr     string
	Password string
}

type ServiceConfig struct {
	HTTPAddr string

	// PublicOrigin is the origin the phone link is built against,
	// e.g. https://app.centsible.io
	PublicOrigin string

	ExtractionQueueName        string
	ExtractionResultsQueueName string
}

type Config struct {
	Env string

	AWSConfig      AWSConfig
	DynamoDBConfig DynamoDBConfig
	S3Config       S3Config
	RedisConfig    RedisConfig
	ServiceConfig  ServiceConfig

	Tracing     bool
	TracingAddr string
}

func LoadConfig() Config {
	return Config{
		Env: getEnv("APP_ENV", "dev"),

		AWSConfig: AWSConfig{
			Region:    os.Getenv("AWS_REGION"),
			AccountID: os.Getenv("AWS_ACCOUNT_ID"),
		},

		DynamoDBConfig: DynamoDBConfig{
			SessionsTableName: getEnv("SESSIONS_TABLE_NAME", "receipt_sessions"),
			ReceiptsTableName: getEnv("RECEIPTS_TABLE_NAME", "receipts"),
		},

		S3Config: S3Config{
			ReceiptsBucketName: getEnv("RECEIPTS_BUCKET_NAME", "receipt-images"),
		},

		RedisConfig: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},

		ServiceConfig: ServiceConfig{
			HTTPAddr:                   getEnv("HTTP_ADDR", ":8080"),
			PublicOrigin:               getEnv("PUBLIC_ORIGIN", "http://localhost:3000"),
			ExtractionQueueName:        getEnv("EXTRACTION_QUEUE_NAME", "receipt-extraction"),
			ExtractionResultsQueueName: getEnv("EXTRACTION_RESULTS_QUEUE_NAME", "receipt-extraction-results"),
		},

		Tracing:     os.Getenv("TRACING_ENABLED") == "true",
		TracingAddr: getEnv("TRACING_ADDR", "localhost:4317"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
