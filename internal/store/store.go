// Package store is the typed accessor over the DynamoDB jobs and batches
// tables. All queries paginate exhaustively and every status transition is
// a conditional write, so overlapping scheduled runs cannot double-claim a
// batch.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/skillsift/skillsift/internal/retrypolicy"
)

const (
	// StatusIndex is the batches-table GSI keyed by status.
	StatusIndex = "StatusIndex"
	// GroupIndex is the jobs-table GSI keyed by group_id. Reads through it
	// are eventually consistent; callers that need convergence must verify.
	GroupIndex = "GroupIndex"

	maxBatchWrite = 25  // BatchWriteItem request ceiling
	maxBatchGet   = 100 // BatchGetItem request ceiling
)

// ErrConditionFailed is returned when a conditional update loses to a
// concurrent writer. Callers treat it as "someone else claimed this batch"
// and take no further action.
var ErrConditionFailed = errors.New("conditional check failed")

// API is the subset of the DynamoDB client the store uses. Tests provide
// fakes.
type API interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Config configures a Store.
type Config struct {
	DB           API
	JobsTable    string
	BatchesTable string
	Logger       *slog.Logger
	// Retry bounds the re-issue loops for unprocessed batch-read/write
	// entries.
	Retry retrypolicy.Policy
}

// Store provides typed access to the jobs and batches tables.
type Store struct {
	db           API
	jobsTable    string
	batchesTable string
	logger       *slog.Logger
	retry        retrypolicy.Policy
}

// New creates a Store from an existing client.
func New(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := cfg.Retry
	if r.Attempts == 0 {
		r = retrypolicy.New(3, 200*time.Millisecond, 100*time.Millisecond)
	}
	return &Store{
		db:           cfg.DB,
		jobsTable:    cfg.JobsTable,
		batchesTable: cfg.BatchesTable,
		logger:       logger.With("component", "store"),
		retry:        r,
	}
}

// Connect loads AWS credentials from the environment and returns a Store
// bound to the given tables.
func Connect(ctx context.Context, region, jobsTable, batchesTable string, logger *slog.Logger) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return New(Config{
		DB:           dynamodb.NewFromConfig(awsCfg),
		JobsTable:    jobsTable,
		BatchesTable: batchesTable,
		Logger:       logger,
	}), nil
}
