// Package secrets reads the document-store credentials from AWS Secrets
// Manager. The secret is a JSON object carrying the connection URI plus
// the database and collection names, so one rotation updates all three.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// API is the subset of the Secrets Manager client used here. Tests
// provide fakes.
type API interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// MongoSecret is the JSON shape of the document-store secret.
type MongoSecret struct {
	URI        string `json:"MONGODB_URI"`
	Database   string `json:"database"`
	Collection string `json:"collection"`
}

// Client fetches secrets.
type Client struct {
	sm API
}

// New creates a Client from an existing Secrets Manager client.
func New(sm API) *Client {
	return &Client{sm: sm}
}

// Connect loads AWS credentials from the environment and returns a Client.
func Connect(ctx context.Context, region string) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return New(secretsmanager.NewFromConfig(awsCfg)), nil
}

// MongoSecret fetches and decodes the named document-store secret.
func (c *Client) MongoSecret(ctx context.Context, name string) (*MongoSecret, error) {
	out, err := c.sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch secret %s: %w", name, err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", name)
	}

	var secret MongoSecret
	if err := json.Unmarshal([]byte(*out.SecretString), &secret); err != nil {
		return nil, fmt.Errorf("failed to decode secret %s: %w", name, err)
	}
	if secret.URI == "" {
		return nil, fmt.Errorf("secret %s is missing MONGODB_URI", name)
	}
	return &secret, nil
}
