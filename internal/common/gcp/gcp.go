// Package gcp builds authenticated Google Cloud clients.
package gcp

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

// ClientOptions returns the auth options for a client. When tokenEnvVar is set
// the access token is read from that variable, otherwise application default
// credentials are used.
func ClientOptions(tokenEnvVar string) ([]option.ClientOption, error) {
	if tokenEnvVar == "" {
		return nil, nil
	}
	token := os.Getenv(tokenEnvVar)
	if token == "" {
		return nil, fmt.Errorf("environment variable %s is empty or not set", tokenEnvVar)
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	return []option.ClientOption{option.WithTokenSource(src)}, nil
}

func NewStorageClient(ctx context.Context, tokenEnvVar string) (*storage.Client, error) {
	opts, err := ClientOptions(tokenEnvVar)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return client, nil
}

func NewBigQueryClient(ctx context.Context, projectID, tokenEnvVar string) (*bigquery.Client, error) {
	opts, err := ClientOptions(tokenEnvVar)
	if err != nil {
		return nil, err
	}
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	return client, nil
}
