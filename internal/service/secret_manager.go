package service

import (
	"context"
	"fmt"

	"app/internal/config"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// SecretManagerService fetches application secrets from GCP Secret Manager,
// used when deployments keep Stripe and JWT credentials out of the
// environment.
type SecretManagerService interface {
	GetSecret(ctx context.Context, name string) (string, error)
	Close() error
}

type secretManagerService struct {
	client    *secretmanager.Client
	projectID string
}

func NewSecretManagerService(ctx context.Context, cfg *config.Config) (SecretManagerService, error) {
	if cfg.SecretManagerProject == "" {
		return nil, fmt.Errorf("secret manager project is not set")
	}

	var opts []option.ClientOption
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}

	return &secretManagerService{
		client:    client,
		projectID: cfg.SecretManagerProject,
	}, nil
}

// GetSecret returns the latest version of the named secret.
func (s *secretManagerService) GetSecret(ctx context.Context, name string) (string, error) {
	resourceName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.projectID, name)

	result, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resourceName,
	})
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", name, err)
	}

	return string(result.Payload.Data), nil
}

func (s *secretManagerService) Close() error {
	return s.client.Close()
}

// PopulateSecrets fills config fields that were left empty in the
// environment. Missing secrets are not fatal here; the caller validates what
// it actually needs.
func PopulateSecrets(ctx context.Context, sm SecretManagerService, cfg *config.Config) {
	fields := []struct {
		name   string
		target *string
	}{
		{"jwt-secret", &cfg.JWTSecret},
		{"stripe-secret-key", &cfg.StripeSecretKey},
		{"stripe-webhook-secret", &cfg.StripeWebhookSecret},
	}
	for _, f := range fields {
		if *f.target != "" {
			continue
		}
		val, err := sm.GetSecret(ctx, f.name)
		if err != nil {
			continue
		}
		*f.target = val
	}
}
