package secrets

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/plotbeam/renderauth/internal/config"
	"github.com/plotbeam/renderauth/pkg/verifier"
)

// SecretsManagerAPI defines the AWS Secrets Manager operations used by the
// resolver. This allows for mocking in tests.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// awsSource fetches the connection-parameter document from AWS Secrets
// Manager. The client is built lazily on first fetch so that constructing a
// resolver never performs I/O.
type awsSource struct {
	cfg    config.SecretsConfig
	client SecretsManagerAPI
}

// AWSOption is a functional option for configuring the AWS source
type AWSOption func(*awsSource)

// WithSecretsManagerClient sets a custom Secrets Manager client (for testing)
func WithSecretsManagerClient(client SecretsManagerAPI) AWSOption {
	return func(s *awsSource) {
		s.client = client
	}
}

func newAWSSource(cfg config.SecretsConfig, opts ...AWSOption) *awsSource {
	s := &awsSource{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewAWSSource builds a Secrets Manager source. Exposed for wiring code and
// tests; NewResolver uses it through the config switch.
func NewAWSSource(cfg config.SecretsConfig, opts ...AWSOption) Source {
	return newAWSSource(cfg, opts...)
}

func (s *awsSource) Name() string {
	return "aws.secretsmanager"
}

func (s *awsSource) Fetch(ctx context.Context) ([]byte, error) {
	if s.cfg.SecretID == "" {
		return nil, verifier.ConfigurationError{
			Message: "secret identifier is not set",
		}
	}

	client, err := s.buildClient(ctx)
	if err != nil {
		return nil, verifier.ConfigurationError{
			Message: "failed to build AWS Secrets Manager client",
			Err:     err,
		}
	}

	result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &s.cfg.SecretID,
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil, verifier.ConfigurationError{
				Message: fmt.Sprintf("secret %q does not exist", s.cfg.SecretID),
				Err:     err,
			}
		}
		return nil, verifier.ConfigurationError{
			Message: fmt.Sprintf("failed to fetch secret %q", s.cfg.SecretID),
			Err:     err,
		}
	}

	switch {
	case result.SecretString != nil:
		return []byte(*result.SecretString), nil
	case result.SecretBinary != nil:
		return result.SecretBinary, nil
	default:
		return nil, MalformedSecretError{
			Source:  s.Name(),
			Reasons: []string{fmt.Sprintf("secret %q has no value", s.cfg.SecretID)},
		}
	}
}

// buildClient creates the real Secrets Manager client unless one was
// injected via WithSecretsManagerClient.
func (s *awsSource) buildClient(ctx context.Context) (SecretsManagerAPI, error) {
	if s.client != nil {
		return s.client, nil
	}

	var configOpts []func(*awsconfig.LoadOptions) error
	if s.cfg.Region != "" {
		configOpts = append(configOpts, awsconfig.WithRegion(s.cfg.Region))
	}

	// Static credentials are for LocalStack/testing only; production relies
	// on the default credential chain (env vars, IAM role).
	if s.cfg.AccessKeyID != "" && s.cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.cfg.AccessKeyID, s.cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOpts []func(*secretsmanager.Options)
	if s.cfg.Endpoint != "" {
		endpoint := s.cfg.Endpoint
		clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
			o.BaseEndpoint = &endpoint
		})
	}

	s.client = secretsmanager.NewFromConfig(awsCfg, clientOpts...)
	return s.client, nil
}
