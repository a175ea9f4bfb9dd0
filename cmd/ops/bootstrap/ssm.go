package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// SSMClient is the subset of the SSM API the bootstrap tool uses.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// SSMManager writes docgate parameters under the environment's prefix.
// Secret values are never logged; only their length is.
type SSMManager struct {
	client SSMClient
	env    string
	logger *slog.Logger
}

// ssmOperationTimeout is generous to absorb IAM propagation delays during
// first-time setup.
const ssmOperationTimeout = 15 * time.Second

func NewSSMManager(bctx *BootstrapContext) *SSMManager {
	return NewSSMManagerWithClient(ssm.NewFromConfig(bctx.AWSConfig), bctx.Environment, bctx.Logger)
}

func NewSSMManagerWithClient(client SSMClient, env string, logger *slog.Logger) *SSMManager {
	return &SSMManager{client: client, env: env, logger: logger}
}

// SSMPath returns /{env}/docgate/{categoryAndKey}.
func (m *SSMManager) SSMPath(categoryAndKey string) string {
	return ssmPath(m.env, categoryAndKey)
}

func ssmPath(env, categoryAndKey string) string {
	return fmt.Sprintf("/%s/docgate/%s", env, categoryAndKey)
}

// ParameterExists checks path without decrypting it, so kms:Decrypt is not
// needed for the check.
func (m *SSMManager) ParameterExists(ctx context.Context, path string) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, ssmOperationTimeout)
	defer cancel()

	_, err := m.client.GetParameter(opCtx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(false),
	})
	if err != nil {
		var notFound *ssmtypes.ParameterNotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("checking SSM parameter %q: %w", path, err)
	}
	return true, nil
}

// Put stores value at path. New parameters are tagged with the project and
// environment; SSM rejects tags on overwrite, so replacements keep the
// tags they already have. Only the length of a SecureString is logged.
func (m *SSMManager) Put(ctx context.Context, path, value string, kind ParameterType, overwrite bool) error {
	switch {
	case path == "":
		return errors.New("SSM parameter path must not be empty")
	case value == "":
		return fmt.Errorf("SSM parameter value must not be empty for path %q", path)
	}

	in := &ssm.PutParameterInput{
		Name:      aws.String(path),
		Value:     aws.String(value),
		Type:      kind.ssmType(),
		Overwrite: aws.Bool(overwrite),
	}
	if !overwrite {
		in.Tags = []ssmtypes.Tag{
			{Key: aws.String("project"), Value: aws.String("docgate")},
			{Key: aws.String("environment"), Value: aws.String(m.env)},
		}
	}

	opCtx, cancel := context.WithTimeout(ctx, ssmOperationTimeout)
	defer cancel()

	if _, err := m.client.PutParameter(opCtx, in); err != nil {
		var exists *ssmtypes.ParameterAlreadyExists
		if errors.As(err, &exists) {
			return fmt.Errorf("SSM parameter %q already exists: %w", path, err)
		}
		return fmt.Errorf("writing SSM parameter %q: %w", path, err)
	}

	attrs := []any{"path", path, "type", string(in.Type)}
	if kind == ParamSecureString {
		attrs = append(attrs, "value_length", len(value))
	} else {
		attrs = append(attrs, "value", value)
	}
	m.logger.Info("SSM parameter written", attrs...)
	return nil
}
