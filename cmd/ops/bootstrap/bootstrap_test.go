package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// existingAt answers GetParameter as present only for the given paths.
func existingAt(paths ...string) func(context.Context, *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
	present := map[string]bool{}
	for _, p := range paths {
		present[p] = true
	}
	return func(_ context.Context, in *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
		if present[aws.ToString(in.Name)] {
			return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Name: in.Name}}, nil
		}
		return nil, &ssmtypes.ParameterNotFound{Message: aws.String("not found")}
	}
}

func mustEqual(want string) func(context.Context, string) ValidationResult {
	return func(_ context.Context, in string) ValidationResult {
		if in != want {
			return ValidationResult{Valid: false, Message: "want " + want}
		}
		return ValidationResult{Valid: true, Message: "ok"}
	}
}

func newTestRunner(mock *mockSSMClient, stdin string, steps []BootstrapStep) (*BootstrapRunner, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &BootstrapRunner{
		SSM:               newTestSSMManager(mock, "dev", nil),
		Validator:         NewValidatorWithDeps(nil, nil, nil),
		Stdin:             strings.NewReader(stdin),
		Stderr:            out,
		inventoryOverride: steps,
	}, out
}

func TestBuildInventory(t *testing.T) {
	inv := BuildInventory(NewValidatorWithDeps(nil, nil, nil))
	require.Len(t, inv, 7)

	keys := map[string]bool{}
	for _, step := range inv {
		assert.NotEmpty(t, step.HumanLabel)
		assert.NotEmpty(t, step.Prompt, step.HumanLabel)
		assert.NotNil(t, step.ValidateFn, step.HumanLabel)
		assert.NotEmpty(t, step.EnvVar, step.HumanLabel)
		assert.False(t, keys[step.SSMCategoryKey], "duplicate key %s", step.SSMCategoryKey)
		keys[step.SSMCategoryKey] = true

		if step.IsSecret {
			assert.Equal(t, ParamSecureString, step.ParamType, step.HumanLabel)
		}
	}

	assert.Equal(t, "DATABASE_URL", inv[0].EnvVar)
	assert.True(t, inv[1].Optional)
	assert.Equal(t, ParamString, inv[6].ParamType)
	assert.Equal(t, "billing/price_enterprise", inv[6].SSMCategoryKey)
}

func TestBuildInventory_PriceValidation(t *testing.T) {
	inv := BuildInventory(NewValidatorWithDeps(nil, nil, nil))
	solo := inv[4]
	require.Equal(t, "STRIPE_PRICE_SOLO", solo.EnvVar)

	assert.True(t, solo.ValidateFn(context.Background(), "price_1PqRsTuVwX").Valid)
	res := solo.ValidateFn(context.Background(), "prod_1PqRsTuVwX")
	assert.False(t, res.Valid)
	assert.Contains(t, res.Message, "Stripe Price ID (Solo)")
}

func TestPrintEnvBindings(t *testing.T) {
	var buf bytes.Buffer
	PrintEnvBindings(&buf, "staging", BuildInventory(NewValidatorWithDeps(nil, nil, nil)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "DATABASE_URL_SSM_PARAM=/staging/docgate/database/url", lines[0])
	assert.Equal(t, "# REDIS_URL_SSM_PARAM=/staging/docgate/redis/url", lines[1])
	assert.Contains(t, lines, "STRIPE_WEBHOOK_SECRET_SSM_PARAM=/staging/docgate/billing/stripe_webhook_secret")
}

func TestRun_WritesRetriesAndSkips(t *testing.T) {
	steps := []BootstrapStep{
		{HumanLabel: "Alpha", SSMCategoryKey: "a", ParamType: ParamSecureString, IsSecret: true, ValidateFn: mustEqual("good"), Phase: "One"},
		{HumanLabel: "Beta", SSMCategoryKey: "b", ParamType: ParamString, Optional: true, Phase: "One"},
		{HumanLabel: "Gamma", SSMCategoryKey: "c", ParamType: ParamSecureString, Phase: "Two"},
		{HumanLabel: "Delta", SSMCategoryKey: "d", ParamType: ParamString, Phase: "Two"},
	}
	mock := &mockSSMClient{getParameterFn: existingAt("/dev/docgate/c", "/dev/docgate/d")}

	// Alpha: one bad value then the good one. Beta: empty. Gamma: overwrite.
	// Delta: keep.
	stdin := "bad\ngood\n\no\nnew-gamma\ns\n"
	runner, out := newTestRunner(mock, stdin, steps)

	require.NoError(t, runner.Run(context.Background()))

	require.Len(t, mock.putCalls, 2)
	assert.Equal(t, "/dev/docgate/a", aws.ToString(mock.putCalls[0].Name))
	assert.Equal(t, "good", aws.ToString(mock.putCalls[0].Value))
	assert.False(t, aws.ToBool(mock.putCalls[0].Overwrite))

	assert.Equal(t, "/dev/docgate/c", aws.ToString(mock.putCalls[1].Name))
	assert.Equal(t, "new-gamma", aws.ToString(mock.putCalls[1].Value))
	assert.True(t, aws.ToBool(mock.putCalls[1].Overwrite))

	log := out.String()
	assert.Contains(t, log, "Phase: One")
	assert.Contains(t, log, "Phase: Two")
	assert.Contains(t, log, "Validation failed: want good")
	assert.Contains(t, log, "Received 4 chars.")
	assert.NotContains(t, log, "new-gamma")
	assert.Contains(t, log, "Written: 1 | Overwritten: 1 | Skipped: 2")
}

func TestRun_SkipOptional(t *testing.T) {
	steps := []BootstrapStep{
		{HumanLabel: "Cache", SSMCategoryKey: "redis/url", Optional: true, ParamType: ParamSecureString},
	}
	mock := &mockSSMClient{getParameterFn: existingAt()}
	runner, out := newTestRunner(mock, "", steps)
	runner.SkipOptional = true

	require.NoError(t, runner.Run(context.Background()))
	assert.Empty(t, mock.getCalls)
	assert.Empty(t, mock.putCalls)
	assert.Contains(t, out.String(), "--skip-optional")
}

func TestRun_EmptyRequiredInput(t *testing.T) {
	steps := []BootstrapStep{{HumanLabel: "Key", SSMCategoryKey: "k", ParamType: ParamString}}

	t.Run("retry then value", func(t *testing.T) {
		mock := &mockSSMClient{getParameterFn: existingAt()}
		runner, _ := newTestRunner(mock, "\nr\nvalue\n", steps)
		require.NoError(t, runner.Run(context.Background()))
		require.Len(t, mock.putCalls, 1)
		assert.Equal(t, "value", aws.ToString(mock.putCalls[0].Value))
	})

	t.Run("skip", func(t *testing.T) {
		mock := &mockSSMClient{getParameterFn: existingAt()}
		runner, _ := newTestRunner(mock, "\nmaybe\ns\n", steps)
		require.NoError(t, runner.Run(context.Background()))
		assert.Empty(t, mock.putCalls)
	})
}

func TestRun_MaxRetriesExceeded(t *testing.T) {
	steps := []BootstrapStep{{HumanLabel: "Key", SSMCategoryKey: "k", ParamType: ParamString, ValidateFn: mustEqual("right")}}
	mock := &mockSSMClient{getParameterFn: existingAt()}
	runner, _ := newTestRunner(mock, strings.Repeat("wrong\n", maxRetries), steps)

	err := runner.Run(context.Background())
	assert.ErrorContains(t, err, "maximum retries")
	assert.Empty(t, mock.putCalls)
}

func TestRun_InputExhausted(t *testing.T) {
	steps := []BootstrapStep{{HumanLabel: "Key", SSMCategoryKey: "k", ParamType: ParamString}}
	runner, _ := newTestRunner(&mockSSMClient{getParameterFn: existingAt()}, "", steps)

	assert.ErrorContains(t, runner.Run(context.Background()), `step "Key" failed`)
}
