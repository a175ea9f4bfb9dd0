package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"golang.org/x/term"
)

// ParameterType selects the SSM storage type.
type ParameterType int

const (
	ParamSecureString ParameterType = iota
	ParamString
)

func (t ParameterType) ssmType() ssmtypes.ParameterType {
	if t == ParamString {
		return ssmtypes.ParameterTypeString
	}
	return ssmtypes.ParameterTypeSecureString
}

// BootstrapStep is one SSM parameter the operator supplies.
type BootstrapStep struct {
	HumanLabel string

	// SSMCategoryKey becomes /{env}/docgate/{SSMCategoryKey}.
	SSMCategoryKey string

	// EnvVar is the configuration variable the parameter feeds. The
	// deployed function gets EnvVar+"_SSM_PARAM" pointing at the path.
	EnvVar string

	ParamType  ParameterType
	Prompt     string
	ValidateFn func(ctx context.Context, input string) ValidationResult

	// IsSecret masks terminal input.
	IsSecret bool

	// Optional steps skip on empty input and under --skip-optional.
	Optional bool

	Phase string
}

// maxRetries bounds validation failures per step.
const maxRetries = 5

var errSkipped = errors.New("parameter skipped by operator")

const (
	priceIDPattern       = `^price_[0-9a-zA-Z]{8,}$`
	webhookSecretPattern = `^whsec_[0-9a-zA-Z]{24,}$`
)

// BuildInventory lists every secret docgate reads from SSM, in prompt order.
func BuildInventory(v *Validator) []BootstrapStep {
	priceStep := func(tier, envVar string) BootstrapStep {
		label := "Stripe Price ID (" + tier + ")"
		return BootstrapStep{
			HumanLabel:     label,
			SSMCategoryKey: "billing/price_" + strings.ToLower(tier),
			EnvVar:         envVar,
			ParamType:      ParamString,
			Prompt:         fmt.Sprintf("Paste the recurring price ID for the %s plan (price_...):", tier),
			ValidateFn: func(ctx context.Context, input string) ValidationResult {
				return v.ValidateRegex(ctx, input, priceIDPattern, label)
			},
			Phase: "Stripe",
		}
	}

	return []BootstrapStep{
		{
			HumanLabel:     "Database URL",
			SSMCategoryKey: "database/url",
			EnvVar:         "DATABASE_URL",
			ParamType:      ParamSecureString,
			Prompt: `1. Create the production PostgreSQL database.
   2. Run the migrations against it (go run ./cmd/tools/migrate).
   3. Paste the full postgres://... connection string here:`,
			ValidateFn: v.ValidateDatabaseURL,
			IsSecret:   true,
			Phase:      "Data Stores",
		},
		{
			HumanLabel:     "Redis URL (optional)",
			SSMCategoryKey: "redis/url",
			EnvVar:         "REDIS_URL",
			ParamType:      ParamSecureString,
			Prompt: `Rate limiting uses Redis and fails open without it.
   Paste the redis:// or rediss:// URL (or press Enter to skip):`,
			ValidateFn: v.ValidateRedisURL,
			IsSecret:   true,
			Optional:   true,
			Phase:      "Data Stores",
		},
		{
			HumanLabel:     "Stripe Secret Key",
			SSMCategoryKey: "billing/stripe_secret_key",
			EnvVar:         "STRIPE_SECRET_KEY",
			ParamType:      ParamSecureString,
			Prompt: `1. Go to Stripe Dashboard > Developers > API Keys.
   2. Copy the Secret Key (sk_...) or a restricted key (rk_...).
   3. Paste it here:`,
			ValidateFn: v.ValidateStripeKey,
			IsSecret:   true,
			Phase:      "Stripe",
		},
		{
			HumanLabel:     "Stripe Webhook Signing Secret",
			SSMCategoryKey: "billing/stripe_webhook_secret",
			EnvVar:         "STRIPE_WEBHOOK_SECRET",
			ParamType:      ParamSecureString,
			Prompt: `1. Add an endpoint for https://<api-host>/v1/webhooks/stripe.
   2. Subscribe to customer.subscription.*, checkout.session.completed,
      invoice.paid, invoice.payment_failed and charge.refunded.
   3. Paste the signing secret (whsec_...):`,
			ValidateFn: func(ctx context.Context, input string) ValidationResult {
				return v.ValidateRegex(ctx, input, webhookSecretPattern, "Stripe Webhook Signing Secret")
			},
			IsSecret: true,
			Phase:    "Stripe",
		},
		priceStep("Solo", "STRIPE_PRICE_SOLO"),
		priceStep("Firm", "STRIPE_PRICE_FIRM"),
		priceStep("Enterprise", "STRIPE_PRICE_ENTERPRISE"),
	}
}

// PrintEnvBindings writes the _SSM_PARAM variables that point the config
// loader at each parameter. Optional ones are commented out because a
// binding to a missing parameter fails startup.
func PrintEnvBindings(w io.Writer, env string, inventory []BootstrapStep) {
	for _, step := range inventory {
		prefix := ""
		if step.Optional {
			prefix = "# "
		}
		fmt.Fprintf(w, "%s%s_SSM_PARAM=%s\n", prefix, step.EnvVar, ssmPath(env, step.SSMCategoryKey))
	}
}

// BootstrapRunner walks the inventory against SSM.
type BootstrapRunner struct {
	SSM       *SSMManager
	Validator *Validator
	Stdin     io.Reader
	Stderr    io.Writer

	// SkipOptional auto-skips every Optional step.
	SkipOptional bool

	// scanner is shared so buffered reads are not lost between prompts.
	scanner *bufio.Scanner

	// inventoryOverride replaces BuildInventory in tests.
	inventoryOverride []BootstrapStep
}

func NewBootstrapRunner(bctx *BootstrapContext) *BootstrapRunner {
	return &BootstrapRunner{
		SSM:       NewSSMManager(bctx),
		Validator: NewValidator(),
		Stdin:     os.Stdin,
		Stderr:    os.Stderr,
	}
}

func (r *BootstrapRunner) inventory() []BootstrapStep {
	if r.inventoryOverride != nil {
		return r.inventoryOverride
	}
	return BuildInventory(r.Validator)
}

// Run processes every step in order and prints a summary. Existing
// parameters are offered for skip or overwrite, so reruns are safe.
func (r *BootstrapRunner) Run(ctx context.Context) error {
	inventory := r.inventory()

	var currentPhase string
	var results []stepResult

	for i, step := range inventory {
		if step.Phase != currentPhase {
			currentPhase = step.Phase
			r.printPhaseHeader(currentPhase)
		}

		fmt.Fprintf(r.Stderr, "\n[%d/%d] %s\n", i+1, len(inventory), step.HumanLabel)

		result, err := r.processStep(ctx, step)
		if err != nil {
			return fmt.Errorf("step %q failed: %w", step.HumanLabel, err)
		}
		results = append(results, result)
	}

	r.printSummary(results)
	return nil
}

type stepResult struct {
	Label  string
	Action string // written, skipped, overwritten
	Path   string
}

func (r *BootstrapRunner) processStep(ctx context.Context, step BootstrapStep) (stepResult, error) {
	path := r.SSM.SSMPath(step.SSMCategoryKey)
	result := stepResult{Label: step.HumanLabel, Path: path}

	if step.Optional && r.SkipOptional {
		fmt.Fprintf(r.Stderr, "  Skipped (--skip-optional)\n")
		result.Action = "skipped"
		return result, nil
	}

	exists, err := r.SSM.ParameterExists(ctx, path)
	if err != nil {
		return result, fmt.Errorf("checking existence of %s: %w", path, err)
	}
	if exists {
		fmt.Fprintf(r.Stderr, "  Parameter already exists: %s\n", path)

		choice, err := r.promptChoice("  [S]kip or [O]verwrite? ", map[string]string{
			"s": "skip", "skip": "skip", "o": "overwrite", "overwrite": "overwrite",
		})
		if err != nil {
			return result, fmt.Errorf("reading skip/overwrite choice: %w", err)
		}
		if choice == "skip" {
			fmt.Fprintf(r.Stderr, "  Skipped.\n")
			result.Action = "skipped"
			return result, nil
		}
	}

	value, err := r.promptAndValidate(ctx, step)
	if errors.Is(err, errSkipped) {
		fmt.Fprintf(r.Stderr, "  Skipped.\n")
		result.Action = "skipped"
		return result, nil
	}
	if err != nil {
		return result, err
	}

	if err := r.SSM.Put(ctx, path, value, step.ParamType, exists); err != nil {
		return result, fmt.Errorf("writing SSM parameter %s: %w", path, err)
	}

	result.Action = "written"
	if exists {
		result.Action = "overwritten"
	}
	fmt.Fprintf(r.Stderr, "  Stored: %s\n", path)
	return result, nil
}

// promptAndValidate reads a value and retries on validation failure. Empty
// input on a required step asks whether to skip or retry without consuming
// an attempt.
func (r *BootstrapRunner) promptAndValidate(ctx context.Context, step BootstrapStep) (string, error) {
	fmt.Fprintf(r.Stderr, "\n  %s\n\n", step.Prompt)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		var input string
		var err error
		if step.IsSecret {
			input, err = r.readSecretInput("  > ")
		} else {
			input, err = r.readInput("  > ")
		}
		if err != nil {
			return "", fmt.Errorf("reading input for %s: %w", step.HumanLabel, err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			if step.Optional {
				return "", errSkipped
			}
			choice, err := r.promptChoice("  No input received. [S]kip this parameter or [R]etry? ", map[string]string{
				"s": "skip", "skip": "skip", "r": "retry", "retry": "retry",
			})
			if err != nil {
				return "", fmt.Errorf("reading skip/retry choice for %s: %w", step.HumanLabel, err)
			}
			if choice == "skip" {
				return "", errSkipped
			}
			attempt--
			continue
		}

		// Never echo secrets.
		if step.IsSecret {
			fmt.Fprintf(r.Stderr, "  Received %d chars.\n", len(input))
		}

		if step.ValidateFn != nil {
			vr := step.ValidateFn(ctx, input)
			if !vr.Valid {
				fmt.Fprintf(r.Stderr, "  Validation failed: %s\n", vr.Message)
				if attempt < maxRetries {
					fmt.Fprintf(r.Stderr, "  Try again (%d/%d).\n", attempt, maxRetries)
				}
				continue
			}
			fmt.Fprintf(r.Stderr, "  Validated: %s\n", vr.Message)
		}
		return input, nil
	}

	return "", fmt.Errorf("maximum retries (%d) exceeded for %s", maxRetries, step.HumanLabel)
}

func (r *BootstrapRunner) scanLine() (string, error) {
	if r.scanner == nil {
		r.scanner = bufio.NewScanner(r.Stdin)
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *BootstrapRunner) readInput(prompt string) (string, error) {
	fmt.Fprint(r.Stderr, prompt)
	return r.scanLine()
}

// readSecretInput disables echo when stdin is a terminal and falls back to
// line reads for piped input.
func (r *BootstrapRunner) readSecretInput(prompt string) (string, error) {
	fmt.Fprint(r.Stderr, prompt)

	if f, ok := r.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(r.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading secret input: %w", err)
		}
		return string(password), nil
	}
	return r.scanLine()
}

// promptChoice repeats prompt until the answer is a key of choices.
func (r *BootstrapRunner) promptChoice(prompt string, choices map[string]string) (string, error) {
	for {
		fmt.Fprint(r.Stderr, prompt)
		line, err := r.scanLine()
		if err != nil {
			return "", err
		}
		if choice, ok := choices[strings.TrimSpace(strings.ToLower(line))]; ok {
			return choice, nil
		}
		fmt.Fprintf(r.Stderr, "  Unrecognized answer %q.\n", strings.TrimSpace(line))
	}
}

func (r *BootstrapRunner) printPhaseHeader(phase string) {
	fmt.Fprintf(r.Stderr, "\n============================================================\n")
	fmt.Fprintf(r.Stderr, "  Phase: %s\n", phase)
	fmt.Fprintf(r.Stderr, "============================================================\n")
}

func (r *BootstrapRunner) printSummary(results []stepResult) {
	fmt.Fprintf(r.Stderr, "\n============================================================\n")
	fmt.Fprintf(r.Stderr, "  Bootstrap Summary\n")
	fmt.Fprintf(r.Stderr, "============================================================\n")

	counts := map[string]int{}
	for _, res := range results {
		counts[res.Action]++
		fmt.Fprintf(r.Stderr, "  %-14s %s\n", "["+strings.ToUpper(res.Action)+"]", res.Label)
	}

	fmt.Fprintf(r.Stderr, "------------------------------------------------------------\n")
	fmt.Fprintf(r.Stderr, "  Total: %d parameters\n", len(results))
	fmt.Fprintf(r.Stderr, "  Written: %d | Overwritten: %d | Skipped: %d\n",
		counts["written"], counts["overwritten"], counts["skipped"])
	fmt.Fprintf(r.Stderr, "============================================================\n\n")
	fmt.Fprintf(r.Stderr, "  Next step: add the bindings from `bootstrap --print-env` to each\n")
	fmt.Fprintf(r.Stderr, "  function's environment, then deploy.\n\n")
}
