// Package cli implements feedbackctl, the command-line surface of the session lifecycle.
package cli

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"feedback-collector/backend/internal/config"
)

// RootOptions holds global flags and the factory used to wire the application.
type RootOptions struct {
	Format string // "text" | "json"

	// Open wires the application. Tests replace it; the default loads config from the environment.
	Open func(ctx context.Context) (*App, error)
}

// ValidFormats are the accepted values of --format.
var ValidFormats = []string{"text", "json"}

func openFromEnv(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewApp(ctx, cfg)
}

// NewRootCommand creates the feedbackctl root command.
func NewRootCommand(opts *RootOptions) *cobra.Command {
	if opts == nil {
		opts = &RootOptions{}
	}
	if opts.Open == nil {
		opts.Open = openFromEnv
	}

	cmd := &cobra.Command{
		Use:           "feedbackctl",
		Short:         "Manage feedback sessions",
		Long:          "feedbackctl creates, edits and closes feedback sessions, resets organiser PINs and records feedback.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return usageError("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: ExitUsage, Message: "invalid flags", Err: err}
	})

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(newCreateCommand(opts))
	cmd.AddCommand(newUpdateCommand(opts))
	cmd.AddCommand(newCloseCommand(opts))
	cmd.AddCommand(newResetCredentialCommand(opts))
	cmd.AddCommand(newAuthenticateCommand(opts))
	cmd.AddCommand(newSubmitCommand(opts))
	cmd.AddCommand(newGetCommand(opts))
	cmd.AddCommand(newAuditCommand(opts))
	cmd.AddCommand(newHashPINCommand(opts))

	return cmd
}

// Execute runs feedbackctl with args and returns the process exit code.
func Execute(ctx context.Context, opts *RootOptions, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if opts == nil {
		opts = &RootOptions{}
	}
	cmd := NewRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	if opts.Format == "json" {
		(&Output{Format: opts.Format, Writer: stdout}).Error(err)
	} else {
		fmt.Fprintln(stderr, "feedbackctl:", err)
	}
	return ExitCode(err)
}

// exactArgs is cobra.ExactArgs reporting a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageError("%s expects %d argument(s), got %d", cmd.Name(), n, len(args))
		}
		return nil
	}
}

// withApp opens the application, runs fn and writes its result.
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, app *App) (any, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := opts.Open(ctx)
	if err != nil {
		return err
	}
	defer app.Close(context.WithoutCancel(ctx))

	data, err := fn(ctx, app)
	if err != nil {
		return err
	}
	return (&Output{Format: opts.Format, Writer: cmd.OutOrStdout()}).Success(data)
}
