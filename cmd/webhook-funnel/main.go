package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for startup failures.
const (
	exitRuntime = 1
	exitConfig  = 2
	exitChat    = 3
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitRuntime)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "webhook-funnel",
		Short:         "Forward webhook events to a chat as readable messages",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "config file (default: $FUNNEL_CONFIG, ./funnel_config.toml, ~/.config/webhook-funnel/config.toml)")

	root.AddCommand(
		newServeCmd(),
		newInitCmd(),
		newParseCmd(),
		newSendCmd(),
		newStatusCmd(),
	)
	return root
}
