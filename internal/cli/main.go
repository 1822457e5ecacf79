package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/forPelevin/phasesplit/internal/types"
)

// Exit statuses.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitCollision   = 2
	ExitInterrupted = 130
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// Execute runs the command line in args and returns the process exit status.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRoot()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	fmt.Fprintln(stderr, err)
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, types.ErrPathCollision):
		return ExitCollision
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	}
	return ExitFailure
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "phasesplit",
		Short:         "Split annotated surgical videos into per-phase clips and stills",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Config file (default: ./phasesplit.yaml when present)")
	root.PersistentFlags().String("convention", "", "Annotation convention (see `phasesplit conventions`)")

	root.AddCommand(newSplitCmd(), newFramesCmd(), newTimelineCmd(), newConventionsCmd())
	return root
}
