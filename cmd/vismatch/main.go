// Command vismatch runs the lost-and-found matcher: a CLI for one-off
// extraction and ranking, and an HTTP API for the board.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lostboard/vismatch/codec"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "vismatch",
		Short:         "Match lost and found items by photo",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("json", false, "Output in JSON format")

	root.AddCommand(
		newWarmCommand(),
		newEmbedCommand(),
		newScoreCommand(),
		newPostCommand(),
		newViewCommand(),
		newReanalyzeCommand(),
		newWeightsCommand(),
		newServeCommand(),
	)
	return root
}

// outputFormatter prints either JSON or plain text depending on --json.
type outputFormatter struct {
	cmd      *cobra.Command
	jsonMode bool
}

func newOutputFormatter(cmd *cobra.Command) *outputFormatter {
	jsonMode, _ := cmd.Flags().GetBool("json")
	return &outputFormatter{cmd: cmd, jsonMode: jsonMode}
}

// Print writes data as indented JSON in JSON mode and text otherwise.
func (f *outputFormatter) Print(data any, text func() string) error {
	w := f.cmd.OutOrStdout()
	if f.jsonMode || text == nil {
		b, err := codec.Indented{Codec: codec.Default}.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}
	_, err := fmt.Fprintln(w, text())
	return err
}
