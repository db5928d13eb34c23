package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vcav-io/website/internal/scenario"
	"github.com/vcav-io/website/internal/server"
	"github.com/vcav-io/website/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr     string
	Database string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve <scenario>",
		Short: "Run the browser bridge",
		Long: `Serve a scenario to browsers over a websocket. Every connection
gets its own playback; the page sends play, pause, reset and state
commands and receives engine callbacks as JSON frames.

Examples:
  vcavdemo serve testdata/scenarios/handshake.yaml --addr :8080
  vcavdemo serve testdata/scenarios/handshake.yaml --db runs.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record completed sessions into this SQLite database")

	return cmd
}

func runServe(opts *ServeOptions, path string, cmd *cobra.Command) error {
	logger := opts.Logger()

	scn, err := scenario.Load(path)
	if err != nil {
		return scenarioLoadError(path, err)
	}

	serverOpts := []server.Option{server.WithLogger(logger)}
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
		serverOpts = append(serverOpts, server.WithStore(st))
	}

	srv, err := server.New(scn, serverOpts...)
	if err != nil {
		return WrapExitError(ExitFailure, "invalid scenario "+path, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "serving %s on %s\n", scn.ID, opts.Addr)
	if err := srv.ListenAndServe(ctx, opts.Addr); err != nil {
		return WrapExitError(ExitCommandError, "server error", err)
	}
	return nil
}
