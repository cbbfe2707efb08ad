package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/eventstore/internal/metrics"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command, which exposes /metrics for a
// Prometheus scraper. It does not open a persistence backend itself; a
// companion process or the CLI's other commands drive traffic while this
// command's only job is the metrics endpoint.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "serve",
		Short:         "Serve the Prometheus /metrics endpoint",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			server := &http.Server{Addr: opts.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

			fmt.Fprintf(cmd.OutOrStdout(), "serving /metrics on %s\n", opts.Addr)
			return server.ListenAndServe()
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", ":9090", "address to serve /metrics on")

	return cmd
}
