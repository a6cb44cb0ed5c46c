package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-evoprompt/infrastructure/telemetry"
)

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the configured backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			metrics := telemetry.NewPrometheusMetrics(prometheus.NewRegistry())
			_, health, err := newBackend(a.env, metrics, a.logger)
			if err != nil {
				return err
			}

			spec := a.env.backendSpec()
			if health == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (no health check)\n", spec)
				return nil
			}
			if err := health.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("%s: %w", spec, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", spec)
			return nil
		},
	}
}
