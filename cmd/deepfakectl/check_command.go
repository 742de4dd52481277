package main

import (
	"context"
	"fmt"
	"time"

	"deepfake/internal/data"

	"github.com/spf13/cobra"
)

const checkTimeout = 15 * time.Second

func newCheckCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the model backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bc, err := loadConfig(opts)
			if err != nil {
				return err
			}
			judge, err := data.NewJudge(bc.LLM, newLogger(opts.logLevel))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
			defer cancel()
			if err := judge.Ping(ctx); err != nil {
				return fmt.Errorf("model backend check failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Model backend is reachable.")
			return nil
		},
	}
}
