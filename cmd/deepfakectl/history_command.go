package main

import (
	"errors"
	"fmt"

	"deepfake/internal/biz"
	"deepfake/internal/pkg/pagination"
	"deepfake/internal/service"

	"github.com/spf13/cobra"
)

var errNoHistory = errors.New("--history is required to read recorded analyses")

func newHistoryCommand(opts *options) *cobra.Command {
	var (
		page     int
		pageSize int
		asc      bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List analyses recorded with --history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, closeHistory, err := openHistoryUsecase(opts)
			if err != nil {
				return err
			}
			defer closeHistory()

			req := pagination.NewOffsetRequest(page, pageSize)
			if asc {
				req.SortOrder = pagination.ASC
			}
			resp, err := uc.List(cmd.Context(), req)
			if err != nil {
				return userError(err)
			}
			if opts.jsonOutput {
				replies := make([]*service.AnalysisReply, len(resp.Items))
				for i, a := range resp.Items {
					replies[i] = service.NewAnalysisReply(a)
				}
				return writeJSON(cmd, replies)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderHistory(resp.Items, resp.TotalItems, shouldColorize(cmd.OutOrStdout())))
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", pagination.DefaultLimit, "Analyses per page")
	cmd.Flags().BoolVar(&asc, "asc", false, "Oldest first")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one recorded analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, closeHistory, err := openHistoryUsecase(opts)
			if err != nil {
				return err
			}
			defer closeHistory()

			a, err := uc.Get(cmd.Context(), args[0])
			if err != nil {
				return userError(err)
			}
			if opts.jsonOutput {
				return writeJSON(cmd, service.NewAnalysisReply(a))
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderAnalysis(a, shouldColorize(cmd.OutOrStdout())))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one recorded analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, closeHistory, err := openHistoryUsecase(opts)
			if err != nil {
				return err
			}
			defer closeHistory()

			if err := uc.Delete(cmd.Context(), args[0]); err != nil {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every recorded analysis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, closeHistory, err := openHistoryUsecase(opts)
			if err != nil {
				return err
			}
			defer closeHistory()

			n, err := uc.Clear(cmd.Context())
			if err != nil {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d analyses\n", n)
			return nil
		},
	})

	return cmd
}

func openHistoryUsecase(opts *options) (*biz.HistoryUsecase, func(), error) {
	if opts.history == "" {
		return nil, nil, errNoHistory
	}
	bc, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	repo, closeHistory, err := openHistory(opts)
	if err != nil {
		return nil, nil, err
	}
	return biz.NewHistoryUsecase(repo, bc.Analysis, newLogger(opts.logLevel)), closeHistory, nil
}
