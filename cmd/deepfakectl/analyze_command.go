package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"deepfake/internal/biz"
	"deepfake/internal/conf"
	"deepfake/internal/data"
	"deepfake/internal/pkg/media"
	"deepfake/internal/service"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/spf13/cobra"
)

func newAnalyzeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:       "analyze {image|audio|video} <path-or-url>",
		Short:     "Analyze a local file or a URL",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"image", "audio", "video"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := media.ParseKind(args[0])
			if err != nil {
				return err
			}

			bc, err := loadConfig(opts)
			if err != nil {
				return err
			}
			history, closeHistory, err := openHistory(opts)
			if err != nil {
				return err
			}
			defer closeHistory()
			uc, err := newUsecase(bc, history, newLogger(opts.logLevel))
			if err != nil {
				return err
			}

			result, err := runAnalysis(cmd.Context(), uc, kind, args[1])
			if err != nil {
				return userError(err)
			}
			if opts.jsonOutput {
				return writeJSON(cmd, service.NewAnalysisReply(result))
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderAnalysis(result, shouldColorize(cmd.OutOrStdout())))
			return nil
		},
	}
}

func runAnalysis(ctx context.Context, uc *biz.AnalysisUsecase, kind media.Kind, target string) (*biz.Analysis, error) {
	if isURL(target) {
		return uc.AnalyzeURL(ctx, target, kind)
	}

	absPath, err := filepath.Abs(target)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("inspect file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", absPath)
	}
	payload, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return uc.Analyze(ctx, kind, biz.MediaInput{
		Data:     payload,
		MIMEType: mime.TypeByExtension(strings.ToLower(filepath.Ext(absPath))),
		Name:     filepath.Base(absPath),
		Size:     info.Size(),
	})
}

func newUsecase(bc *conf.Bootstrap, history biz.HistoryRepo, logger log.Logger) (*biz.AnalysisUsecase, error) {
	judge, err := data.NewJudge(bc.LLM, logger)
	if err != nil {
		return nil, err
	}
	assessor := data.NewAssessor(judge, bc.Analysis, nil, nil, logger)
	det, err := data.NewDetector(bc.Analysis, assessor, data.NewVideoAssessor(judge), data.NewDemuxer(bc.Analysis, logger), logger)
	if err != nil {
		return nil, err
	}
	fetcher := data.NewFetcher(bc.Analysis, logger)
	return biz.NewAnalysisUsecase(det, fetcher, history, bc.Analysis, logger), nil
}

// openHistory opens the --history database, or an in-memory history that is
// discarded on exit.
func openHistory(opts *options) (biz.HistoryRepo, func(), error) {
	if opts.history == "" {
		return data.NewMemoryHistoryRepo(), func() {}, nil
	}
	db, err := data.OpenSQLite(opts.history)
	if err != nil {
		return nil, nil, err
	}
	return data.NewSQLiteHistoryRepo(db), func() { _ = db.Close() }, nil
}

func isURL(target string) bool {
	lower := strings.ToLower(target)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// userError reduces API errors to their message.
func userError(err error) error {
	se := errors.FromError(err)
	if se == nil || se.Reason == "" {
		return err
	}
	return fmt.Errorf("%s (%s)", se.Message, se.Reason)
}
