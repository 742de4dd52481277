package main

import (
	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	provider   string
	model      string
	videoMode  string
	logLevel   string
	history    string
	jsonOutput bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "deepfakectl",
		Short:         "Assess images, audio and video for synthetic manipulation",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Configuration file path")
	flags.StringVar(&opts.provider, "provider", "", "Model provider override (openai or ollama)")
	flags.StringVar(&opts.model, "model", "", "Model name override")
	flags.StringVar(&opts.videoMode, "video-mode", "", "Video analysis mode override (pipeline or direct)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.history, "history", "", "SQLite file recording analyses (default: not recorded)")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Print the result as JSON")

	rootCmd.AddCommand(newAnalyzeCommand(opts))
	rootCmd.AddCommand(newHistoryCommand(opts))
	rootCmd.AddCommand(newCheckCommand(opts))

	return rootCmd
}
