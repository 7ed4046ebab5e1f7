package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"media-converter/internal/bootstrap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		frontendDir  string
		settingsPath string
		verbose      bool
	)

	cmd := &cobra.Command{
		Use:          "media-converter",
		Short:        "Desktop front-end for batch media conversion and downloads",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			opts := bootstrap.Options{
				SettingsPath: settingsPath,
				Logger:       slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
			}
			if frontendDir != "" {
				opts.Assets = os.DirFS(frontendDir)
			}

			app, err := bootstrap.New(opts)
			if err != nil {
				return fmt.Errorf("bootstrap app: %w", err)
			}
			if err := app.Run(); err != nil {
				return fmt.Errorf("run app: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&frontendDir, "frontend", "", "serve frontend assets from this directory")
	cmd.Flags().StringVar(&settingsPath, "settings", "", "settings file (default ~/.media-converter/settings.json)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	return cmd
}
