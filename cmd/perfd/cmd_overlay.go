package main

import (
	"codeberg.org/nexustouch/perfd/internal/logger"
	"codeberg.org/nexustouch/perfd/internal/overlay"
	"github.com/spf13/cobra"
)

var overlayURL string

var overlayCmd = &cobra.Command{
	Use:   "overlay",
	Short: "Show live sessions of a running perfd",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		url := overlayURL
		if url == "" {
			url = "ws://" + cfg.Listen + "/v1/observe"
		}
		// Console logging would tear the terminal UI.
		logger.SetLogLevel(logger.ErrorLevel)
		return overlay.Run(cmd.Context(), url, logger.WithComponent("overlay"))
	},
}

func init() {
	overlayCmd.Flags().StringVar(&overlayURL, "url", "", "Observer endpoint (defaults to the listen address)")
}
