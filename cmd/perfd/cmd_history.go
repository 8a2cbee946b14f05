package main

import (
	"context"
	"io"
	"os"
	"time"

	"codeberg.org/nexustouch/perfd/internal/config"
	"codeberg.org/nexustouch/perfd/internal/errors"
	"codeberg.org/nexustouch/perfd/internal/history"
	"codeberg.org/nexustouch/perfd/internal/logger"
	"github.com/spf13/cobra"
)

var (
	exportSession string
	exportSince   time.Duration
	exportKind    string
	exportLimit   int
	exportOutput  string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded mode changes",
}

var historyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export history records as CSV",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		w := cmd.OutOrStdout()
		if exportOutput != "" && exportOutput != "-" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return errors.New().Wrap(history.ErrExportFailed, err)
			}
			defer f.Close()
			w = f
		}

		filter := history.Filter{
			SessionID: exportSession,
			Kind:      history.Kind(exportKind),
			Limit:     exportLimit,
		}
		if exportSince > 0 {
			filter.Since = time.Now().Add(-exportSince)
		}
		return exportHistory(cmd.Context(), w, cfg, filter)
	},
}

func init() {
	historyExportCmd.Flags().StringVar(&exportSession, "session", "", "Only records of this session")
	historyExportCmd.Flags().DurationVar(&exportSince, "since", 0, "Only records newer than this")
	historyExportCmd.Flags().StringVar(&exportKind, "kind", "", "Only records of this kind (change, tick)")
	historyExportCmd.Flags().IntVar(&exportLimit, "limit", 0, "Maximum number of records")
	historyExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write to this file instead of stdout")
	historyCmd.AddCommand(historyExportCmd)
}

func exportHistory(ctx context.Context, w io.Writer, cfg *config.Config, filter history.Filter) error {
	hc := historyConfig(cfg)
	hc.Enabled = true

	repo, err := history.NewRepository(hc, logger.WithComponent("history"))
	if err != nil {
		return err
	}
	defer repo.Close()

	records, err := repo.Query(ctx, filter)
	if err != nil {
		return err
	}
	return history.ExportCSV(w, records)
}
