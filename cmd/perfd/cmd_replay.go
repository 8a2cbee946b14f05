package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/nexustouch/perfd/internal/config"
	"codeberg.org/nexustouch/perfd/internal/errors"
	"codeberg.org/nexustouch/perfd/internal/perf"
	"codeberg.org/nexustouch/perfd/internal/replay"
	"github.com/spf13/cobra"
)

var (
	replayOut  string
	replayTail time.Duration
)

var replayCmd = &cobra.Command{
	Use:   "replay <trace.csv>",
	Short: "Replay a recorded client trace through the controller",
	Long: `Feeds a CSV trace (columns at_ms, type, id, level, charging, usage,
cores, memory_gb, network, dpr, mode) through the sampler and controller on a
synthetic clock. Writes transitions.csv and manifest.yaml to the output
directory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReplay(cmd.OutOrStdout(), cfg, args[0], replayOut, replayTail)
	},
}

func init() {
	replayCmd.Flags().StringVarP(&replayOut, "out", "o", ".", "Directory for transitions.csv and manifest.yaml")
	replayCmd.Flags().DurationVar(&replayTail, "tail", 0, "Keep evaluating for this long after the last event")
}

func runReplay(w io.Writer, cfg *config.Config, tracePath, outDir string, tail time.Duration) error {
	errFactory := errors.New()

	f, err := os.Open(tracePath)
	if err != nil {
		return errFactory.Wrap(errors.ErrReadTrace, err)
	}
	defer f.Close()

	events, err := replay.ReadTrace(f)
	if err != nil {
		return err
	}

	res := replay.Run(events, replay.Options{
		Policy:      cfg.Policy(),
		Sampler:     cfg.Sampler(),
		InitialMode: cfg.Mode(),
		Device:      perf.DeviceInfo{NetworkClass: networkClass(cfg.NetworkClass)},
		Tail:        tail,
	})

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errFactory.Wrap(errors.ErrWriteTrace, err)
	}

	out, err := os.Create(filepath.Join(outDir, "transitions.csv"))
	if err != nil {
		return errFactory.Wrap(errors.ErrWriteTrace, err)
	}
	defer out.Close()
	if err := replay.WriteTransitions(out, res.Transitions); err != nil {
		return err
	}

	manifest := replay.NewManifest(tracePath, res, time.Now())
	if err := replay.WriteManifest(filepath.Join(outDir, "manifest.yaml"), manifest); err != nil {
		return err
	}

	fmt.Fprintf(w, "%d events, %d evaluations over %s\n", res.Events, res.Ticks, res.Duration)
	for _, tr := range res.Transitions {
		fmt.Fprintf(w, "%10.0fms  %-8s -> %-8s  %s\n", tr.AtMs, tr.From, tr.To, tr.Reason)
	}
	fmt.Fprintf(w, "final mode: %s\n", res.Final)

	return nil
}

func networkClass(class string) perf.Optional[string] {
	if class == "" {
		return perf.Unsupported[string]()
	}
	return perf.Some(class)
}
