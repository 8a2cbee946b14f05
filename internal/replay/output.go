package replay

import (
	"io"
	"os"
	"time"

	"codeberg.org/nexustouch/perfd/internal/errors"
	"codeberg.org/nexustouch/perfd/internal/perf"
	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v3"
)

// WriteTransitions writes the replay's mode changes as CSV.
func WriteTransitions(w io.Writer, transitions []Transition) error {
	if err := gocsv.Marshal(transitions, w); err != nil {
		return errors.New().Wrap(errors.ErrWriteTrace, err)
	}
	return nil
}

// Manifest describes a replay run: its input, effective policy and outcome.
type Manifest struct {
	Trace       string            `yaml:"trace"`
	GeneratedAt time.Time         `yaml:"generated_at"`
	Events      int               `yaml:"events"`
	Ticks       int               `yaml:"ticks"`
	Duration    string            `yaml:"duration"`
	InitialMode string            `yaml:"initial_mode"`
	FinalMode   string            `yaml:"final_mode"`
	Selected    string            `yaml:"selected"`
	Transitions int               `yaml:"transitions"`
	ModeTime    map[string]string `yaml:"mode_time"`
	Policy      PolicyManifest    `yaml:"policy"`
}

type PolicyManifest struct {
	Cooldown          string `yaml:"cooldown"`
	TickInterval      string `yaml:"tick_interval"`
	InitialDelay      string `yaml:"initial_delay"`
	ConsecutiveIssues int    `yaml:"consecutive_issues"`
	SlowLatency       string `yaml:"slow_latency"`
	SpikeLatency      string `yaml:"spike_latency"`
}

func NewManifest(trace string, res Result, generatedAt time.Time) Manifest {
	modeTime := make(map[string]string, len(res.ModeTime))
	for _, mode := range []perf.Mode{perf.ModeFull, perf.ModeReduced, perf.ModeMinimal} {
		if d, ok := res.ModeTime[mode]; ok {
			modeTime[mode.String()] = d.String()
		}
	}

	return Manifest{
		Trace:       trace,
		GeneratedAt: generatedAt.UTC(),
		Events:      res.Events,
		Ticks:       res.Ticks,
		Duration:    res.Duration.String(),
		InitialMode: res.Initial.String(),
		FinalMode:   res.Final.String(),
		Selected:    res.Selected.String(),
		Transitions: len(res.Transitions),
		ModeTime:    modeTime,
		Policy: PolicyManifest{
			Cooldown:          res.Policy.Cooldown.String(),
			TickInterval:      res.Policy.TickInterval.String(),
			InitialDelay:      res.Policy.InitialDelay.String(),
			ConsecutiveIssues: res.Policy.ConsecutiveIssues,
			SlowLatency:       res.Policy.SlowLatency.String(),
			SpikeLatency:      res.Policy.SpikeLatency.String(),
		},
	}
}

// WriteManifest writes the manifest to path as YAML.
func WriteManifest(path string, m Manifest) error {
	errFactory := errors.New()

	data, err := yaml.Marshal(m)
	if err != nil {
		return errFactory.Wrap(errors.ErrWriteTrace, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errFactory.Wrap(errors.ErrWriteTrace, err)
	}
	return nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (Manifest, error) {
	errFactory := errors.New()

	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, errFactory.Wrap(errors.ErrReadTrace, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, errFactory.Wrap(errors.ErrReadTrace, err)
	}
	return m, nil
}
