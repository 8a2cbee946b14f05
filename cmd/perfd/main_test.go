package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"codeberg.org/nexustouch/perfd/internal/config"
	"codeberg.org/nexustouch/perfd/internal/history"
	"codeberg.org/nexustouch/perfd/internal/logger"
	"codeberg.org/nexustouch/perfd/internal/replay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadConfig(t *testing.T, toml string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "perfd.toml")
	require.NoError(t, os.WriteFile(path, []byte(toml), 0o600))
	c, err := config.Load(nil, config.WithConfigFile(path))
	require.NoError(t, err)
	return c
}

func TestRunReplayWritesOutputs(t *testing.T) {
	c := loadConfig(t, "cooldown = \"5s\"\n")

	var trace strings.Builder
	trace.WriteString("at_ms,type\n")
	for at := 0; at <= 9950; at += 50 {
		trace.WriteString(strconv.Itoa(at) + ",frame")
		trace.WriteString("\n")
	}
	dir := t.TempDir()
	tracePath := filepath.Join(dir, "trace.csv")
	require.NoError(t, os.WriteFile(tracePath, []byte(trace.String()), 0o600))

	outDir := filepath.Join(dir, "out")
	var stdout bytes.Buffer
	require.NoError(t, runReplay(&stdout, c, tracePath, outDir, 0))

	assert.Contains(t, stdout.String(), "200 events, 3 evaluations")
	assert.Contains(t, stdout.String(), "final mode: minimal")

	csv, err := os.ReadFile(filepath.Join(outDir, "transitions.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(csv), "8000,full,minimal,auto,sustained_issues")

	m, err := replay.ReadManifest(filepath.Join(outDir, "manifest.yaml"))
	require.NoError(t, err)
	assert.Equal(t, tracePath, m.Trace)
	assert.Equal(t, 1, m.Transitions)
}

func TestRunReplayMissingTrace(t *testing.T) {
	c := loadConfig(t, "")
	err := runReplay(&bytes.Buffer{}, c, filepath.Join(t.TempDir(), "nope.csv"), t.TempDir(), 0)
	require.Error(t, err)
}

func TestExportHistory(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")
	c := loadConfig(t, "[history]\nenabled = true\ndb = \""+db+"\"\nbatch_size = 1\n")

	repo, err := history.NewRepository(historyConfig(c), logger.Nop())
	require.NoError(t, err)
	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, repo.Record(&history.Record{Timestamp: now, SessionID: "s1", Kind: history.KindChange, From: "full", To: "reduced"}))
	require.NoError(t, repo.Record(&history.Record{Timestamp: now, SessionID: "s2", Kind: history.KindTick}))
	require.NoError(t, repo.Close())

	var out bytes.Buffer
	require.NoError(t, exportHistory(context.Background(), &out, c, history.Filter{SessionID: "s1"}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "timestamp,session,kind"))
	assert.Contains(t, lines[1], "s1,change")
}

func TestRootCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "replay", "overlay", "history"} {
		assert.True(t, names[want], want)
	}

	export, _, err := rootCmd.Find([]string{"history", "export"})
	require.NoError(t, err)
	assert.Equal(t, "export", export.Name())
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("cooldown"))
}
