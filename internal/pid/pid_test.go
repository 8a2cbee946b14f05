package pid_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"codeberg.org/nexustouch/perfd/internal/errors"
	"codeberg.org/nexustouch/perfd/internal/pid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRemove(t *testing.T) {
	f := pid.New(filepath.Join(t.TempDir(), "perfd.pid"))

	require.NoError(t, f.Write())
	b, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(b))

	require.NoError(t, f.Remove())
	_, err = os.Stat(f.Path())
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, f.Remove(), "removing twice is fine")
}

func TestWriteDetectsRunningInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perfd.pid")
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600))

	err := pid.New(path).Write()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))
}

func TestWriteReplacesStaleFile(t *testing.T) {
	for name, content := range map[string]string{
		"garbage": "not-a-pid",
		"zero":    "0",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "perfd.pid")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			require.NoError(t, pid.New(path).Write())
			b, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, strconv.Itoa(os.Getpid()), string(b))
		})
	}
}
