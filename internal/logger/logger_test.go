package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLevel(t *testing.T) {
	cases := []struct {
		cfg  Config
		want logrus.Level
	}{
		{Config{}, logrus.InfoLevel},
		{Config{Verbosity: 1}, logrus.DebugLevel},
		{Config{Verbosity: 3}, logrus.TraceLevel},
		{Config{Verbosity: 2, Level: "warn"}, logrus.WarnLevel},
	}

	for _, tc := range cases {
		level, err := resolveLevel(tc.cfg)
		require.NoError(t, err)
		assert.Equal(t, tc.want, level)
	}

	_, err := resolveLevel(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestInitWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "activity.log")
	require.NoError(t, Init(Config{Level: "info", File: path}))
	t.Cleanup(func() {
		logrus.SetOutput(os.Stdout)
	})

	GetLogger("test").Info("hello from the test")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from the test")
}

func TestOrDefault(t *testing.T) {
	entry := Discard()
	assert.Same(t, entry, OrDefault(entry, "x"))
	assert.Equal(t, "x", OrDefault(nil, "x").Data["prefix"])
}
