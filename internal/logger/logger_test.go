package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomFormatter(t *testing.T) {
	entry := &logrus.Entry{
		Time:    time.Date(2026, 2, 28, 8, 30, 0, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "下载失败",
		Data:    logrus.Fields{"status": 404, "newspaper": "人民日报"},
	}

	out, err := (&CustomFormatter{}).Format(entry)
	require.NoError(t, err)

	assert.Equal(t, "[2026-02-28 08:30:00] [WARN] [] 下载失败 newspaper=人民日报 status=404\n", string(out))
}

func TestInitLogger_WritesFile(t *testing.T) {
	old := Log
	t.Cleanup(func() { Log = old })

	path := filepath.Join(t.TempDir(), "logs", "radar.log")
	require.NoError(t, InitLogger("debug", path, Options{MaxSize: 1}))
	assert.Equal(t, logrus.DebugLevel, Log.GetLevel())

	Log.Info("hello file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "hello file"))
	assert.Contains(t, string(data), "logger_test.go")
}

func TestInitLogger_BadLevelFallsBackToInfo(t *testing.T) {
	old := Log
	t.Cleanup(func() { Log = old })

	require.NoError(t, InitLogger("loud", "", Options{}))
	assert.Equal(t, logrus.InfoLevel, Log.GetLevel())
}
