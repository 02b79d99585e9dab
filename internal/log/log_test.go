package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func containsMessage(lines []string, substr string) bool {
	for _, l := range lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func TestLogDirectory(t *testing.T) {
	dir := t.TempDir()
	fp := filepath.Join(dir, LoggerFile)

	f, err := OpenFileAtPath(fp)
	require.NoError(t, err)

	restore := UseLogger(f)
	defer restore()

	Warn("hello from the file logger")
	require.NoError(t, f.Close())

	data, err := os.ReadFile(fp)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from the file logger")

	// Closing twice must not panic or error.
	assert.NoError(t, f.Close())
}

func TestLog(t *testing.T) {
	t.Run("warn", func(t *testing.T) {
		rl := &RecordLogger{}
		restore := UseLogger(rl)
		defer restore()
		SetLevel(LevelWarn)
		defer SetLevel(LevelInfo)

		Warn("careful: %d", 7)
		require.Len(t, rl.Logs(), 1)
		assert.Contains(t, rl.Logs()[0], "careful: 7")
	})

	t.Run("debug off by default", func(t *testing.T) {
		rl := &RecordLogger{}
		restore := UseLogger(rl)
		defer restore()

		Debug("should not appear")
		assert.Empty(t, rl.Logs())
	})

	t.Run("debug on", func(t *testing.T) {
		rl := &RecordLogger{}
		restore := UseLogger(rl)
		defer restore()
		SetLevel(LevelDebug)
		defer SetLevel(LevelInfo)

		assert.True(t, DebugEnabled())
		Debug("now it appears")
		require.Len(t, rl.Logs(), 1)
	})

	t.Run("error auto flush", func(t *testing.T) {
		rl := &RecordLogger{}
		restore := UseLogger(rl)
		defer restore()

		prevRate := errrate
		errrate = 10 * time.Millisecond
		defer func() { errrate = prevRate }()

		Error("a message %d", 1)
		Error("a message %d", 2)
		Error("a message %d", 3)

		require.Eventually(t, func() bool {
			return len(rl.Logs()) == 1
		}, time.Second, time.Millisecond)

		assert.Equal(t, "spprof ERROR: a message 1, 2 additional messages skipped", rl.Logs()[0])
	})

	t.Run("error flush", func(t *testing.T) {
		rl := &RecordLogger{}
		restore := UseLogger(rl)
		defer restore()

		prevRate := errrate
		errrate = time.Hour
		defer func() { errrate = prevRate }()

		Error("flush me %d", 1)
		Error("flush me %d", 2)
		Flush()

		require.Len(t, rl.Logs(), 1)
		assert.Contains(t, rl.Logs()[0], "flush me 1, 1 additional messages skipped")
	})

	t.Run("error limit", func(t *testing.T) {
		rl := &RecordLogger{}
		restore := UseLogger(rl)
		defer restore()

		prevRate := errrate
		errrate = time.Hour
		defer func() { errrate = prevRate }()

		for i := 0; i < defaultErrorLimit+1; i++ {
			Error("fifth message %d", 0)
		}
		Flush()

		require.Len(t, rl.Logs(), 1)
		assert.Contains(t, rl.Logs()[0], "200+ additional messages skipped")
	})

	t.Run("error instant", func(t *testing.T) {
		rl := &RecordLogger{}
		restore := UseLogger(rl)
		defer restore()

		prevRate := errrate
		errrate = 0
		defer func() { errrate = prevRate }()

		Error("instant %d", 1)
		Error("instant %d", 2)

		require.Len(t, rl.Logs(), 2)
	})
}

func TestRecordLoggerIgnore(t *testing.T) {
	rl := &RecordLogger{}
	rl.Ignore("noisy")

	rl.Log("this is a noisy line")
	rl.Log("this one stays")

	logs := rl.Logs()
	require.Len(t, logs, 1)
	assert.False(t, containsMessage(logs, "noisy"))
	assert.True(t, containsMessage(logs, "this one stays"))

	rl.Reset()
	assert.Empty(t, rl.Logs())
}

func TestSetLoggingRate(t *testing.T) {
	defer func() { errrate = time.Minute }()

	setLoggingRate("5")
	assert.Equal(t, 5*time.Second, errrate)

	setLoggingRate("")
	assert.Equal(t, time.Minute, errrate)

	setLoggingRate("not-a-number")
	assert.Equal(t, time.Minute, errrate)

	setLoggingRate("-3")
	assert.Equal(t, time.Minute, errrate)
}

func BenchmarkError(b *testing.B) {
	restore := UseLogger(DiscardLogger{})
	defer restore()

	prevRate := errrate
	errrate = time.Hour
	defer func() { errrate = prevRate }()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Error("benchmark error %d", i)
	}
}

func BenchmarkLog(b *testing.B) {
	restore := UseLogger(DiscardLogger{})
	defer restore()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Info("benchmark info %d", i)
	}
}
