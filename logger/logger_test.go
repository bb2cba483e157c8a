package logger

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"":        INFO,
		"warning": WARN,
		"Warn":    WARN,
		"error":   ERROR,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(WARN)
	defer SetLevel(INFO)

	Info("hidden info")
	Debugf("hidden %s", "debug")
	Warnf("visible %d", 1)
	Error("visible error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN ] ")
	assert.Contains(t, out, "visible 1")
	assert.Contains(t, out, "[ERROR] ")
	assert.Contains(t, out, "logger_test.go", "short file flag should point at the caller")
}

func TestBlock(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(INFO)

	Block(INFO, "pipeline stdout", "line one\nline two\n")
	Block(INFO, "pipeline stderr", "   \n")

	out := buf.String()
	assert.Contains(t, out, "pipeline stdout:")
	assert.Contains(t, out, "  | line one")
	assert.Contains(t, out, "  | line two")
	assert.NotContains(t, out, "pipeline stderr")
	assert.Equal(t, 3, strings.Count(out, "\n"))
}

func TestBlockLongLine(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(INFO)

	long := strings.Repeat("x", 2<<20)
	Block(INFO, "pipeline stderr", long+"\r\nlast words")

	out := buf.String()
	assert.Contains(t, out, "  | "+long+"\n")
	assert.Contains(t, out, "  | last words")
	assert.Equal(t, 3, strings.Count(out, "\n"))
}

func TestConcurrentLevelChanges(t *testing.T) {
	SetOutput(io.Discard)
	defer SetLevel(INFO)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				SetLevel(LogLevel(j % 4))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				Infof("message %d", j)
				Close()
			}
		}()
	}
	wg.Wait()
}
