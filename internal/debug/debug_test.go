package debug

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func saveAndRestoreState() func() {
	originalEnabled := Enabled
	originalOutput := output
	return func() {
		Enabled = originalEnabled
		output = originalOutput
	}
}

func TestIsEnabled(t *testing.T) {
	defer saveAndRestoreState()()

	Enabled = "false"
	os.Unsetenv("OBSCORE_DEBUG")
	assert.False(t, IsEnabled())

	Enabled = "true"
	assert.True(t, IsEnabled())

	Enabled = "false"
	os.Setenv("OBSCORE_DEBUG", "1")
	defer os.Unsetenv("OBSCORE_DEBUG")
	assert.True(t, IsEnabled())
}

func TestLog(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetOutput(&buf)
	Enabled = "true"

	Log("TEST", "hello %s", "world")

	assert.Contains(t, buf.String(), "[DEBUG:TEST]")
	assert.Contains(t, buf.String(), "hello world")
}

func TestLogDisabled(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetOutput(&buf)
	Enabled = "false"
	os.Unsetenv("OBSCORE_DEBUG")

	Log("TEST", "should not appear")

	assert.Empty(t, buf.String())
}

func TestCategoryHelpers(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetOutput(&buf)
	Enabled = "true"

	Source("reading %d bytes", 10)
	Parser("incomplete, need more bytes")
	Producer("backpressure, queue full")
	Writer("flushed %d bytes", 128)
	Search("compiled %d filters", 2)
	Orchestrator("operation %s started", "abc")
	State("add operation %s", "abc")

	out := buf.String()
	for _, tag := range []string{"SOURCE", "PARSER", "PRODUCER", "WRITER", "SEARCH", "ORCH", "STATE"} {
		assert.Contains(t, out, "[DEBUG:"+tag+"]")
	}
}

func TestNoOutputWithNilWriter(t *testing.T) {
	defer saveAndRestoreState()()

	SetOutput(nil)
	Enabled = "true"

	// Should not panic.
	Log("TEST", "test %s", "message")
	_ = Fatal("test %s", "message")
}

func TestFatalReturnsError(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetOutput(&buf)
	Enabled = "true"

	err := Fatal("disk full: %s", "details")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fatal: disk full: details")
	assert.Contains(t, buf.String(), "[FATAL]")
}

func TestConcurrentLogging(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetOutput(&buf)
	Enabled = "true"

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			Source("message from goroutine %d", id)
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}
