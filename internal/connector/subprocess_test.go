package connector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newShellConfig(script string) Config {
	return Config{
		CLIPath:    "sh",
		Flags:      []string{"-c", script},
		TimeoutMS:  5000,
		MaxRetries: 3,
	}
}

func TestSubprocessConnectorOneshotContentAndDone(t *testing.T) {
	c := NewSubprocessConnector(newShellConfig("echo hello; echo world"), ModeOneshot)

	stream, err := c.Execute(context.Background(), "ignored-in-oneshot-script")
	require.NoError(t, err)

	var events []Event
	for ev := range stream {
		events = append(events, ev)
	}

	require.Len(t, events, 3)
	assert.Equal(t, "hello", events[0].Content)
	assert.Equal(t, "world", events[1].Content)
	assert.Equal(t, EventDone, events[2].Kind)
	assert.Equal(t, HealthHealthy, c.Health().Kind)
}

func TestSubprocessConnectorStderrBecomesError(t *testing.T) {
	c := NewSubprocessConnector(newShellConfig("echo oops 1>&2"), ModeOneshot)

	stream, err := c.Execute(context.Background(), "x")
	require.NoError(t, err)

	var events []Event
	for ev := range stream {
		events = append(events, ev)
	}
	require.Len(t, events, 2)
	assert.Equal(t, EventError, events[0].Kind)
	assert.Equal(t, "oops", events[0].ErrorMessage)
	assert.Equal(t, EventDone, events[1].Kind)
}

func TestSubprocessConnectorNonZeroExitFailsAfterRetries(t *testing.T) {
	c := NewSubprocessConnector(Config{
		CLIPath:    "sh",
		Flags:      []string{"-c", "exit 1"},
		TimeoutMS:  5000,
		MaxRetries: 2,
	}, ModeOneshot)

	_, err := c.Execute(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Equal(t, HealthUnhealthy, c.Health().Kind)
	assert.Equal(t, uint64(2), c.Metrics().SpawnCount)
}

func TestSubprocessConnectorInteractiveWritesPreambleAndPrompt(t *testing.T) {
	// Each stdin line is echoed back with a "got " prefix so the preamble,
	// which starts with "/", is not dropped as a command echo by the parser.
	c := NewSubprocessConnector(newShellConfig("sed 's/^/got /'"), ModeInteractive).WithPreamble("/model test-model")

	stream, err := c.Execute(context.Background(), "hello from stdin")
	require.NoError(t, err)

	var contents []string
	for ev := range stream {
		if ev.Kind == EventContent {
			contents = append(contents, ev.Content)
		}
	}
	require.Len(t, contents, 2)
	assert.Equal(t, "got /model test-model", contents[0])
	assert.Equal(t, "got hello from stdin", contents[1])
}

func TestSubprocessConnectorSpawnFailureRetriesThenFails(t *testing.T) {
	c := NewSubprocessConnector(Config{
		CLIPath:    "/nonexistent-binary-agentmesh",
		TimeoutMS:  1000,
		MaxRetries: 2,
	}, ModeOneshot)

	_, err := c.Execute(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
}

func TestSubprocessConnectorRecordUsage(t *testing.T) {
	c := NewSubprocessConnector(newShellConfig("echo ok"), ModeOneshot)
	c.RecordUsage(10, 5)
	assert.Equal(t, uint64(10), c.Metrics().TotalInputTokens)
	assert.Equal(t, uint64(5), c.Metrics().TotalOutputTokens)
}

func TestSubprocessConnectorTimeout(t *testing.T) {
	c := NewSubprocessConnector(Config{
		CLIPath:    "sh",
		Flags:      []string{"-c", "sleep 2"},
		TimeoutMS:  50,
		MaxRetries: 1,
	}, ModeOneshot)

	start := time.Now()
	_, err := c.Execute(context.Background(), "x")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
