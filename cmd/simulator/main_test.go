package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openprotect-lab/internal/domain/models"
	"openprotect-lab/pkg/logger"
)

func decodeEvents(t *testing.T, data []byte) []models.ServerEvent {
	t.Helper()
	var out []models.ServerEvent
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var e models.ServerEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		out = append(out, e)
	}
	require.NoError(t, sc.Err())
	return out
}

func eventTypes(events []models.ServerEvent) []models.EventType {
	out := make([]models.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestSimulate_EventLines(t *testing.T) {
	var buf bytes.Buffer
	err := simulate(context.Background(), simulateOptions{ticks: 10, seed: 3, output: outputEvents}, &buf, logger.NewNop())
	require.NoError(t, err)

	events := decodeEvents(t, buf.Bytes())
	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		assert.Equal(t, events[i-1].Seq+1, events[i].Seq)
	}
}

func TestSimulate_RecordThenReplay(t *testing.T) {
	var recorded bytes.Buffer
	err := simulate(context.Background(), simulateOptions{ticks: 8, seed: 11, output: outputInputs}, &recorded, logger.NewNop())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ticks.jsonl")
	require.NoError(t, os.WriteFile(path, recorded.Bytes(), 0o600))

	var live bytes.Buffer
	err = simulate(context.Background(), simulateOptions{ticks: 8, seed: 11, output: outputEvents}, &live, logger.NewNop())
	require.NoError(t, err)

	// More ticks than recorded: replay stops when exhausted
	var replayed bytes.Buffer
	err = simulate(context.Background(), simulateOptions{ticks: 50, output: outputEvents, replayFile: path}, &replayed, logger.NewNop())
	require.NoError(t, err)

	assert.Equal(t, eventTypes(decodeEvents(t, live.Bytes())), eventTypes(decodeEvents(t, replayed.Bytes())))
}

func TestSimulate_UnknownOutput(t *testing.T) {
	err := simulate(context.Background(), simulateOptions{ticks: 1, output: "xml"}, &bytes.Buffer{}, logger.NewNop())
	assert.Error(t, err)
}

func TestSplitTypes(t *testing.T) {
	assert.Equal(t, []string{"CASE_CREATED", "AGGREGATED_THREAT"}, splitTypes(" CASE_CREATED,,AGGREGATED_THREAT "))
	assert.Nil(t, splitTypes(""))
}
