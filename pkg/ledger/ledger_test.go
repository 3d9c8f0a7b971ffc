package ledger

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"godex-agent/pkg/convo"
)

func TestRecordAppendsJSONLLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "decisions.jsonl")

	l, err := New(path)
	require.NoError(t, err)
	defer l.Close()

	l.Record(convo.DecisionRecord{Turn: 1, Kind: "tool_call", Summary: "ran read_file", Outcome: "ok"})
	l.Record(convo.DecisionRecord{Turn: 1, Kind: "error", Summary: "provider timeout", Outcome: "retrying"})

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := 0
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		lines++
	}
	assert.Equal(t, 2, lines, "expected 2 JSONL lines, got data: %s", data)
}

func TestRotateCreatesBackupWhenOverMaxBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "decisions.jsonl")

	l, err := New(path, WithMaxBytes(64), WithMaxBackups(2))
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 20; i++ {
		l.Record(convo.DecisionRecord{Turn: i, Kind: "tool_call", Summary: "a reasonably long summary line to force rotation", Outcome: "ok"})
	}

	_, err = os.Stat(path + ".1")
	assert.NoError(t, err, "expected rotated backup file to exist")
}

func TestRecordNeverPanicsOnClosedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "decisions.jsonl")

	l, err := New(path)
	require.NoError(t, err)
	l.Close()

	assert.NotPanics(t, func() {
		l.Record(convo.DecisionRecord{Turn: 1, Kind: "tool_call", Summary: "after close", Outcome: "ok"})
	})
}
