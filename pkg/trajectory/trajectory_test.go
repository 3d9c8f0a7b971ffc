package trajectory

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesVtcodeDir(t *testing.T) {
	root := t.TempDir()
	l, err := Open(root, "sess-1")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, dirName))
	assert.NoError(t, err, "expected %s dir", dirName)

	want := filepath.Join(root, dirName, "sess-1.jsonl")
	assert.Equal(t, want, l.Path())
}

func TestLogAppendsOneLinePerEvent(t *testing.T) {
	root := t.TempDir()
	l, err := Open(root, "sess-2")
	require.NoError(t, err)

	l.LogSessionStart(map[string]string{"model": "test-model"})
	l.LogUserMessage(1, "hello")
	l.LogToolCall(1, "call-1", "read_file", `{"path":"a.go"}`)
	l.LogToolResult(1, "call-1", "read_file", "package main")
	l.LogAssistantMessage(1, "done")
	l.LogSessionEnd(nil)

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)

	lines := 0
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		lines++
	}
	assert.Equal(t, 6, lines, "data: %s", data)
}

func TestLogNilErrorIsNoop(t *testing.T) {
	root := t.TempDir()
	l, err := Open(root, "sess-3")
	require.NoError(t, err)
	l.LogError(1, nil)

	_, err = os.Stat(l.Path())
	assert.Error(t, err, "expected no file written for a nil error")
}

func TestRotateFileShiftsBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("current\n"), 0o644))
	require.NoError(t, os.WriteFile(path+".1", []byte("old-1\n"), 0o644))

	require.NoError(t, rotateFile(path, 3))

	_, err := os.Stat(path + ".2")
	assert.NoError(t, err, "expected .2 backup")

	data, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "current\n", string(data), "expected .1 to hold the rotated-out current content")
}
