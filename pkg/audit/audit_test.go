package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWriteAppendsJSONLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.log")

	l, err := New(path, zap.NewNop())
	require.NoError(t, err)
	defer l.Close()

	l.Write(Entry{Timestamp: 1.0, UserID: "u1", Query: "q", SQL: "SELECT 1"})
	l.Write(Entry{Timestamp: 2.0, UserID: "u2", Query: "q2", SQL: "SELECT 2"})

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.Len(t, lines, 2)

	var first Entry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "u1", first.UserID)
}

func TestNewCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c", "audit.log")
	l, err := New(path, zap.NewNop())
	require.NoError(t, err)
	defer l.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
