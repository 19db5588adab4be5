package walstore

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xcsec/omniuat/raft"
)

func TestAppendAndReadBack(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append([]raft.LogEntry{
		{Term: 1, Index: 1, Command: []byte("a")},
		{Term: 1, Index: 2, Command: []byte("b")},
	}))

	entries, err := s.Entries(1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, []byte("a"), entries[0].Command)

	last, err := s.LastIndex()
	require.NoError(t, err)
	require.Equal(t, uint64(2), last)
}
