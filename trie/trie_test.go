package trie

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmptyTrieIsDeterministic(t *testing.T) {
	a := New()
	b := New()
	require.Equal(t, a.RootHash(), b.RootHash())
}

func TestInsertGet(t *testing.T) {
	tr := New()
	tr.Insert([]byte("alice"), []byte("100"))
	tr.Insert([]byte("bob"), []byte("50"))

	v, ok := tr.Get([]byte("alice"))
	require.True(t, ok)
	require.Equal(t, []byte("100"), v)

	v, ok = tr.Get([]byte("bob"))
	require.True(t, ok)
	require.Equal(t, []byte("50"), v)

	_, ok = tr.Get([]byte("carol"))
	require.False(t, ok)
}

func TestInsertOverwritesExistingRootOnlyWhereNeeded(t *testing.T) {
	tr := New()
	tr.Insert([]byte("aaaa"), []byte("1"))
	before := tr.RootHash()
	tr.Insert([]byte("aaab"), []byte("2"))
	after := tr.RootHash()
	require.NotEqual(t, before, after)

	v, ok := tr.Get([]byte("aaaa"))
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)
}

func TestRootHashChangesWithValue(t *testing.T) {
	a := New()
	a.Insert([]byte("k"), []byte("1"))
	b := New()
	b.Insert([]byte("k"), []byte("2"))
	require.NotEqual(t, a.RootHash(), b.RootHash())
}

func TestDelete(t *testing.T) {
	tr := New()
	tr.Insert([]byte("alice"), []byte("100"))
	tr.Insert([]byte("bob"), []byte("50"))
	tr.Delete([]byte("alice"))

	_, ok := tr.Get([]byte("alice"))
	require.False(t, ok)

	v, ok := tr.Get([]byte("bob"))
	require.True(t, ok)
	require.Equal(t, []byte("50"), v)
}

func TestDeleteAllReturnsToEmptyRootHash(t *testing.T) {
	empty := New().RootHash()

	tr := New()
	tr.Insert([]byte("x"), []byte("1"))
	tr.Delete([]byte("x"))
	require.Equal(t, empty, tr.RootHash())
}

func TestEmptyTrieRootHashIsZero(t *testing.T) {
	require.Equal(t, [32]byte{}, New().RootHash())
}

func TestInsertRejectsOversizedInput(t *testing.T) {
	tr := New()
	longKey := make([]byte, MaxKeyLen+1)
	require.ErrorIs(t, tr.Insert(longKey, []byte("v")), ErrInputTooLarge)

	longValue := make([]byte, MaxValueLen+1)
	require.ErrorIs(t, tr.Insert([]byte("k"), longValue), ErrInputTooLarge)
}

func TestManyKeysRoundTrip(t *testing.T) {
	tr := New()
	keys := []string{"aa", "ab", "ac", "ba", "bb", "ca", "cb", "cc", "zzzz"}
	for i, k := range keys {
		tr.Insert([]byte(k), []byte{byte(i)})
	}
	for i, k := range keys {
		v, ok := tr.Get([]byte(k))
		require.True(t, ok, k)
		require.Equal(t, []byte{byte(i)}, v, k)
	}
}
