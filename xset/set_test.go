package xset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOf(t *testing.T) {
	s1 := Of[int]()
	require.Equal(t, 0, s1.Len())

	s2 := Of(1, 2, 3)
	require.Equal(t, 3, s2.Len())
	require.True(t, s2.Contains(1))
	require.True(t, s2.Contains(2))
	require.True(t, s2.Contains(3))

	s3 := Of(1, 2, 2, 3, 3, 3)
	require.Equal(t, 3, s3.Len())
}

func TestAddAndRemove(t *testing.T) {
	s := make(Set[string])
	s.Add("a", "b")
	require.Equal(t, 2, s.Len())
	require.True(t, s.Contains("a"))

	s.Remove("a")
	require.Equal(t, 1, s.Len())
	require.False(t, s.Contains("a"))
	require.True(t, s.Contains("b"))
}

func TestList(t *testing.T) {
	s := Of(1, 2, 3)
	list := s.List()
	require.ElementsMatch(t, []int{1, 2, 3}, list)
}

func TestClone(t *testing.T) {
	s := Of(1, 2, 3)
	c := s.Clone()
	c.Add(4)
	require.Equal(t, 3, s.Len())
	require.Equal(t, 4, c.Len())
}
