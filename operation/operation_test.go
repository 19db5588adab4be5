package operation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleOp(id uint64, typ Type, token byte, account byte) Operation {
	var op Operation
	op.OperationID = id
	op.TxID = 1
	op.Type = typ
	op.TokenAddress[0] = token
	op.Account[0] = account
	op.Amount[31] = 10
	return op
}

func TestHashDeterministic(t *testing.T) {
	a := sampleOp(1, Add, 1, 1)
	b := sampleOp(1, Add, 1, 1)
	require.Equal(t, a.Hash(), b.Hash())
}

func TestHashChangesWithField(t *testing.T) {
	a := sampleOp(1, Add, 1, 1)
	b := sampleOp(2, Add, 1, 1)
	require.NotEqual(t, a.Hash(), b.Hash())
}

func TestConflictsMatrix(t *testing.T) {
	cases := []struct {
		a, b Type
		want bool
	}{
		{Add, Sub, true},
		{Sub, Add, true},
		{Sub, Sub, true},
		{Add, Add, false},
		{Set, Sub, false},
		{Set, Set, false},
	}
	for _, c := range cases {
		a := sampleOp(1, c.a, 5, 5)
		b := sampleOp(2, c.b, 5, 5)
		require.Equal(t, c.want, Conflicts(a, b), "%v vs %v", c.a, c.b)
	}
}

func TestConflictsRequiresSameAccountAndToken(t *testing.T) {
	a := sampleOp(1, Add, 1, 1)
	b := sampleOp(2, Sub, 1, 2)
	require.False(t, Conflicts(a, b))
}

func TestReverse(t *testing.T) {
	a := sampleOp(5, Add, 1, 1)
	rev, err := Reverse(a)
	require.NoError(t, err)
	require.Equal(t, Sub, rev.Type)
	require.Equal(t, a.OperationID+ReverseIDOffset, rev.OperationID)

	s := sampleOp(5, Set, 1, 1)
	_, err = Reverse(s)
	require.ErrorIs(t, err, ErrIrreversible)
}
