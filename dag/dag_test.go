package dag

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xcsec/omniuat/operation"
)

func op(id, tx uint64, typ operation.Type, token, account byte, amount int64, sortOrder uint64) operation.Operation {
	var o operation.Operation
	o.OperationID = id
	o.TxID = tx
	o.Type = typ
	o.TokenAddress[0] = token
	o.Account[0] = account
	o.TxSortOrder = sortOrder
	var amt [32]byte
	amt[31] = byte(amount)
	o.Amount = amt
	return o
}

func TestInsertSingleOperation(t *testing.T) {
	d := New(DefaultConfig())
	n, err := d.Insert(op(1, 1, operation.Add, 1, 1, 100, 0))
	require.NoError(t, err)
	require.Equal(t, NodeID(0), n.ID)
	require.Equal(t, 1, d.Len())
	require.NotEqual(t, [32]byte{}, d.RootHash())
}

func TestConflictingOpsGetParentChildEdge(t *testing.T) {
	d := New(DefaultConfig())
	_, err := d.Insert(op(1, 1, operation.Add, 1, 1, 100, 1))
	require.NoError(t, err)
	child, err := d.Insert(op(2, 1, operation.Sub, 1, 1, 50, 2))
	require.NoError(t, err)

	require.Len(t, child.Parents, 1)
	parent, err := d.Node(child.Parents[0])
	require.NoError(t, err)
	require.Len(t, parent.Children, 1)
	require.Equal(t, child.ID, parent.Children[0])
}

func TestNonConflictingOpsBecomeNeighbors(t *testing.T) {
	d := New(DefaultConfig())
	a, err := d.Insert(op(1, 1, operation.Add, 1, 1, 100, 1))
	require.NoError(t, err)
	b, err := d.Insert(op(2, 2, operation.Add, 1, 1, 50, 2))
	require.NoError(t, err)

	require.Contains(t, a.Neighbors, b.ID)
	require.Contains(t, b.Neighbors, a.ID)
	require.Empty(t, a.Parents)
	require.Empty(t, b.Parents)
}

func TestHeadExcludesProcessedNodes(t *testing.T) {
	d := New(DefaultConfig())
	_, err := d.Insert(op(1, 1, operation.Add, 1, 1, 100, 1))
	require.NoError(t, err)
	require.Len(t, d.Head(), 1)

	d.UpdateState()
	n2, err := d.Insert(op(2, 2, operation.Add, 1, 2, 50, 2))
	require.NoError(t, err)
	require.Equal(t, []NodeID{n2.ID}, d.Head())
}

func TestValidateTxFailsWhenBalanceHitsZero(t *testing.T) {
	d := New(DefaultConfig())
	_, err := d.Insert(op(1, 1, operation.Add, 1, 1, 100, 1))
	require.NoError(t, err)
	subNode, err := d.Insert(op(2, 1, operation.Sub, 1, 1, 100, 2))
	require.NoError(t, err)

	failed, err := d.CheckOperationFailed(subNode.ID)
	require.NoError(t, err)
	require.True(t, failed)
}

func TestValidateTxSucceedsWhenBalanceStaysPositive(t *testing.T) {
	d := New(DefaultConfig())
	_, err := d.Insert(op(1, 1, operation.Add, 1, 1, 100, 1))
	require.NoError(t, err)
	subNode, err := d.Insert(op(2, 1, operation.Sub, 1, 1, 40, 2))
	require.NoError(t, err)

	failed, err := d.CheckOperationFailed(subNode.ID)
	require.NoError(t, err)
	require.False(t, failed)
}

func TestReverseOperation(t *testing.T) {
	d := New(DefaultConfig())
	n, err := d.Insert(op(1, 1, operation.Add, 1, 1, 100, 1))
	require.NoError(t, err)

	rev, err := d.Insert(mustReverse(t, n.Operation))
	require.NoError(t, err)
	require.Equal(t, operation.Sub, rev.Operation.Type)
}

func mustReverse(t *testing.T, o operation.Operation) operation.Operation {
	rev, err := operation.Reverse(o)
	require.NoError(t, err)
	return rev
}

func TestFindBlockRelatedNodes(t *testing.T) {
	d := New(DefaultConfig())
	a, err := d.Insert(op(1, 1, operation.Add, 1, 1, 100, 1))
	require.NoError(t, err)
	b, err := d.Insert(op(2, 1, operation.Sub, 1, 1, 10, 2))
	require.NoError(t, err)

	related, err := d.FindBlockRelatedNodes(a.ID)
	require.NoError(t, err)
	ids := map[NodeID]bool{}
	for _, n := range related {
		ids[n.ID] = true
	}
	require.True(t, ids[a.ID])
	require.True(t, ids[b.ID])
}

func TestCapacityExceeded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxNodes = 1
	d := New(cfg)
	_, err := d.Insert(op(1, 1, operation.Add, 1, 1, 100, 1))
	require.NoError(t, err)
	_, err = d.Insert(op(2, 2, operation.Add, 2, 2, 100, 1))
	require.ErrorIs(t, err, ErrCapacityExceeded)
}
