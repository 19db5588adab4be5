// Package operation defines the settlement operation type, its
// canonical byte encoding and content-addressed hash, and the conflict
// predicate and reverse-operation construction the DAG builds on.
// Grounded on original_source/Common/merkle_crdt/merkle_crdt.{h,cpp}
// (operation_t, operation_hash, merkle_crdt_is_conflict,
// merkle_crdt_create_reverse_operation).
package operation

import (
	"encoding/binary"
	"errors"

	"github.com/xcsec/omniuat/primitives"
)

// ErrIrreversible is returned by Reverse for a SET operation, which the
// original leaves with is_valid=false rather than a real inverse.
var ErrIrreversible = errors.New("operation: SET has no inverse")

// ReverseIDOffset is added to OperationID when constructing a
// compensating operation, matching the original's
// operation_id += 0x8000000000000000ULL.
const ReverseIDOffset = uint64(1) << 63

// Type is the kind of balance mutation an operation performs.
type Type uint8

const (
	Add Type = iota
	Sub
	Set
)

func (t Type) String() string {
	switch t {
	case Add:
		return "ADD"
	case Sub:
		return "SUB"
	case Set:
		return "SET"
	default:
		return "UNKNOWN"
	}
}

// Operation is one settlement instruction against a single
// (token, account) balance.
type Operation struct {
	OperationID  uint64
	TxID         uint64
	Type         Type
	TokenAddress [42]byte
	Account      [20]byte
	Amount       [32]byte

	// TxSortOrder breaks ties when two operations share a tx and
	// determines parent/child placement on DAG insertion (higher
	// becomes child of lower).
	TxSortOrder uint64
}

// Encode produces the little-endian fixed-width byte concatenation the
// original hashes: operation_id, tx_id, type, token_address, account,
// amount, in that order.
func (op Operation) Encode() []byte {
	buf := make([]byte, 0, 8+8+1+len(op.TokenAddress)+len(op.Account)+len(op.Amount))
	var u64 [8]byte

	binary.LittleEndian.PutUint64(u64[:], op.OperationID)
	buf = append(buf, u64[:]...)

	binary.LittleEndian.PutUint64(u64[:], op.TxID)
	buf = append(buf, u64[:]...)

	buf = append(buf, byte(op.Type))
	buf = append(buf, op.TokenAddress[:]...)
	buf = append(buf, op.Account[:]...)
	buf = append(buf, op.Amount[:]...)
	return buf
}

// Hash is the content-addressed digest used as this operation's
// identity in the DAG.
func (op Operation) Hash() [32]byte {
	return primitives.Hash(op.Encode())
}

// Conflicts reports whether a and b touch the same (token, account) and
// whose type pair can race: (ADD,SUB), (SUB,ADD) or (SUB,SUB). SET never
// conflicts, matching merkle_crdt_is_conflict.
func Conflicts(a, b Operation) bool {
	if a.TokenAddress != b.TokenAddress || a.Account != b.Account {
		return false
	}
	switch {
	case a.Type == Add && b.Type == Sub:
		return true
	case a.Type == Sub && b.Type == Add:
		return true
	case a.Type == Sub && b.Type == Sub:
		return true
	default:
		return false
	}
}

// Reverse builds the compensating operation for a failed L2 transaction:
// ADD becomes SUB and vice versa, with OperationID offset by
// ReverseIDOffset. SET cannot be reversed.
func Reverse(op Operation) (Operation, error) {
	rev := op
	rev.OperationID = op.OperationID + ReverseIDOffset
	switch op.Type {
	case Add:
		rev.Type = Sub
	case Sub:
		rev.Type = Add
	default:
		return Operation{}, ErrIrreversible
	}
	return rev, nil
}
