// Package l2sim synthesizes settlement operations the way a connected
// L2 chain would, for testing and local demos. Grounded on
// original_source/App_Common/l2_simulator/l2_simulator.{h,cpp}, whose
// callback-based event source spec.md 9 recommends turning into a
// Go channel.
package l2sim

import (
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/xcsec/omniuat/operation"
	"github.com/xcsec/omniuat/primitives"
)

// Chain is one simulated L2 chain feeding operations into the cluster.
type Chain struct {
	ID   uint32
	Name string

	blockNumber uint64
	txCounter   uint64
}

// Simulator runs zero or more simulated chains and publishes the
// operations they generate onto a single bounded channel, replacing
// l2_simulator_manager_t's operation_callback_t with a Go channel.
type Simulator struct {
	mu     sync.Mutex
	chains map[uint32]*Chain
	events chan operation.Operation
	nextOp uint64
	nextTx uint64
}

// New returns a Simulator whose event channel has the given buffer
// size.
func New(bufSize int) *Simulator {
	return &Simulator{
		chains: make(map[uint32]*Chain),
		events: make(chan operation.Operation, bufSize),
	}
}

// Events returns the channel operations are published on.
func (s *Simulator) Events() <-chan operation.Operation {
	return s.events
}

// AddChain registers a simulated chain, matching
// l2_simulator_add_chain.
func (s *Simulator) AddChain(id uint32, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chains[id] = &Chain{ID: id, Name: name}
}

func (s *Simulator) nextIDs() (uint64, uint64) {
	return atomic.AddUint64(&s.nextOp, 1), atomic.AddUint64(&s.nextTx, 1)
}

func amountBytes(v int64) [32]byte {
	var a [32]byte
	b := big.NewInt(v).Bytes()
	copy(a[32-len(b):], b)
	return a
}

// GenerateTransfer publishes a TRANSFER-shaped operation pair (a SUB
// from `from` and an ADD to `to`), matching
// l2_simulator_generate_transfer's semantics once expressed as DAG
// operations rather than a single atomic log entry.
func (s *Simulator) GenerateTransfer(chainID uint32, token [42]byte, from, to [20]byte, amount int64) {
	opID, txID := s.nextIDs()
	amt := amountBytes(amount)

	sub := operation.Operation{OperationID: opID, TxID: txID, Type: operation.Sub, TokenAddress: token, Account: from, Amount: amt, TxSortOrder: opID}
	add := operation.Operation{OperationID: opID + 1, TxID: txID, Type: operation.Add, TokenAddress: token, Account: to, Amount: amt, TxSortOrder: opID + 1}

	s.events <- sub
	s.events <- add
}

// GenerateMint publishes a MINT-shaped ADD operation, matching
// l2_simulator_generate_mint.
func (s *Simulator) GenerateMint(chainID uint32, token [42]byte, to [20]byte, amount int64) {
	opID, txID := s.nextIDs()
	s.events <- operation.Operation{OperationID: opID, TxID: txID, Type: operation.Add, TokenAddress: token, Account: to, Amount: amountBytes(amount), TxSortOrder: opID}
}

// GenerateBurn publishes a BURN-shaped SUB operation, matching
// l2_simulator_generate_burn.
func (s *Simulator) GenerateBurn(chainID uint32, token [42]byte, from [20]byte, amount int64) {
	opID, txID := s.nextIDs()
	s.events <- operation.Operation{OperationID: opID, TxID: txID, Type: operation.Sub, TokenAddress: token, Account: from, Amount: amountBytes(amount), TxSortOrder: opID}
}

// RandomAddress returns a fresh pseudo-random 20-byte address, matching
// l2_simulator_generate_random_address.
func RandomAddress() ([20]byte, error) {
	var a [20]byte
	b, err := primitives.RNG(20)
	if err != nil {
		return a, err
	}
	copy(a[:], b)
	return a, nil
}

// RandomToken returns a fresh pseudo-random 42-byte token address,
// matching l2_simulator_generate_random_token.
func RandomToken() ([42]byte, error) {
	var t [42]byte
	b, err := primitives.RNG(42)
	if err != nil {
		return t, err
	}
	copy(t[:], b)
	return t, nil
}

// Close drains no further events; callers should stop publishing before
// closing the channel.
func (s *Simulator) Close() {
	close(s.events)
}
