// Package sequencer implements the single-node fallback path described
// in spec.md 4.C: a per-token log queue that is sorted and applied to a
// balance trie without going through the DAG. Grounded on
// original_source/Common/sequencer/sequencer.cpp. The reference's BURN
// handler only reads the sender's balance without debiting it; this
// implementation performs the debit, and gives APPROVE (declared in the
// original's log_type_t but left as a no-op) a real allowance-trie
// semantics.
package sequencer

import (
	"errors"
	"math/big"
	"sort"

	"github.com/xcsec/omniuat/trie"
)

// Errors returned by Sequencer operations.
var (
	ErrUnknownToken       = errors.New("sequencer: token not registered")
	ErrInsufficientFunds  = errors.New("sequencer: insufficient balance")
	ErrEmptySignature     = errors.New("sequencer: signature required")
)

// LogType enumerates the settlement actions a log entry performs.
type LogType uint8

const (
	Transfer LogType = iota
	Approve
	Mint
	Burn
)

// LogEntry is one sequenced settlement instruction.
type LogEntry struct {
	SequenceID   uint64
	Timestamp    uint64
	Type         LogType
	TokenAddress [42]byte
	From         [20]byte
	To           [20]byte
	Amount       [32]byte
	Signature    []byte
	Processed    bool
}

// Sequencer holds, per token, a balance trie and an allowance trie, and
// a queue of every added log entry in arrival order; processed entries
// stay in the queue with Processed set.
type Sequencer struct {
	balances   map[[42]byte]*trie.Trie
	allowances map[[42]byte]*trie.Trie
	queue      []*LogEntry
	nextSeq    uint64
}

// New returns an empty Sequencer.
func New() *Sequencer {
	return &Sequencer{
		balances:   make(map[[42]byte]*trie.Trie),
		allowances: make(map[[42]byte]*trie.Trie),
	}
}

// RegisterToken prepares empty tries for a token address, idempotently.
func (s *Sequencer) RegisterToken(token [42]byte) {
	if _, ok := s.balances[token]; !ok {
		s.balances[token] = trie.New()
		s.allowances[token] = trie.New()
	}
}

// AddLog assigns the next monotonic SequenceID to entry and enqueues it.
func (s *Sequencer) AddLog(entry *LogEntry) uint64 {
	entry.SequenceID = s.nextSeq
	s.nextSeq++
	s.queue = append(s.queue, entry)
	return entry.SequenceID
}

// verifySignature is a placeholder matching original_source's
// sequencer_verify_log_signature, which accepts any non-empty byte
// string. Real signature verification belongs to whatever transport
// delivered the log (see wire.Envelope), not to the sequencer itself.
func verifySignature(sig []byte) bool {
	return len(sig) > 0
}

// ProcessLogs sorts unprocessed entries by (timestamp, sequence_id) and
// applies each to its token's tries in that order, matching
// sequencer_process_logs / compare_logs.
func (s *Sequencer) ProcessLogs() error {
	pending := make([]*LogEntry, 0, len(s.queue))
	for _, e := range s.queue {
		if !e.Processed {
			pending = append(pending, e)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Timestamp != pending[j].Timestamp {
			return pending[i].Timestamp < pending[j].Timestamp
		}
		return pending[i].SequenceID < pending[j].SequenceID
	})

	for _, e := range pending {
		if !verifySignature(e.Signature) {
			return ErrEmptySignature
		}
		if err := s.apply(e); err != nil {
			return err
		}
		e.Processed = true
	}
	return nil
}

func (s *Sequencer) apply(e *LogEntry) error {
	bt, ok := s.balances[e.TokenAddress]
	if !ok {
		return ErrUnknownToken
	}
	amount := new(big.Int).SetBytes(e.Amount[:])

	switch e.Type {
	case Mint:
		credit(bt, e.To[:], amount)
	case Burn:
		if err := debit(bt, e.From[:], amount); err != nil {
			return err
		}
	case Transfer:
		if err := debit(bt, e.From[:], amount); err != nil {
			return err
		}
		credit(bt, e.To[:], amount)
	case Approve:
		at := s.allowances[e.TokenAddress]
		key := append(append([]byte{}, e.From[:]...), e.To[:]...)
		at.Insert(key, e.Amount[:])
	}
	return nil
}

func getBalance(t *trie.Trie, account []byte) *big.Int {
	v, ok := t.Get(account)
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).SetBytes(v)
}

func setBalance(t *trie.Trie, account []byte, value *big.Int) {
	b := value.Bytes()
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	t.Insert(account, padded)
}

func credit(t *trie.Trie, account []byte, amount *big.Int) {
	bal := getBalance(t, account)
	bal.Add(bal, amount)
	setBalance(t, account, bal)
}

func debit(t *trie.Trie, account []byte, amount *big.Int) error {
	bal := getBalance(t, account)
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	bal.Sub(bal, amount)
	setBalance(t, account, bal)
	return nil
}

// GetBalance returns the current balance of account under token.
func (s *Sequencer) GetBalance(token [42]byte, account [20]byte) (*big.Int, error) {
	t, ok := s.balances[token]
	if !ok {
		return nil, ErrUnknownToken
	}
	return getBalance(t, account[:]), nil
}

// GetTokenRoot returns the authenticated root hash of a token's balance
// trie.
func (s *Sequencer) GetTokenRoot(token [42]byte) ([32]byte, error) {
	t, ok := s.balances[token]
	if !ok {
		return [32]byte{}, ErrUnknownToken
	}
	return t.RootHash(), nil
}

// GetAllowance returns the allowance owner has granted spender.
func (s *Sequencer) GetAllowance(token [42]byte, owner, spender [20]byte) (*big.Int, error) {
	t, ok := s.allowances[token]
	if !ok {
		return nil, ErrUnknownToken
	}
	key := append(append([]byte{}, owner[:]...), spender[:]...)
	v, ok := t.Get(key)
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).SetBytes(v), nil
}
