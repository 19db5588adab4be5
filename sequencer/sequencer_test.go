package sequencer

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func token(b byte) [42]byte {
	var t [42]byte
	t[0] = b
	return t
}

func account(b byte) [20]byte {
	var a [20]byte
	a[0] = b
	return a
}

func amount(v int64) [32]byte {
	var a [32]byte
	bi := big.NewInt(v)
	bb := bi.Bytes()
	copy(a[32-len(bb):], bb)
	return a
}

func TestMintThenTransfer(t *testing.T) {
	s := New()
	tok := token(1)
	s.RegisterToken(tok)

	s.AddLog(&LogEntry{Timestamp: 1, Type: Mint, TokenAddress: tok, To: account(1), Amount: amount(100), Signature: []byte{1}})
	s.AddLog(&LogEntry{Timestamp: 2, Type: Transfer, TokenAddress: tok, From: account(1), To: account(2), Amount: amount(40), Signature: []byte{1}})

	require.NoError(t, s.ProcessLogs())

	bal1, err := s.GetBalance(tok, account(1))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(60), bal1)

	bal2, err := s.GetBalance(tok, account(2))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(40), bal2)
}

func TestBurnDebits(t *testing.T) {
	s := New()
	tok := token(1)
	s.RegisterToken(tok)
	s.AddLog(&LogEntry{Timestamp: 1, Type: Mint, TokenAddress: tok, To: account(1), Amount: amount(50), Signature: []byte{1}})
	s.AddLog(&LogEntry{Timestamp: 2, Type: Burn, TokenAddress: tok, From: account(1), Amount: amount(20), Signature: []byte{1}})
	require.NoError(t, s.ProcessLogs())

	bal, err := s.GetBalance(tok, account(1))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(30), bal)
}

func TestBurnInsufficientFunds(t *testing.T) {
	s := New()
	tok := token(1)
	s.RegisterToken(tok)
	s.AddLog(&LogEntry{Timestamp: 1, Type: Burn, TokenAddress: tok, From: account(1), Amount: amount(20), Signature: []byte{1}})
	err := s.ProcessLogs()
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestApproveRecordsAllowance(t *testing.T) {
	s := New()
	tok := token(1)
	s.RegisterToken(tok)
	s.AddLog(&LogEntry{Timestamp: 1, Type: Approve, TokenAddress: tok, From: account(1), To: account(2), Amount: amount(75), Signature: []byte{1}})
	require.NoError(t, s.ProcessLogs())

	allow, err := s.GetAllowance(tok, account(1), account(2))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(75), allow)
}

func TestProcessOrdersByTimestampThenSequence(t *testing.T) {
	s := New()
	tok := token(1)
	s.RegisterToken(tok)
	// inserted out of timestamp order
	s.AddLog(&LogEntry{Timestamp: 2, Type: Mint, TokenAddress: tok, To: account(1), Amount: amount(5), Signature: []byte{1}})
	s.AddLog(&LogEntry{Timestamp: 1, Type: Mint, TokenAddress: tok, To: account(1), Amount: amount(3), Signature: []byte{1}})
	require.NoError(t, s.ProcessLogs())

	bal, err := s.GetBalance(tok, account(1))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(8), bal)

	// a transfer added before the mint that funds it but timestamped after
	// it, then a mint and the transfer it funds sharing one timestamp: any
	// other order debits an unfunded account and fails
	s.AddLog(&LogEntry{Timestamp: 4, Type: Transfer, TokenAddress: tok, From: account(2), To: account(1), Amount: amount(4), Signature: []byte{1}})
	s.AddLog(&LogEntry{Timestamp: 3, Type: Mint, TokenAddress: tok, To: account(2), Amount: amount(6), Signature: []byte{1}})
	s.AddLog(&LogEntry{Timestamp: 5, Type: Mint, TokenAddress: tok, To: account(3), Amount: amount(7), Signature: []byte{1}})
	s.AddLog(&LogEntry{Timestamp: 5, Type: Transfer, TokenAddress: tok, From: account(3), To: account(1), Amount: amount(7), Signature: []byte{1}})
	require.NoError(t, s.ProcessLogs())

	bal, err = s.GetBalance(tok, account(1))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(19), bal)

	bal2, err := s.GetBalance(tok, account(2))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(2), bal2)
}

func TestUnknownTokenRejected(t *testing.T) {
	s := New()
	s.AddLog(&LogEntry{Timestamp: 1, Type: Mint, TokenAddress: token(9), To: account(1), Amount: amount(5), Signature: []byte{1}})
	err := s.ProcessLogs()
	require.ErrorIs(t, err, ErrUnknownToken)
}

func TestEmptySignatureRejected(t *testing.T) {
	s := New()
	tok := token(1)
	s.RegisterToken(tok)
	s.AddLog(&LogEntry{Timestamp: 1, Type: Mint, TokenAddress: tok, To: account(1), Amount: amount(5)})
	err := s.ProcessLogs()
	require.ErrorIs(t, err, ErrEmptySignature)
}
