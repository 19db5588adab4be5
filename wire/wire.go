// Package wire implements the framed, authenticated message envelope
// nodes exchange, and the Raft/DAG/epoch message types it carries.
// Grounded on original_source/Common/tee_network/{tee_network.h,.cpp}.
// The original's "signature" is sha256 of the header-without-signature
// concatenated with the payload, truncated to 32 bytes with the other
// 32 zeroed, and "verification" is just a not-all-zero check -- spec.md
// 9 flags this as a placeholder. This package replaces it with a real
// ed25519 signature over the same byte range, via primitives.Suite.
package wire

import (
	"encoding/binary"
	"errors"

	"github.com/xcsec/omniuat/primitives"
	"github.com/xcsec/omniuat/wirepack"
)

// MaxPayloadSize bounds a single envelope's payload, matching
// MAX_MESSAGE_SIZE.
const MaxPayloadSize = 4096

// Errors of envelope handling. Sign, Encode and Decode return
// ErrPayloadTooLarge and ErrMalformed; Verify reports a bad signature as
// a false result and does not return ErrUnverified.
var (
	ErrPayloadTooLarge = errors.New("wire: payload exceeds maximum size")
	ErrMalformed       = errors.New("wire: malformed envelope")
	ErrUnverified       = errors.New("wire: signature verification failed")
)

// Type enumerates every message kind a node exchanges, matching
// message_type_t.
type Type uint8

const (
	Heartbeat Type = iota
	LeaderElection
	SortedTxs
	DAGNode
	RequestDAGNode
	DAGNodeResponse
	SyncRequest
	SyncResponse
	RaftRequestVote
	RaftRequestVoteResponse
	RaftAppendEntries
	RaftAppendEntriesResponse
	TxSetBroadcast
	TxSetSignature
	EpochOutput
	EpochSyncToL2
)

// Envelope is the wire format every message travels in: fixed-width
// header fields, a signature over everything but itself, and a bounded
// payload, matching tee_message_t/message_header_t.
type Envelope struct {
	FromNodeID  uint32
	ToNodeID    uint32
	Type        Type
	PayloadSize uint32
	Timestamp   uint64
	Signature   []byte // ed25519.SignatureSize bytes once signed
	Payload     []byte
}

// signedPrefix returns the header bytes covered by the signature: every
// field except the signature itself, followed by the payload.
func (e *Envelope) signedPrefix() []byte {
	p := wirepack.NewPacker(4 + 4 + 1 + 4 + 8 + len(e.Payload))
	p.PackInt(e.FromNodeID)
	p.PackInt(e.ToNodeID)
	p.PackByte(byte(e.Type))
	p.PackInt(e.PayloadSize)
	p.PackLong(e.Timestamp)
	p.PackBytes(e.Payload)
	return p.Bytes
}

// Sign fills in PayloadSize and Signature using suite's key.
func (e *Envelope) Sign(suite *primitives.Suite) error {
	if len(e.Payload) > MaxPayloadSize {
		return ErrPayloadTooLarge
	}
	e.PayloadSize = uint32(len(e.Payload))
	e.Signature = suite.Sign(e.signedPrefix())
	return nil
}

// Verify checks e's signature against pub.
func (e *Envelope) Verify(pub []byte) bool {
	return primitives.Verify(pub, e.signedPrefix(), e.Signature)
}

// Encode serializes the envelope to bytes for transport, writing the
// signature behind its own 4-byte length field. It adds no total-length
// prefix; TCPTransport.Send writes that frame prefix itself.
func (e *Envelope) Encode() ([]byte, error) {
	if len(e.Payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	p := wirepack.NewPacker(4 + 4 + 1 + 4 + 8 + 4 + len(e.Signature) + len(e.Payload))
	p.PackInt(e.FromNodeID)
	p.PackInt(e.ToNodeID)
	p.PackByte(byte(e.Type))
	p.PackInt(e.PayloadSize)
	p.PackLong(e.Timestamp)
	p.PackInt(uint32(len(e.Signature)))
	p.PackBytes(e.Signature)
	p.PackBytes(e.Payload)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Bytes, nil
}

// Decode parses an envelope previously produced by Encode.
func Decode(b []byte) (Envelope, error) {
	u := wirepack.NewUnpacker(b)
	var e Envelope
	e.FromNodeID = u.UnpackInt()
	e.ToNodeID = u.UnpackInt()
	e.Type = Type(u.UnpackByte())
	e.PayloadSize = u.UnpackInt()
	e.Timestamp = u.UnpackLong()
	sigLen := u.UnpackInt()
	e.Signature = u.UnpackBytes(int(sigLen))
	e.Payload = u.UnpackBytes(int(e.PayloadSize))
	if u.Err != nil {
		return Envelope{}, ErrMalformed
	}
	if e.PayloadSize > MaxPayloadSize {
		return Envelope{}, ErrPayloadTooLarge
	}
	return e, nil
}

// FrameLength reads the 4-byte big-endian length prefix a stream
// transport writes ahead of an encoded envelope.
func FrameLength(b []byte) (uint32, error) {
	if len(b) < 4 {
		return 0, ErrMalformed
	}
	return binary.BigEndian.Uint32(b[:4]), nil
}
