// Package wirepack implements fixed-width big-endian binary packing,
// used by the wire envelope. Raft messages and log entries are encoded
// as JSON, and the operation canonical encoding uses encoding/binary
// little-endian, so neither goes through this package. Grounded on the
// teacher's utils/wrappers.Packer, extended with an Unpacker counterpart
// the original lacked.
package wirepack

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned when Unpack is asked to read past the end
// of its buffer.
var ErrShortBuffer = errors.New("wirepack: short buffer")

// Packer accumulates fields into a single byte slice in the order they
// are packed.
type Packer struct {
	Bytes []byte
	Err   error
}

// NewPacker returns a Packer with size as its initial capacity hint.
func NewPacker(size int) *Packer {
	return &Packer{Bytes: make([]byte, 0, size)}
}

// PackByte packs a single byte.
func (p *Packer) PackByte(b byte) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes, b)
}

// PackBytes appends raw bytes without a length prefix.
func (p *Packer) PackBytes(b []byte) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes, b...)
}

// PackInt packs a uint32 big-endian.
func (p *Packer) PackInt(i uint32) {
	if p.Err != nil {
		return
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], i)
	p.Bytes = append(p.Bytes, buf[:]...)
}

// PackLong packs a uint64 big-endian.
func (p *Packer) PackLong(l uint64) {
	if p.Err != nil {
		return
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], l)
	p.Bytes = append(p.Bytes, buf[:]...)
}

// Unpacker reads fields sequentially from a fixed byte slice.
type Unpacker struct {
	Bytes  []byte
	Offset int
	Err    error
}

// NewUnpacker wraps b for sequential reads.
func NewUnpacker(b []byte) *Unpacker {
	return &Unpacker{Bytes: b}
}

func (u *Unpacker) require(n int) bool {
	if u.Err != nil {
		return false
	}
	if u.Offset+n > len(u.Bytes) {
		u.Err = ErrShortBuffer
		return false
	}
	return true
}

// UnpackByte reads a single byte.
func (u *Unpacker) UnpackByte() byte {
	if !u.require(1) {
		return 0
	}
	b := u.Bytes[u.Offset]
	u.Offset++
	return b
}

// UnpackBytes reads n raw bytes.
func (u *Unpacker) UnpackBytes(n int) []byte {
	if !u.require(n) {
		return nil
	}
	b := make([]byte, n)
	copy(b, u.Bytes[u.Offset:u.Offset+n])
	u.Offset += n
	return b
}

// UnpackInt reads a big-endian uint32.
func (u *Unpacker) UnpackInt() uint32 {
	if !u.require(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(u.Bytes[u.Offset : u.Offset+4])
	u.Offset += 4
	return v
}

// UnpackLong reads a big-endian uint64.
func (u *Unpacker) UnpackLong() uint64 {
	if !u.require(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(u.Bytes[u.Offset : u.Offset+8])
	u.Offset += 8
	return v
}

// Remaining returns the unread tail of the buffer.
func (u *Unpacker) Remaining() []byte {
	if u.Err != nil || u.Offset > len(u.Bytes) {
		return nil
	}
	return u.Bytes[u.Offset:]
}
