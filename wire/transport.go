// Transport implementations: a loopback transport for tests and
// single-process demos, and a framed TCP transport for real deployment.
// original_source's tee_network_send_message builds and signs an
// envelope but stops short of actually transmitting it -- the socket
// handle is an untyped placeholder -- so both implementations here are
// additions rather than direct ports.
package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
)

// ErrPeerUnreachable is returned when a target node has no registered
// route.
var ErrPeerUnreachable = errors.New("wire: peer unreachable")

// Transport sends and receives Envelopes between nodes.
type Transport interface {
	Send(env Envelope) error
	Recv() (Envelope, bool)
	Broadcast(env Envelope, peers []uint32) error
	Close() error
}

// LoopbackTransport routes envelopes through in-process channels,
// keyed by node ID, matching tee_network's FIFO pending_messages queue
// but without a real socket underneath.
type LoopbackTransport struct {
	selfID uint32
	mu     sync.Mutex
	routes map[uint32]chan Envelope
	inbox  chan Envelope
}

// NewLoopbackNetwork builds one LoopbackTransport per node ID in ids,
// all wired to each other.
func NewLoopbackNetwork(ids []uint32, bufSize int) map[uint32]*LoopbackTransport {
	inboxes := make(map[uint32]chan Envelope, len(ids))
	for _, id := range ids {
		inboxes[id] = make(chan Envelope, bufSize)
	}
	nets := make(map[uint32]*LoopbackTransport, len(ids))
	for _, id := range ids {
		nets[id] = &LoopbackTransport{selfID: id, routes: inboxes, inbox: inboxes[id]}
	}
	return nets
}

// Send delivers env to its ToNodeID's inbox.
func (t *LoopbackTransport) Send(env Envelope) error {
	t.mu.Lock()
	ch, ok := t.routes[env.ToNodeID]
	t.mu.Unlock()
	if !ok {
		return ErrPeerUnreachable
	}
	select {
	case ch <- env:
		return nil
	default:
		return ErrPeerUnreachable
	}
}

// Recv returns the next queued envelope for this node, if any.
func (t *LoopbackTransport) Recv() (Envelope, bool) {
	select {
	case env := <-t.inbox:
		return env, true
	default:
		return Envelope{}, false
	}
}

// Broadcast sends env, with ToNodeID overridden per peer, to every
// active peer other than self, matching tee_network_broadcast: success
// if at least one peer accepted it.
func (t *LoopbackTransport) Broadcast(env Envelope, peers []uint32) error {
	sent := 0
	for _, peer := range peers {
		if peer == t.selfID {
			continue
		}
		e := env
		e.ToNodeID = peer
		if t.Send(e) == nil {
			sent++
		}
	}
	if sent == 0 {
		return ErrPeerUnreachable
	}
	return nil
}

// Close is a no-op for LoopbackTransport; the channels are shared.
func (t *LoopbackTransport) Close() error { return nil }

// TCPTransport frames envelopes with a 4-byte big-endian length prefix
// over one net.Conn per peer.
type TCPTransport struct {
	selfID uint32
	mu     sync.Mutex
	conns  map[uint32]net.Conn
	inbox  chan Envelope
}

// NewTCPTransport constructs a transport that listens on listenAddr.
// Routes to peers are added with Connect.
func NewTCPTransport(selfID uint32, listenAddr string, bufSize int) (*TCPTransport, error) {
	t := &TCPTransport{
		selfID: selfID,
		conns:  make(map[uint32]net.Conn),
		inbox:  make(chan Envelope, bufSize),
	}
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}
	go t.acceptLoop(ln)
	return t, nil
}

func (t *TCPTransport) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go t.readLoop(conn)
	}
}

func (t *TCPTransport) readLoop(conn net.Conn) {
	r := bufio.NewReader(conn)
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		if n > MaxPayloadSize+128 {
			return
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(r, body); err != nil {
			return
		}
		env, err := Decode(body)
		if err != nil {
			continue
		}
		t.inbox <- env
	}
}

// Connect dials addr immediately and registers the connection as the
// route to peerID.
func (t *TCPTransport) Connect(peerID uint32, addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.conns[peerID] = conn
	t.mu.Unlock()
	go t.readLoop(conn)
	return nil
}

// Send frames and writes env to its ToNodeID's connection.
func (t *TCPTransport) Send(env Envelope) error {
	t.mu.Lock()
	conn, ok := t.conns[env.ToNodeID]
	t.mu.Unlock()
	if !ok {
		return ErrPeerUnreachable
	}
	data, err := env.Encode()
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = conn.Write(data)
	return err
}

// Recv returns the next decoded envelope received from any peer.
func (t *TCPTransport) Recv() (Envelope, bool) {
	select {
	case env := <-t.inbox:
		return env, true
	default:
		return Envelope{}, false
	}
}

// Broadcast sends env to every connected peer other than self.
func (t *TCPTransport) Broadcast(env Envelope, peers []uint32) error {
	sent := 0
	for _, peer := range peers {
		if peer == t.selfID {
			continue
		}
		e := env
		e.ToNodeID = peer
		if t.Send(e) == nil {
			sent++
		}
	}
	if sent == 0 {
		return ErrPeerUnreachable
	}
	return nil
}

// Close closes every outbound connection.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.conns {
		_ = c.Close()
	}
	return nil
}
