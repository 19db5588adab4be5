// Package hostchannel implements the one shared, mutex-protected
// resource spec.md 5 carves out of an otherwise single-threaded system:
// the host-side mediator that registers guest VMs and forwards messages
// between them. Grounded on
// original_source/AMD_SEV_SNP/HostVM/host_vm_mediator.{h,cpp}, whose
// pthread_mutex-guarded global table this package's sync.Mutex
// replaces.
package hostchannel

import (
	"errors"
	"sync"
)

// ErrUnknownVM is returned when a destination guest VM is not
// registered.
var ErrUnknownVM = errors.New("hostchannel: unknown guest vm")

// ErrNoData is returned by ReceiveFromVM when nothing is queued.
var ErrNoData = errors.New("hostchannel: no data queued")

type guestVM struct {
	id       uint32
	inbox    [][]byte
	isActive bool
}

// Mediator guards its VM table and inboxes with a mutex. The cluster,
// DAG, trie, sequencer and Raft packages take no locks and assume
// single-threaded, cooperative access; the wire transports and the
// l2sim simulator also hold mutexes of their own.
type Mediator struct {
	mu  sync.Mutex
	vms map[uint32]*guestVM
}

// NewMediator returns an empty Mediator.
func NewMediator() *Mediator {
	return &Mediator{vms: make(map[uint32]*guestVM)}
}

// RegisterVM adds or reactivates a guest VM, matching
// host_vm_mediator_register_vm.
func (m *Mediator) RegisterVM(vmID uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if vm, ok := m.vms[vmID]; ok {
		vm.isActive = true
		return
	}
	m.vms[vmID] = &guestVM{id: vmID, isActive: true}
}

// ForwardMessage enqueues data into dstVMID's inbox, matching
// host_vm_mediator_forward_message.
func (m *Mediator) ForwardMessage(srcVMID, dstVMID uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dst, ok := m.vms[dstVMID]
	if !ok || !dst.isActive {
		return ErrUnknownVM
	}
	dst.inbox = append(dst.inbox, data)
	return nil
}

// Broadcast forwards data to every active VM other than srcVMID,
// matching host_vm_mediator_broadcast: success if at least one VM
// received it.
func (m *Mediator) Broadcast(srcVMID uint32, data []byte) error {
	m.mu.Lock()
	targets := make([]uint32, 0, len(m.vms))
	for id, vm := range m.vms {
		if id != srcVMID && vm.isActive {
			targets = append(targets, id)
		}
	}
	m.mu.Unlock()

	sent := 0
	for _, id := range targets {
		if err := m.ForwardMessage(srcVMID, id, data); err == nil {
			sent++
		}
	}
	if sent == 0 {
		return ErrUnknownVM
	}
	return nil
}

// ReceiveFromVM dequeues the oldest message queued for vmID.
func (m *Mediator) ReceiveFromVM(vmID uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vm, ok := m.vms[vmID]
	if !ok || len(vm.inbox) == 0 {
		return nil, ErrNoData
	}
	data := vm.inbox[0]
	vm.inbox = vm.inbox[1:]
	return data, nil
}

// Close deactivates every registered VM, matching
// host_vm_mediator_close.
func (m *Mediator) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, vm := range m.vms {
		vm.isActive = false
	}
	m.vms = make(map[uint32]*guestVM)
}
