package store

import (
	"bytes"
	"sync"
)

type entry struct {
	set map[string]struct{}
	str []byte
}

func (e *entry) kind() ValueKind {
	if e == nil {
		return KindNone
	}
	if e.set != nil {
		return KindSet
	}
	return KindString
}

// Memory is an in-process Backend guarded by a single RWMutex.
//
// Writes inside Update are applied immediately and are not rolled back when
// fn returns an error. Command handlers check types before mutating.
type Memory struct {
	mu     sync.RWMutex
	data   map[string]*entry
	closed bool
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]*entry)}
}

func (m *Memory) Update(fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return fn(memoryTx{m: m, writable: true})
}

func (m *Memory) View(fn func(Tx) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return fn(memoryTx{m: m})
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = nil
	return nil
}

type memoryTx struct {
	m        *Memory
	writable bool
}

func (tx memoryTx) Kind(key []byte) (ValueKind, error) {
	return tx.m.data[string(key)].kind(), nil
}

func (tx memoryTx) Members(key []byte) ([][]byte, error) {
	e := tx.m.data[string(key)]
	if e == nil || e.set == nil {
		return nil, nil
	}
	members := make([][]byte, 0, len(e.set))
	for member := range e.set {
		members = append(members, []byte(member))
	}
	return members, nil
}

func (tx memoryTx) IsMember(key, member []byte) (bool, error) {
	e := tx.m.data[string(key)]
	if e == nil || e.set == nil {
		return false, nil
	}
	_, ok := e.set[string(member)]
	return ok, nil
}

func (tx memoryTx) Card(key []byte) (int64, error) {
	e := tx.m.data[string(key)]
	if e == nil {
		return 0, nil
	}
	return int64(len(e.set)), nil
}

func (tx memoryTx) Add(key, member []byte) (bool, error) {
	if !tx.writable {
		return false, errReadOnly
	}
	e := tx.m.data[string(key)]
	if e == nil || e.set == nil {
		e = &entry{set: make(map[string]struct{})}
		tx.m.data[string(key)] = e
	}
	if _, ok := e.set[string(member)]; ok {
		return false, nil
	}
	e.set[string(member)] = struct{}{}
	return true, nil
}

func (tx memoryTx) Remove(key, member []byte) (bool, error) {
	if !tx.writable {
		return false, errReadOnly
	}
	e := tx.m.data[string(key)]
	if e == nil || e.set == nil {
		return false, nil
	}
	if _, ok := e.set[string(member)]; !ok {
		return false, nil
	}
	delete(e.set, string(member))
	if len(e.set) == 0 {
		delete(tx.m.data, string(key))
	}
	return true, nil
}

func (tx memoryTx) GetString(key []byte) ([]byte, error) {
	e := tx.m.data[string(key)]
	if e == nil || e.set != nil {
		return nil, nil
	}
	return bytes.Clone(e.str), nil
}

func (tx memoryTx) PutString(key, value []byte) error {
	if !tx.writable {
		return errReadOnly
	}
	str := bytes.Clone(value)
	if str == nil {
		str = []byte{}
	}
	tx.m.data[string(key)] = &entry{str: str}
	return nil
}

func (tx memoryTx) Delete(key []byte) (bool, error) {
	if !tx.writable {
		return false, errReadOnly
	}
	if _, ok := tx.m.data[string(key)]; !ok {
		return false, nil
	}
	delete(tx.m.data, string(key))
	return true, nil
}
