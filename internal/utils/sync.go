package utils

import (
	"sync"
)

// OptionalMutex is a sync.Locker that only locks when it was created with useMutex set.
// Allocators that are opt-in thread safe hold one and lock it unconditionally; the choice
// between a real lock and a no-op is made once, at construction.
type OptionalMutex struct {
	mutex    sync.Mutex
	useMutex bool
}

var _ sync.Locker = &OptionalMutex{}

func NewOptionalMutex(useMutex bool) *OptionalMutex {
	return &OptionalMutex{useMutex: useMutex}
}

func (m *OptionalMutex) Enabled() bool {
	return m.useMutex
}

func (m *OptionalMutex) Lock() {
	if m.useMutex {
		m.mutex.Lock()
	}
}

func (m *OptionalMutex) Unlock() {
	if m.useMutex {
		m.mutex.Unlock()
	}
}
