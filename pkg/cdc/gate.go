package cdc

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// AcquiredResources is exclusively held capacity; Release is idempotent
type AcquiredResources interface {
	Release()
}

type ResourceGate interface {
	// TryAcquire never blocks; false means nothing was acquired
	TryAcquire() (AcquiredResources, bool)
}

// SlotGate hands out a fixed number of capture slots
type SlotGate struct {
	sem *semaphore.Weighted
}

func NewSlotGate(slots int64) *SlotGate {
	if slots < 1 {
		slots = 1
	}

	return &SlotGate{sem: semaphore.NewWeighted(slots)}
}

func (g *SlotGate) TryAcquire() (AcquiredResources, bool) {
	if !g.sem.TryAcquire(1) {
		return nil, false
	}

	return &slotHandle{release: func() { g.sem.Release(1) }}, true
}

type slotHandle struct {
	once    sync.Once
	release func()
}

func (h *slotHandle) Release() {
	h.once.Do(h.release)
}
