//go:build linux

package x86patch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pboyd/malloc"
	"golang.org/x/sys/unix"
)

// mprotect values for the patch buffer arena.
const (
	arenaProtRX  = unix.PROT_READ | unix.PROT_EXEC
	arenaProtRWX = unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC
)

// patchAllocator hands out the executable buffers that back bound patches.
// The whole arena stays read-execute except inside a BeginMutate/EndMutate
// scope, so patch bytes are only writable while they are being filled in.
type patchAllocator struct {
	*malloc.Arena
	mprotect func(int) error
	mu       sync.Mutex
	initOnce sync.Once
	mutable  bool
}

func (a *patchAllocator) init(startSize int) error {
	var err error
	a.initOnce.Do(func() {
		// MmapProt ORs in PROT_READ|PROT_WRITE, so a fresh arena starts
		// writable.
		be := malloc.MmapBackend(malloc.MmapProt(arenaProtRX))
		if protBE, ok := be.(malloc.ProtectedArenaBackend); ok {
			a.mprotect = protBE.Protect
		} else {
			a.mprotect = func(int) error {
				return nil
			}
		}

		a.Arena = malloc.NewArena(uint64(startSize), malloc.Backend(be))
		if a.Arena == nil {
			err = errors.New("unable to initialize patch arena")
			return
		}
		a.mutable = true
	})
	return err
}

func (a *patchAllocator) BeginMutate() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// BeginMutate can be called before the initial allocation.

	if a.mprotect == nil || a.mutable {
		return nil
	}

	err := a.mprotect(arenaProtRWX)
	if err == nil {
		a.mutable = true
	}
	return err
}

func (a *patchAllocator) EndMutate() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.mutable {
		return nil
	}

	err := a.mprotect(arenaProtRX)
	if err == nil {
		a.mutable = false
	}
	return err
}

func (a *patchAllocator) Allocate(size int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.init(size)
	if err != nil {
		return nil, fmt.Errorf("error initializing patch arena: %w", err)
	}

	if !a.mutable {
		panic("Allocate called in immutable state")
	}

	return malloc.MallocSlice[byte](a.Arena, size)
}

func (a *patchAllocator) Free(buf []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.mutable {
		panic("Free called in immutable state")
	}

	malloc.FreeSlice(a.Arena, buf)
}

var execAllocator = &patchAllocator{}
