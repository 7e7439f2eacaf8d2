//go:build windows

package x86patch

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

// patchAllocator hands out the executable buffers that back bound patches.
// Each buffer gets its own VirtualAlloc reservation, committed execute-read
// and raised to execute-read-write only inside a BeginMutate/EndMutate
// scope.
type patchAllocator struct {
	mu      sync.Mutex
	blocks  map[uintptr]uintptr // buffer base -> allocation size
	mutable bool
}

func (a *patchAllocator) protectAll(flags uint32) error {
	var old uint32
	for base, size := range a.blocks {
		if err := windows.VirtualProtect(base, size, flags, &old); err != nil {
			return fmt.Errorf("VirtualProtect %#x: %w", base, err)
		}
	}
	return nil
}

func (a *patchAllocator) BeginMutate() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.mutable {
		return nil
	}

	err := a.protectAll(windows.PAGE_EXECUTE_READWRITE)
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

	err := a.protectAll(windows.PAGE_EXECUTE_READ)
	if err == nil {
		a.mutable = false
	}
	return err
}

func (a *patchAllocator) Allocate(size int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.mutable {
		panic("Allocate called in immutable state")
	}

	base, err := windows.VirtualAlloc(0, uintptr(size),
		windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_EXECUTE_READWRITE)
	if err != nil {
		return nil, fmt.Errorf("VirtualAlloc: %w", err)
	}

	if a.blocks == nil {
		a.blocks = make(map[uintptr]uintptr)
	}
	a.blocks[base] = uintptr(size)

	return unsafe.Slice((*byte)(unsafe.Pointer(base)), size), nil
}

func (a *patchAllocator) Free(buf []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.mutable {
		panic("Free called in immutable state")
	}

	base := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	if _, ok := a.blocks[base]; !ok {
		panic(fmt.Sprintf("Free of unknown buffer %#x", base))
	}
	delete(a.blocks, base)

	if err := windows.VirtualFree(base, 0, windows.MEM_RELEASE); err != nil {
		panic(fmt.Sprintf("VirtualFree %#x: %v", base, err))
	}
}

var execAllocator = &patchAllocator{mutable: true}
