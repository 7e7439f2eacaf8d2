package x86patch

import (
	"errors"
	"fmt"
	"unsafe"
)

// SetProtect changes the protection of the pages covering [addr, addr+size)
// and returns the previous protection. The change is all-or-nothing: on
// ErrProtectionChangeFailed the region keeps its old protection.
func SetProtect(addr, size uintptr, p Prot) (Prot, error) {
	if size == 0 {
		return 0, fmt.Errorf("%w: empty range at %#x", ErrInvalidRange, addr)
	}

	old, err := osSetProtect(addr, size, p)
	if err != nil {
		if errors.Is(err, ErrUnmappedAddress) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v on %#x+%#x: %v", ErrProtectionChangeFailed, p, addr, size, err)
	}
	return old, nil
}

// WithWritableExecute raises [addr, addr+size) to read/write/execute, runs
// body, and restores the previous protection on every exit path, including
// an error or panic from body. A failed restore is reported to the fault
// collaborator and joined into the returned error.
func WithWritableExecute(addr, size uintptr, body func() error) (err error) {
	old, perr := SetProtect(addr, size, ProtRead|ProtWrite|ProtExec)
	if perr != nil {
		return perr
	}

	defer func() {
		if _, rerr := SetProtect(addr, size, old); rerr != nil {
			reportFault(Fault{Op: "restore-protection", Addr: addr, Size: size, Err: rerr})
			err = errors.Join(err, rerr)
		}
	}()

	return body()
}

// PatchBytes overwrites len(data) bytes of live memory at addr inside a
// writable-execute scope, restoring the region's protection afterwards.
// This is the primitive used to install a hook branch over existing code.
func PatchBytes(addr uintptr, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return WithWritableExecute(addr, uintptr(len(data)), func() error {
		copy(unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(data)), data)
		return nil
	})
}
