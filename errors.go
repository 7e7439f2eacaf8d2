package x86patch

import "errors"

var (
	// ErrDisplacementOutOfRange is returned when the signed displacement
	// between a branch and its target does not fit the instruction's
	// encoding width. Displacements are never truncated or wrapped.
	ErrDisplacementOutOfRange = errors.New("branch displacement out of range")

	// ErrUnrecognizedOpcode is returned by Decode when the bytes at the
	// address do not form a supported branch instruction.
	ErrUnrecognizedOpcode = errors.New("not a recognized branch instruction")

	// ErrUnreadableMemory is returned when an address range is unmapped or
	// its region does not permit reads.
	ErrUnreadableMemory = errors.New("memory is not readable")

	// ErrInvalidRange is returned for scan bounds outside the process's
	// addressable space.
	ErrInvalidRange = errors.New("invalid address range")

	// ErrUnmappedAddress is returned by Query when no region contains the
	// address.
	ErrUnmappedAddress = errors.New("address is not mapped")

	// ErrProtectionChangeFailed is returned when the OS rejects a
	// protection change. The region's protection is left unchanged.
	ErrProtectionChangeFailed = errors.New("protection change failed")

	// ErrSlotArityMismatch is returned by Bind when the number of values
	// does not match the number of template slots.
	ErrSlotArityMismatch = errors.New("wrong number of bind values")

	// ErrSlotTypeMismatch is returned by Bind when a value's kind does not
	// match the slot it would fill.
	ErrSlotTypeMismatch = errors.New("bind value does not match slot kind")

	// ErrAlreadyBound is returned by Bind on a patch that was already
	// bound. Binding is one-shot.
	ErrAlreadyBound = errors.New("patch is already bound")

	// ErrValueOutOfRange is returned by Bind when a value does not fit the
	// slot's width.
	ErrValueOutOfRange = errors.New("bind value does not fit slot")
)
