// Runtime patching of 32-bit x86 code in the current process.
//
// The package covers the pieces a hooking tool needs: encoding and decoding
// branch instructions, walking the process memory map, scanning mapped
// regions for byte patterns, changing page protection, and building small
// executable stubs from templates whose operands are filled in at runtime.
//
// Limitations:
//   - Branch encodings are 32-bit x86 only; the host may be 64-bit but
//     branch displacements must still fit a signed 32-bit field
//   - Only Linux and Windows memory maps are supported
//   - Patching live code in a multithreaded process is inherently racy;
//     callers must quiesce threads that may be executing the patched range
package x86patch
