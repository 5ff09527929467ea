package blockalloc

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// ErrOutOfMemory is returned by error-returning adapters when the underlying allocator produced an empty block
var ErrOutOfMemory error = errors.New("out of memory")

// ErrInvalidOptions is returned by constructors when their options cannot produce a working allocator
var ErrInvalidOptions error = errors.New("invalid allocator options")

// ErrUnownedBlock is the error carried by assertion failures when an allocator receives a block it did not produce
var ErrUnownedBlock error = errors.New("block is not owned by this allocator")
