package toolchain

import (
	"errors"
	"fmt"
	"strings"

	"ledgerdev/internal/types"
)

// ErrBinaryNotFound matches every *BinaryNotFoundError.
var ErrBinaryNotFound = errors.New("binary not found")

// BinaryNotFoundError lists every location tried for a tool.
type BinaryNotFoundError struct {
	Tool      types.Tool
	Binary    string
	Attempted []string
}

func (e *BinaryNotFoundError) Error() string {
	if len(e.Attempted) == 0 {
		return fmt.Sprintf("binary not found: %s (%s)", e.Binary, e.Tool)
	}
	return fmt.Sprintf("binary not found: %s (%s); attempted: %s",
		e.Binary, e.Tool, strings.Join(e.Attempted, ", "))
}

func (e *BinaryNotFoundError) Is(target error) bool { return target == ErrBinaryNotFound }
