//go:build !unix

package memory

import "github.com/wippyai/seg16"

// NewMapped falls back to Go heap memory where mmap is not available.
func NewMapped(size uint32) (seg16.Memory, error) {
	return NewHeap(size), nil
}
