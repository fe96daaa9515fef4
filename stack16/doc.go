// Package stack16 models the frames exchanged when control crosses between
// flat 32-bit code and segmented 16-bit code.
//
// Two frames are laid down on a crossing. Frame32 lives on the flat stack and
// remembers the 16-bit SS:SP that was active when 16-bit code was entered.
// Frame16 lives on the 16-bit stack and points back at the last Frame32. Both
// are packed little-endian and reproduced byte for byte.
//
// Stack tracks the saved 16-bit SS:SP, which always addresses the active
// Frame16. Arguments passed by 16-bit callers sit directly above that frame and
// are walked with a VaList. Push and Pop open or close a gap between the
// frame and the data above it by moving the frame itself:
//
//	before Push(n):   SP -> [Frame16][caller data]
//	after  Push(n):   SP -> [Frame16][n bytes][caller data]
//
// Only the segment limit is enforced. Pushing below offset 0 or popping past
// the end of the stack segment fails with an out_of_bounds error; the logical
// extent of the stack is the caller's business.
package stack16
