package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:    PhaseHeap,
				Kind:     KindAllocation,
				Path:     []string{"atom", "add"},
				Selector: 0x000f,
				Offset:   0x0010,
				HasAddr:  true,
				Detail:   "segment full",
			},
			contains: []string{"[heap]", "allocation", "000f:0010", "atom.add", "segment full"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseStack,
				Kind:  KindOutOfBounds,
			},
			contains: []string{"[stack]", "out_of_bounds"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseMemory,
				Kind:   KindAllocation,
				Detail: "grow failed",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[memory]", "allocation", "grow failed", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_NoAddress(t *testing.T) {
	err := &Error{Phase: PhaseAtom, Kind: KindNotFound}
	if strings.Contains(err.Error(), " at ") {
		t.Errorf("error without address should not print one: %q", err.Error())
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseSelector,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase:   PhaseSelector,
		Kind:    KindInvalidSelector,
		HasAddr: true,
	}

	if !err.Is(&Error{Phase: PhaseSelector, Kind: KindInvalidSelector}) {
		t.Error("Is should match same phase and kind")
	}

	if err.Is(&Error{Phase: PhaseHeap, Kind: KindInvalidSelector}) {
		t.Error("Is should not match different phase")
	}

	if err.Is(&Error{Phase: PhaseSelector, Kind: KindOutOfBounds}) {
		t.Error("Is should not match different kind")
	}

	target := &Error{Phase: PhaseSelector, Kind: KindInvalidSelector}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseHeap, KindAllocation).
		At(0x17, 0x40).
		Path("localheap", "alloc").
		Value(42).
		Cause(cause).
		Detail("need %d bytes, have %d", 42, 8).
		Build()

	if err.Phase != PhaseHeap {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseHeap)
	}
	if err.Kind != KindAllocation {
		t.Errorf("Kind = %v, want %v", err.Kind, KindAllocation)
	}
	if !err.HasAddr || err.Selector != 0x17 || err.Offset != 0x40 {
		t.Errorf("address = %v %04x:%04x", err.HasAddr, err.Selector, err.Offset)
	}
	if len(err.Path) != 2 || err.Path[0] != "localheap" || err.Path[1] != "alloc" {
		t.Errorf("Path = %v, want [localheap alloc]", err.Path)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "need 42 bytes, have 8" {
		t.Errorf("Detail = %v", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("AllocationFailed", func(t *testing.T) {
		err := AllocationFailed(PhaseHeap, 1024)
		if err.Kind != KindAllocation {
			t.Errorf("Kind = %v, want %v", err.Kind, KindAllocation)
		}
		if !strings.Contains(err.Detail, "1024") {
			t.Errorf("Detail = %v, should contain size", err.Detail)
		}
	})

	t.Run("OutOfBounds", func(t *testing.T) {
		err := OutOfBounds(PhaseSelector, 0x0f, 0x200, 0x100)
		if err.Kind != KindOutOfBounds {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOutOfBounds)
		}
		if err.Value != uint32(0x200) {
			t.Errorf("Value = %v, want 0x200", err.Value)
		}
		if !err.HasAddr || err.Selector != 0x0f {
			t.Errorf("address not recorded: %+v", err)
		}
	})

	t.Run("LinearOutOfBounds", func(t *testing.T) {
		err := LinearOutOfBounds(100, 8, 64)
		if err.Phase != PhaseMemory || err.Kind != KindOutOfBounds {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
	})

	t.Run("InvalidSelector", func(t *testing.T) {
		err := InvalidSelector(PhaseSelector, 0x1f)
		if err.Kind != KindInvalidSelector {
			t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidSelector)
		}
		if !strings.Contains(err.Error(), "001f") {
			t.Errorf("message should name selector: %q", err.Error())
		}
	})

	t.Run("InvalidHandle", func(t *testing.T) {
		err := InvalidHandle(PhaseHeap, 0x0f, 0x34)
		if err.Kind != KindInvalidHandle {
			t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidHandle)
		}
	})

	t.Run("Overflow", func(t *testing.T) {
		err := Overflow(PhaseHeap, 70000, "segment")
		if err.Kind != KindOverflow {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOverflow)
		}
		if err.Value != 70000 {
			t.Errorf("Value = %v, want 70000", err.Value)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		err := Unsupported(PhaseMemory, "mmap")
		if err.Kind != KindUnsupported {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnsupported)
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		cause := errors.New("boom")
		err := Wrap(PhaseConfig, KindInvalidData, cause, "load")
		if !errors.Is(err, cause) {
			t.Error("Wrap should keep cause in chain")
		}
	})

	t.Run("ParseFailed", func(t *testing.T) {
		err := ParseFailed("seg16.toml", errors.New("bad key"))
		if err.Phase != PhaseConfig {
			t.Errorf("Phase = %v, want %v", err.Phase, PhaseConfig)
		}
		if !strings.Contains(err.Error(), "seg16.toml") {
			t.Errorf("message should name file: %q", err.Error())
		}
	})
}
