package kernel

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/seg16"
	"github.com/wippyai/seg16/atom"
	"github.com/wippyai/seg16/config"
	"github.com/wippyai/seg16/errors"
	"github.com/wippyai/seg16/ldt"
	"github.com/wippyai/seg16/localheap"
	"github.com/wippyai/seg16/memory"
	"github.com/wippyai/seg16/stack16"
)

// Kernel is one legacy execution context: linear memory, its descriptor
// table and heaps, a 16-bit stack with its bridge, and the atom tables.
// All exported methods are serialized by a single lock.
type Kernel struct {
	ldt    *ldt.Table
	heap   *localheap.Heap
	atoms  *atom.Tables
	stack  *stack16.Stack
	bridge *stack16.Bridge
	cfg    *config.Config

	ds       seg16.Selector
	userHeap seg16.Selector
	ss       seg16.Selector
	flat     seg16.Selector

	queue  eventQueue
	obs    []atom.Observer
	obsMu  sync.RWMutex
	mu     sync.Mutex
	closed bool
}

// New builds a kernel from cfg. A nil cfg uses config.Default.
func New(ctx context.Context, cfg *config.Config) (*Kernel, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mem, err := memory.New(ctx, cfg.Memory.Backend, cfg.Memory.InitialPages*memory.PageSize)
	if err != nil {
		return nil, err
	}
	k := &Kernel{
		ldt: ldt.New(mem),
		cfg: cfg,
	}
	k.heap = localheap.New(k.ldt)
	k.atoms = atom.New(k.heap, k.ldt, atom.WithBuckets(cfg.Atoms.Buckets))
	k.atoms.Subscribe(&k.queue)

	if err := k.setup(); err != nil {
		mem.Close()
		return nil, err
	}
	Logger().Info("kernel ready",
		zap.String("backend", cfg.Memory.Backend),
		zap.Uint16("ds", uint16(k.ds)),
		zap.Uint16("user", uint16(k.userHeap)),
		zap.Stringer("sssp", k.stack.SSSP()))
	return k, nil
}

func (k *Kernel) setup() error {
	var err error
	if k.ds, err = k.newHeapSegment(k.cfg.Heap.DataSegmentSize); err != nil {
		return err
	}
	if k.userHeap, err = k.newHeapSegment(k.cfg.Heap.UserHeapSize); err != nil {
		return err
	}
	if k.ss, err = k.ldt.Alloc(k.cfg.Stack.Size); err != nil {
		return err
	}
	if k.flat, err = k.ldt.Alloc(k.cfg.Stack.FlatSize); err != nil {
		return err
	}

	sp := uint16((k.cfg.Stack.Size - stack16.Frame16Size) &^ 1)
	k.stack = stack16.New(k.ldt, seg16.MakeSegPtr(k.ss, sp))
	if err := k.stack.SetCurrent(stack16.Frame16{DS: uint16(k.ds)}); err != nil {
		return err
	}
	k.bridge = stack16.NewBridge(k.ldt, k.stack, k.flat, k.cfg.Stack.FlatSize)
	return nil
}

func (k *Kernel) newHeapSegment(size uint32) (seg16.Selector, error) {
	sel, err := k.ldt.Alloc(size)
	if err != nil {
		return 0, err
	}
	if err := k.heap.Init(sel); err != nil {
		k.ldt.Free(sel)
		return 0, err
	}
	return sel, nil
}

// Close releases linear memory. Further calls fail or return 0.
func (k *Kernel) Close() error {
	k.mu.Lock()
	defer k.unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	return k.ldt.Memory().Close()
}

// Config returns the configuration the kernel was built from.
func (k *Kernel) Config() *config.Config { return k.cfg }

// LDT returns the descriptor table. Callers must not use it concurrently
// with kernel entry points.
func (k *Kernel) LDT() *ldt.Table { return k.ldt }

// Heap returns the local heap manager.
func (k *Kernel) Heap() *localheap.Heap { return k.heap }

// Atoms returns the atom table manager. It is not synchronized, and events
// raised through it reach kernel observers only on the next kernel call.
func (k *Kernel) Atoms() *atom.Tables { return k.atoms }

// Stack returns the 16-bit stack.
func (k *Kernel) Stack() *stack16.Stack { return k.stack }

// Bridge returns the frame bridge.
func (k *Kernel) Bridge() *stack16.Bridge { return k.bridge }

// DataSegment returns the default data segment created at startup.
func (k *Kernel) DataSegment() seg16.Selector { return k.ds }

// UserHeap returns the segment holding the global atom table.
func (k *Kernel) UserHeap() seg16.Selector { return k.userHeap }

// StackSegment returns the 16-bit stack segment.
func (k *Kernel) StackSegment() seg16.Selector { return k.ss }

// NewDataSegment creates another heap segment of size bytes.
func (k *Kernel) NewDataSegment(size uint32) (seg16.Selector, error) {
	k.mu.Lock()
	defer k.unlock()
	if err := k.check(); err != nil {
		return 0, err
	}
	return k.newHeapSegment(size)
}

// CurrentDS returns the data segment of the active 16-bit frame.
func (k *Kernel) CurrentDS() (seg16.Selector, error) {
	k.mu.Lock()
	defer k.unlock()
	if err := k.check(); err != nil {
		return 0, err
	}
	return k.stack.CurrentDS()
}

// SetCurrentDS switches the data segment of the active 16-bit frame, which
// selects the local atom table.
func (k *Kernel) SetCurrentDS(sel seg16.Selector) error {
	k.mu.Lock()
	defer k.unlock()
	if err := k.check(); err != nil {
		return err
	}
	if !k.heap.Has(sel) {
		return errors.New(errors.PhaseHeap, errors.KindNotInitialized).
			At(uint16(sel), 0).
			Detail("segment has no local heap").
			Build()
	}
	f, err := k.stack.Current()
	if err != nil {
		return err
	}
	f.DS = uint16(sel)
	return k.stack.SetCurrent(f)
}

// Entries lists the atoms of sel.
func (k *Kernel) Entries(sel seg16.Selector) ([]atom.Entry, error) {
	k.mu.Lock()
	defer k.unlock()
	if err := k.check(); err != nil {
		return nil, err
	}
	return k.atoms.Entries(sel)
}

// Buckets returns the bucket count of the atom table of sel, 0 if none.
func (k *Kernel) Buckets(sel seg16.Selector) uint16 {
	k.mu.Lock()
	defer k.unlock()
	if k.closed {
		return 0
	}
	return k.atoms.Buckets(sel)
}

// HeapStats reports the local heap usage of sel.
func (k *Kernel) HeapStats(sel seg16.Selector) (localheap.Stats, error) {
	k.mu.Lock()
	defer k.unlock()
	if err := k.check(); err != nil {
		return localheap.Stats{}, err
	}
	return k.heap.Stats(sel)
}

// FreeDataSegment releases a segment created by NewDataSegment together with
// its local heap and atom table. Segments owned by the kernel and the current
// data segment cannot be freed.
func (k *Kernel) FreeDataSegment(sel seg16.Selector) error {
	k.mu.Lock()
	defer k.unlock()
	if err := k.check(); err != nil {
		return err
	}
	cur, err := k.stack.CurrentDS()
	if err != nil {
		return err
	}
	switch sel {
	case k.ds, k.userHeap, k.ss, k.flat, cur:
		return errors.New(errors.PhaseHeap, errors.KindInvalidInput).
			At(uint16(sel), 0).
			Detail("segment is in use").
			Build()
	}
	if !k.heap.Has(sel) {
		return errors.New(errors.PhaseHeap, errors.KindNotInitialized).
			At(uint16(sel), 0).
			Detail("segment has no local heap").
			Build()
	}
	k.heap.Destroy(sel)
	return k.ldt.Free(sel)
}

func (k *Kernel) check() error {
	if k.closed {
		return errors.Closed(errors.PhaseMemory, "kernel")
	}
	return nil
}

// currentDS resolves the local table segment, logging failures.
func (k *Kernel) currentDS() (seg16.Selector, bool) {
	if k.closed {
		return 0, false
	}
	ds, err := k.stack.CurrentDS()
	if err != nil {
		Logger().Debug("current ds unavailable", zap.Error(err))
		return 0, false
	}
	return ds, true
}
