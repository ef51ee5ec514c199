package ngspice

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/edp1096/spicebridge/pkg/mempool"
	"github.com/edp1096/spicebridge/pkg/simerr"
)

const hostModuleName = "ngspice_host"

// Exports every ngspice wasm build must provide.
const (
	exportMalloc  = "malloc"
	exportFree    = "free"
	exportInit    = "ngSpice_Init"
	exportCommand = "ngSpice_Command"
	exportCirc    = "ngSpice_Circ"
	exportCurPlot = "ngSpice_CurPlot"
	exportAllVecs = "ngSpice_AllVecs"
	exportVecInfo = "ngGet_Vec_Info"
)

// Offsets into struct vector_info on wasm32.
const (
	vecInfoName     = 0
	vecInfoType     = 4
	vecInfoFlags    = 8
	vecInfoRealData = 12
	vecInfoCompData = 16
	vecInfoLength   = 20
)

// wasmLibrary runs ngspice compiled to WebAssembly.
type wasmLibrary struct {
	runtime wazero.Runtime
	module  api.Module
	pool    *mempool.Pool

	callbacks atomic.Pointer[Callbacks]

	// Cached function exports
	fnMalloc  api.Function
	fnFree    api.Function
	fnInit    api.Function
	fnCommand api.Function
	fnCirc    api.Function
	fnCurPlot api.Function
	fnAllVecs api.Function
	fnVecInfo api.Function
}

// loadWasm instantiates a module from source. stdout and stderr receive the
// guest's WASI output.
func loadWasm(ctx context.Context, source []byte, stdout, stderr io.Writer, poolOpts ...mempool.Option) (*wasmLibrary, error) {
	lib := &wasmLibrary{}
	lib.callbacks.Store(&Callbacks{})

	r := wazero.NewRuntime(ctx)
	fail := func(detail string, err error) (*wasmLibrary, error) {
		_ = r.Close(ctx)
		return nil, simerr.LibraryError(detail, err)
	}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		return fail("instantiating wasi", err)
	}

	_, err := r.NewHostModuleBuilder(hostModuleName).
		NewFunctionBuilder().WithFunc(lib.hostSendChar).Export("send_char").
		NewFunctionBuilder().WithFunc(lib.hostSendStat).Export("send_stat").
		NewFunctionBuilder().WithFunc(lib.hostControlledExit).Export("controlled_exit").
		Instantiate(ctx)
	if err != nil {
		return fail("instantiating host module", err)
	}

	compiled, err := r.CompileModule(ctx, source)
	if err != nil {
		return fail("compiling wasm", err)
	}

	cfg := wazero.NewModuleConfig().
		WithName("ngspice").
		WithStdout(stdout).
		WithStderr(stderr).
		WithStartFunctions("_initialize")
	module, err := r.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return fail("instantiating wasm", err)
	}

	lib.runtime = r
	lib.module = module
	lib.fnMalloc = module.ExportedFunction(exportMalloc)
	lib.fnFree = module.ExportedFunction(exportFree)
	lib.fnInit = module.ExportedFunction(exportInit)
	lib.fnCommand = module.ExportedFunction(exportCommand)
	lib.fnCirc = module.ExportedFunction(exportCirc)
	lib.fnCurPlot = module.ExportedFunction(exportCurPlot)
	lib.fnAllVecs = module.ExportedFunction(exportAllVecs)
	lib.fnVecInfo = module.ExportedFunction(exportVecInfo)

	// Validate all exports exist
	var missing []string
	if module.Memory() == nil {
		missing = append(missing, "memory")
	}
	for name, fn := range map[string]api.Function{
		exportMalloc:  lib.fnMalloc,
		exportFree:    lib.fnFree,
		exportInit:    lib.fnInit,
		exportCommand: lib.fnCommand,
		exportCirc:    lib.fnCirc,
		exportCurPlot: lib.fnCurPlot,
		exportAllVecs: lib.fnAllVecs,
		exportVecInfo: lib.fnVecInfo,
	} {
		if fn == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fail(fmt.Sprintf("missing required wasm exports: %v", missing), nil)
	}

	lib.pool = mempool.New(guestAllocator{lib}, poolOpts...)
	return lib, nil
}

// guestAllocator backs a mempool with the guest's malloc and free.
type guestAllocator struct {
	lib *wasmLibrary
}

func (a guestAllocator) Alloc(ctx context.Context, size uint32) (uint32, error) {
	results, err := a.lib.fnMalloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, err
	}
	return uint32(results[0]), nil
}

func (a guestAllocator) Free(ctx context.Context, ptr uint32) error {
	_, err := a.lib.fnFree.Call(ctx, uint64(ptr))
	return err
}

func (l *wasmLibrary) hostSendChar(_ context.Context, m api.Module, ptr uint32) {
	if cb := l.callbacks.Load(); cb.SendChar != nil {
		if s, err := readCString(m.Memory(), ptr); err == nil {
			cb.SendChar(s)
		}
	}
}

func (l *wasmLibrary) hostSendStat(_ context.Context, m api.Module, ptr uint32) {
	if cb := l.callbacks.Load(); cb.SendStat != nil {
		if s, err := readCString(m.Memory(), ptr); err == nil {
			cb.SendStat(s)
		}
	}
}

func (l *wasmLibrary) hostControlledExit(_ context.Context, status, immediate, quit int32) {
	if cb := l.callbacks.Load(); cb.ControlledExit != nil {
		cb.ControlledExit(int(status), immediate != 0, quit != 0)
	}
}

func (l *wasmLibrary) Init(ctx context.Context, cb Callbacks) (int32, error) {
	l.callbacks.Store(&cb)

	results, err := l.fnInit.Call(ctx)
	if err != nil {
		return 0, fmt.Errorf("ngSpice_Init call failed: %w", err)
	}
	return int32(results[0]), nil
}

// stageString copies s and a NUL terminator into a pooled guest buffer.
func (l *wasmLibrary) stageString(ctx context.Context, s string) (*mempool.Buffer, error) {
	buf, err := l.pool.Acquire(ctx, uint32(len(s)+1))
	if err != nil {
		return nil, err
	}
	data := make([]byte, len(s)+1)
	copy(data, s)
	if !l.module.Memory().Write(buf.Ptr, data) {
		_ = l.pool.Release(ctx, buf)
		return nil, fmt.Errorf("memory write failed")
	}
	return buf, nil
}

func (l *wasmLibrary) Command(ctx context.Context, cmd string) (int32, error) {
	buf, err := l.stageString(ctx, cmd)
	if err != nil {
		return 0, err
	}
	defer l.pool.Release(ctx, buf)

	results, err := l.fnCommand.Call(ctx, uint64(buf.Ptr))
	if err != nil {
		return 0, fmt.Errorf("ngSpice_Command call failed: %w", err)
	}
	return int32(results[0]), nil
}

// Circ passes lines as a NULL-terminated char* array.
func (l *wasmLibrary) Circ(ctx context.Context, lines []string) (int32, error) {
	staged := make([]*mempool.Buffer, 0, len(lines)+1)
	defer func() {
		for _, buf := range staged {
			_ = l.pool.Release(ctx, buf)
		}
	}()

	array := make([]byte, 4*(len(lines)+1))
	for i, line := range lines {
		buf, err := l.stageString(ctx, line)
		if err != nil {
			return 0, err
		}
		staged = append(staged, buf)
		binary.LittleEndian.PutUint32(array[4*i:], buf.Ptr)
	}

	arr, err := l.pool.Acquire(ctx, uint32(len(array)))
	if err != nil {
		return 0, err
	}
	staged = append(staged, arr)
	if !l.module.Memory().Write(arr.Ptr, array) {
		return 0, fmt.Errorf("memory write failed")
	}

	results, err := l.fnCirc.Call(ctx, uint64(arr.Ptr))
	if err != nil {
		return 0, fmt.Errorf("ngSpice_Circ call failed: %w", err)
	}
	return int32(results[0]), nil
}

func (l *wasmLibrary) CurPlot(ctx context.Context) (string, error) {
	results, err := l.fnCurPlot.Call(ctx)
	if err != nil {
		return "", fmt.Errorf("ngSpice_CurPlot call failed: %w", err)
	}
	if results[0] == 0 {
		return "", nil
	}
	return readCString(l.module.Memory(), uint32(results[0]))
}

func (l *wasmLibrary) AllVecs(ctx context.Context, plot string) ([]string, error) {
	buf, err := l.stageString(ctx, plot)
	if err != nil {
		return nil, err
	}
	defer l.pool.Release(ctx, buf)

	results, err := l.fnAllVecs.Call(ctx, uint64(buf.Ptr))
	if err != nil {
		return nil, fmt.Errorf("ngSpice_AllVecs call failed: %w", err)
	}

	mem := l.module.Memory()
	var names []string
	for ptr := uint32(results[0]); ptr != 0; ptr += 4 {
		p, ok := mem.ReadUint32Le(ptr)
		if !ok {
			return nil, fmt.Errorf("failed to read vector list")
		}
		if p == 0 {
			break
		}
		name, err := readCString(mem, p)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func (l *wasmLibrary) VecInfo(ctx context.Context, name string) (*Vector, error) {
	buf, err := l.stageString(ctx, name)
	if err != nil {
		return nil, err
	}
	defer l.pool.Release(ctx, buf)

	results, err := l.fnVecInfo.Call(ctx, uint64(buf.Ptr))
	if err != nil {
		return nil, fmt.Errorf("ngGet_Vec_Info call failed: %w", err)
	}
	info := uint32(results[0])
	if info == 0 {
		return nil, nil
	}

	mem := l.module.Memory()
	word := func(off uint32) (uint32, error) {
		v, ok := mem.ReadUint32Le(info + off)
		if !ok {
			return 0, fmt.Errorf("failed to read vector_info at %#x", info+off)
		}
		return v, nil
	}

	namePtr, err := word(vecInfoName)
	if err != nil {
		return nil, err
	}
	typ, err := word(vecInfoType)
	if err != nil {
		return nil, err
	}
	flags, ok := mem.ReadUint16Le(info + vecInfoFlags)
	if !ok {
		return nil, fmt.Errorf("failed to read vector flags")
	}
	realPtr, err := word(vecInfoRealData)
	if err != nil {
		return nil, err
	}
	compPtr, err := word(vecInfoCompData)
	if err != nil {
		return nil, err
	}
	length, err := word(vecInfoLength)
	if err != nil {
		return nil, err
	}

	vec := &Vector{Type: VectorType(int32(typ)), Flags: int(flags)}
	if namePtr != 0 {
		if vec.Name, err = readCString(mem, namePtr); err != nil {
			return nil, err
		}
	}

	switch {
	case realPtr != 0:
		vec.Real = make([]float64, length)
		for i := range vec.Real {
			v, ok := mem.ReadFloat64Le(realPtr + 8*uint32(i))
			if !ok {
				return nil, fmt.Errorf("failed to read %s[%d]", name, i)
			}
			vec.Real[i] = v
		}
	case compPtr != 0:
		vec.Complex = make([]complex128, length)
		for i := range vec.Complex {
			re, ok1 := mem.ReadFloat64Le(compPtr + 16*uint32(i))
			im, ok2 := mem.ReadFloat64Le(compPtr + 16*uint32(i) + 8)
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("failed to read %s[%d]", name, i)
			}
			vec.Complex[i] = complex(re, im)
		}
	default:
		vec.Real = []float64{}
	}
	return vec, nil
}

// PoolStats reports the guest buffer pool. Safe to call concurrently.
func (l *wasmLibrary) PoolStats() mempool.Stats {
	return l.pool.Stats()
}

func (l *wasmLibrary) Close(ctx context.Context) error {
	_ = l.pool.Close(ctx)
	return l.runtime.Close(ctx)
}

// readCString reads a NUL-terminated string from guest memory.
func readCString(mem api.Memory, ptr uint32) (string, error) {
	size := mem.Size()
	if ptr >= size {
		return "", fmt.Errorf("string pointer %#x out of range", ptr)
	}
	data, ok := mem.Read(ptr, size-ptr)
	if !ok {
		return "", fmt.Errorf("failed to read string at %#x", ptr)
	}
	end := bytes.IndexByte(data, 0)
	if end < 0 {
		return "", fmt.Errorf("unterminated string at %#x", ptr)
	}
	// Copy since WASM memory may be invalidated
	return string(data[:end]), nil
}

// LoadBytes loads an ngspice module from memory.
func LoadBytes(ctx context.Context, source []byte, stdout, stderr io.Writer, poolOpts ...mempool.Option) (Library, error) {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	lib, err := loadWasm(ctx, source, stdout, stderr, poolOpts...)
	if err != nil {
		return nil, err
	}
	return lib, nil
}
