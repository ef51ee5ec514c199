// Package ngspice drives a SPICE solver that exposes the ngspice shared
// library API, and contains every interaction with native code.
//
// # Libraries
//
// The solver is reached through the [Library] interface, which mirrors the
// ngspice shared API: ngSpice_Init, ngSpice_Circ, ngSpice_Command,
// ngSpice_CurPlot, ngSpice_AllVecs and ngGet_Vec_Info. Return codes are kept
// apart from transport failures: a non-nil error means the call itself broke
// (a trap, a bad pointer), a nonzero code means the solver rejected the call.
//
// [WasmLoader] loads an ngspice build compiled to WebAssembly and runs it with
// wazero. The module must import the host module "ngspice_host":
//
//	send_char(msg i32)                          // NUL-terminated line
//	send_stat(msg i32)                          // NUL-terminated status
//	controlled_exit(status, immediate, quit i32)
//
// and export memory, malloc, free and the six API functions listed above.
// Strings and arrays passed to the guest are staged in guest memory through a
// [mempool.Pool].
//
// Other implementations, such as the pure-Go reference solver in package
// refsim, plug in through a [Loader].
//
// # Discovery
//
// WasmLoader looks for the module at its explicit Path, then at $NGSPICE_WASM,
// then in the configured and platform default search paths. When nothing is
// found, loading fails with a NgSpiceNotFound error listing every path tried.
//
// # The Bridge
//
// [Bridge] owns one Library. It serializes nothing on its own; the caller
// (normally package engine) must ensure a single operation at a time.
//
// Every native call runs under the bridge timeout. A call that overruns is
// abandoned, not cancelled: the bridge reports Timeout and keeps reporting it
// for later calls until the stuck call returns. Cancelling the caller's context
// never interrupts a call that has started.
//
// A trap or a ControlledExit from the solver poisons the bridge. Every later
// call fails with LibraryError; build a new Bridge to recover.
package ngspice
