// Package proc evaluates expressions against a paused process.
//
// A Target combines the process memory and registers (TargetProcess) with
// its debug information (SymbolProvider). Memory is read through a
// generation checked page cache and names are resolved through a cached
// SymbolResolver. Expressions are parsed by package evalast and evaluated
// lazily: a Value located in memory is only read when its contents are
// needed.
package proc
