// Package vfs presents the engine with a RAM-backed name/byte store (C3) so
// the hot compile path never touches disk for project input or intermediate
// artifacts. An immutable input view is built once from a Project; writes
// (auxiliary files, the log, the output PDF) land in a separate mutable
// output view that the orchestrator reads back by well-known name after the
// engine returns.
package vfs

import (
	"fmt"
	"sort"
	"sync"
)

// OutputPDFName is the well-known name the engine writes its PDF result to.
const OutputPDFName = "output.pdf"

// OutputLogName is the well-known name the engine writes its compile log to.
const OutputLogName = "output.log"

// VFS is the interface the engine collaborator consumes: open_read,
// create_write, list, remove.
type VFS interface {
	OpenRead(name string) ([]byte, bool)
	CreateWrite(name string, data []byte)
	List() []string
	Remove(name string)
}

// FS is the concrete VFS: an immutable input view plus a mutable output
// view, both heap-backed maps. No file descriptor is ever allocated.
type FS struct {
	input map[string][]byte

	mu     sync.RWMutex
	output map[string][]byte
}

// New builds a FS whose input view is a snapshot of the given files. The
// caller must not mutate the passed map afterward; New does not copy it.
func New(files map[string][]byte) *FS {
	return &FS{
		input:  files,
		output: make(map[string][]byte),
	}
}

// OpenRead returns bytes for name, checking the mutable output view first
// (so a written auxiliary file is visible to subsequent reads within the
// same engine invocation) then falling back to the immutable input view.
func (f *FS) OpenRead(name string) ([]byte, bool) {
	f.mu.RLock()
	if b, ok := f.output[name]; ok {
		f.mu.RUnlock()
		return b, true
	}
	f.mu.RUnlock()

	b, ok := f.input[name]
	return b, ok
}

// CreateWrite stores data under name in the output view, overwriting any
// prior content.
func (f *FS) CreateWrite(name string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.output[name] = data
}

// List returns every name visible across both views, input names shadowed
// by an output write of the same name, sorted for deterministic iteration.
func (f *FS) List() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	seen := make(map[string]struct{}, len(f.input)+len(f.output))
	for name := range f.input {
		seen[name] = struct{}{}
	}
	for name := range f.output {
		seen[name] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Remove deletes name from the output view. It is not possible to remove an
// input-view file: inputs are immutable for the lifetime of one invocation.
func (f *FS) Remove(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.output, name)
}

// OutputPDF returns the engine's PDF output, or an error if it never wrote
// to OutputPDFName.
func (f *FS) OutputPDF() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	b, ok := f.output[OutputPDFName]
	if !ok {
		return nil, fmt.Errorf("vfs: engine produced no %s", OutputPDFName)
	}
	return b, nil
}

// OutputLog returns the engine's log, or empty bytes if none was written.
func (f *FS) OutputLog() []byte {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.output[OutputLogName]
}

var _ VFS = (*FS)(nil)
