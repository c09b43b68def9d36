//go:build android && cgo

package main

import (
	"sync"
	"unsafe"
)

type callbackRef struct {
	ptr     unsafe.Pointer
	refs    int
	retired bool
}

// callbackSlot holds one host pointer (event listener, socket protector).
// Replaced pointers are released through release_object once no caller holds them.
type callbackSlot struct {
	mu  sync.Mutex
	ref *callbackRef
}

// Store replaces the current pointer. A nil ptr clears the slot.
func (s *callbackSlot) Store(ptr unsafe.Pointer) {
	s.mu.Lock()
	old := s.ref
	s.ref = nil
	if ptr != nil {
		s.ref = &callbackRef{ptr: ptr}
	}
	release := old.retire()
	s.mu.Unlock()

	if release != nil {
		releaseObject(release)
	}
}

// With calls fn with the current pointer while holding a reference to it.
// It reports false when the slot is empty.
func (s *callbackSlot) With(fn func(ptr unsafe.Pointer)) bool {
	s.mu.Lock()
	ref := s.ref
	if ref != nil {
		ref.refs++
	}
	s.mu.Unlock()
	if ref == nil {
		return false
	}

	defer s.release(ref)
	fn(ref.ptr)
	return true
}

func (s *callbackSlot) release(ref *callbackRef) {
	s.mu.Lock()
	ref.refs--
	var release unsafe.Pointer
	if ref.refs == 0 && ref.retired {
		release = ref.ptr
	}
	s.mu.Unlock()

	if release != nil {
		releaseObject(release)
	}
}

// retire marks r replaced and returns its pointer when nobody holds it (requires mu).
func (r *callbackRef) retire() unsafe.Pointer {
	if r == nil {
		return nil
	}
	r.retired = true
	if r.refs == 0 {
		return r.ptr
	}
	return nil
}
