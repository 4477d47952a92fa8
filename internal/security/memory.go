//go:build unix

// Package security holds the small amount of memory and file hygiene
// autotyped needs around secrets: wiping, mlock'd key buffers and
// owner-only directories.
package security

import (
	"runtime"
	"sync"

	"golang.org/x/sys/unix"
)

// SecureBytes is a buffer for key material. It is mlock'd when the
// process is allowed to, and zeroed on Destroy or finalization.
type SecureBytes struct {
	mu     sync.Mutex
	data   []byte
	locked bool
}

// NewSecureBytes allocates a zeroed buffer of size bytes.
func NewSecureBytes(size int) *SecureBytes {
	sb := &SecureBytes{data: make([]byte, size)}
	if size > 0 && unix.Mlock(sb.data) == nil {
		sb.locked = true
	}
	runtime.SetFinalizer(sb, (*SecureBytes).Destroy)
	return sb
}

// FromBytes copies data into a new SecureBytes and wipes data.
func FromBytes(data []byte) *SecureBytes {
	sb := NewSecureBytes(len(data))
	copy(sb.data, data)
	Wipe(data)
	return sb
}

// Bytes returns the live buffer. Do not retain it past Destroy.
func (s *SecureBytes) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Len returns the buffer length, 0 after Destroy.
func (s *SecureBytes) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Locked reports whether the buffer is pinned in RAM.
func (s *SecureBytes) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Destroy zeroes and unpins the buffer. It is safe to call twice.
func (s *SecureBytes) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return
	}
	Wipe(s.data)
	if s.locked {
		_ = unix.Munlock(s.data)
		s.locked = false
	}
	s.data = nil
}

// Wipe zeroes b.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
