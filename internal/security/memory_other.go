//go:build !unix

package security

import (
	"runtime"
	"sync"
)

// SecureBytes is a buffer for key material, zeroed on Destroy.
// Memory locking is not attempted on this platform.
type SecureBytes struct {
	mu   sync.Mutex
	data []byte
}

func NewSecureBytes(size int) *SecureBytes {
	sb := &SecureBytes{data: make([]byte, size)}
	runtime.SetFinalizer(sb, (*SecureBytes).Destroy)
	return sb
}

func FromBytes(data []byte) *SecureBytes {
	sb := NewSecureBytes(len(data))
	copy(sb.data, data)
	Wipe(data)
	return sb
}

func (s *SecureBytes) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

func (s *SecureBytes) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func (s *SecureBytes) Locked() bool { return false }

func (s *SecureBytes) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return
	}
	Wipe(s.data)
	s.data = nil
}

func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
