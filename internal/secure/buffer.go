package secure

import (
	"sync"

	"github.com/awnumar/memguard"
)

// Buffer stores sensitive bytes encrypted at rest in memory. The zero value
// is not usable; construct with NewBuffer.
//
// memguard.Enclave has no Destroy of its own: the encrypted ciphertext is
// safe to leave for the garbage collector, and memguard.Purge() wipes
// everything at process exit.
type Buffer struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	destroyed bool
}

// NewBuffer copies data into a protected memory region. The caller should
// zero its own copy afterwards.
func NewBuffer(data []byte) (*Buffer, error) {
	return &Buffer{enclave: memguard.NewEnclave(data)}, nil
}

// Open decrypts the protected data into a locked buffer. The caller MUST
// call Destroy() on the returned buffer to wipe the plaintext when done.
func (b *Buffer) Open() (*memguard.LockedBuffer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.destroyed {
		return memguard.NewBufferFromBytes([]byte{}), nil
	}
	return b.enclave.Open()
}

// Destroy marks the buffer as unusable. Idempotent; after Destroy, Open
// returns an empty buffer.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return
	}
	b.enclave = nil
	b.destroyed = true
}
