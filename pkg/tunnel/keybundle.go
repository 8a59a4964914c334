package tunnel

import (
	"sync/atomic"

	"github.com/cryprq/cryprq/pkg/crypto"
)

// KeyBundle is the immutable, atomically-published snapshot of a session's
// current epoch and directional keys, per SPEC_FULL.md §9's design note:
// readers on the send/receive paths load a single pointer and see a
// consistent (epoch, outbound, inbound) triple without taking a lock; the
// rekey task builds a new bundle and swaps it in atomically.
type KeyBundle struct {
	Epoch    uint8
	Outbound crypto.DirectionalKeys
	Inbound  crypto.DirectionalKeys
}

// zeroize overwrites both directional keys in place. Called on the bundle a
// rekey just retired, once no reader can still observe it.
func (b *KeyBundle) zeroize() {
	if b == nil {
		return
	}
	b.Outbound.Zeroize()
	b.Inbound.Zeroize()
}

// keyBundleHolder is an atomic-pointer-swap holder for the active KeyBundle.
type keyBundleHolder struct {
	ptr atomic.Pointer[KeyBundle]
}

// Load returns the currently active bundle, or nil if none has been set.
func (h *keyBundleHolder) Load() *KeyBundle {
	return h.ptr.Load()
}

// Store atomically swaps in a new bundle and zeroizes the bundle it replaced.
func (h *keyBundleHolder) Store(b *KeyBundle) {
	old := h.ptr.Swap(b)
	old.zeroize()
}
