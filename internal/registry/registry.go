// Package registry derives stable conversation identities from raw sender
// handles. The same contact must always map to the same conversation,
// whatever formatting the source applies to their number, so everything
// downstream (store keys, dedup, the pet surface) agrees on one ID.
package registry

import (
	"strings"
	"sync"
)

// Prefix marks conversation IDs originating from the message watcher.
const Prefix = "imsg"

var senderCleaner = strings.NewReplacer("+", "", " ", "", "-", "")

// CleanSender strips the formatting characters phone handles vary in.
// Email handles pass through mostly untouched.
func CleanSender(sender string) string {
	return senderCleaner.Replace(sender)
}

// ConversationID returns the canonical conversation key for a sender as
// seen by one owner: "imsg_{owner}_{cleaned sender}".
func ConversationID(ownerID, sender string) string {
	return Prefix + "_" + ownerID + "_" + CleanSender(sender)
}

// Registry caches sender-to-conversation mappings for one owner. The
// derivation is deterministic, so the cache only saves rework; it is
// rebuilt empty on every process start. Safe for concurrent use.
type Registry struct {
	ownerID string

	mu       sync.RWMutex
	bySender map[string]string
}

// New returns an empty registry scoped to one owner.
func New(ownerID string) *Registry {
	return &Registry{ownerID: ownerID, bySender: make(map[string]string)}
}

// GetOrCreate returns the conversation ID for a sender, deriving and
// caching it on first sight.
func (r *Registry) GetOrCreate(sender string) string {
	r.mu.RLock()
	id, ok := r.bySender[sender]
	r.mu.RUnlock()
	if ok {
		return id
	}

	id = ConversationID(r.ownerID, sender)
	r.mu.Lock()
	r.bySender[sender] = id
	r.mu.Unlock()
	return id
}

// Lookup returns the cached conversation ID for a sender, if any.
func (r *Registry) Lookup(sender string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bySender[sender]
	return id, ok
}

// Len reports how many senders have been seen this process.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySender)
}
