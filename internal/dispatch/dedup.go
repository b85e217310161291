package dispatch

import "sync"

// fingerprintLen is how many leading runes of a message identify it for
// echo suppression. Long messages that share a 100-rune prefix collide;
// acceptable, since colliding with our own recent reply is the point.
const fingerprintLen = 100

// DedupSet remembers the fingerprints of messages the attendant has sent,
// so they can be recognized when they echo back through the message log.
// Entries are kept for the life of the process: suppression must hold no
// matter how long the echo takes to appear.
type DedupSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDedupSet returns an empty set.
func NewDedupSet() *DedupSet {
	return &DedupSet{seen: make(map[string]struct{})}
}

// Fingerprint reduces a message to its dedup key.
func Fingerprint(text string) string {
	runes := []rune(text)
	if len(runes) > fingerprintLen {
		runes = runes[:fingerprintLen]
	}
	return string(runes)
}

// Remember records a sent message.
func (d *DedupSet) Remember(text string) {
	d.mu.Lock()
	d.seen[Fingerprint(text)] = struct{}{}
	d.mu.Unlock()
}

// Seen reports whether a message matches something the attendant sent.
func (d *DedupSet) Seen(text string) bool {
	d.mu.Lock()
	_, ok := d.seen[Fingerprint(text)]
	d.mu.Unlock()
	return ok
}

// Len returns the number of remembered fingerprints.
func (d *DedupSet) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
