package store

import "io"

// Stores is the top-level container for all storage backends. Both fields
// are typically backed by the same engine; Closer shuts that engine down.
type Stores struct {
	Conversations ConversationStore
	Approvals     ApprovalStore

	Closer io.Closer
}

// Close releases the underlying engine, if any.
func (s *Stores) Close() error {
	if s.Closer == nil {
		return nil
	}
	return s.Closer.Close()
}
