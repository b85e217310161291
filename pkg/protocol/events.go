package protocol

// WebSocket event names pushed from the daemon to display-surface clients
// (the desktop pet and anything else subscribed on /ws).
const (
	EventHealth   = "health"
	EventShutdown = "shutdown"

	// Conversation lifecycle.
	EventMessageInbound      = "message.inbound"
	EventMessageOutbound     = "message.outbound"
	EventConversationRead    = "conversation.read"
	EventConversationCleared = "conversation.cleared"
	EventSummaryUpdated      = "summary.updated"

	// Watcher lifecycle.
	EventWatcherStarted = "watcher.started"
	EventWatcherStopped = "watcher.stopped"
	EventWatcherEcho    = "watcher.echo_skipped"
	EventWatermarkMoved = "watcher.watermark"

	// Decision gate.
	EventDetectionScored   = "detection.scored"
	EventApprovalRequested = "approval.requested"
	EventApprovalResolved  = "approval.resolved"
	EventOutreachSent      = "outreach.sent"

	// Owner attention.
	EventTakeoverSuggested = "takeover.suggested"
)

// Detection outcome actions (payload.action on detection.scored events).
const (
	ActionAutoDispatch    = "auto_dispatch"
	ActionPendingApproval = "pending_approval"
	ActionSkipped         = "skipped"
)
