// Package email delivers operator-facing alert mail over SMTP.
package email

import "context"

// Sender delivers operator alerts. Implementations must be safe for
// concurrent use.
type Sender interface {
	SendActionFailureAlert(ctx context.Context, toEmail string, data ActionFailureAlert) error
}

// ActionFailureAlert describes a scheduled action that exhausted its retries.
type ActionFailureAlert struct {
	ConversationID string
	ActionKind     string
	ContactPhone   string
	LastError      string
	FailedAt       string
}
