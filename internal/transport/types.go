package transport

import "context"

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

const ParseModeHTML = "HTML"

// Notifier is the outbound chat surface consumed by the relay: send a text
// message (returning its ref so it can later be edited), edit a message in
// place, and send a sticker. Failures are logged by callers and not retried.
type Notifier interface {
	SendText(ctx context.Context, botToken string, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, botToken string, ref MessageRef, text string, opt *SendOptions) error
	SendSticker(ctx context.Context, botToken string, to ChatTarget, fileID string) (MessageRef, error)
}
