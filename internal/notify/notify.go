package notify

import "context"

// SMSSender delivers a one-time code over SMS. Dispatch is best-effort:
// a failed send never fails the issuing request.
type SMSSender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// EmailSender delivers a one-time code over email.
type EmailSender interface {
	SendCode(ctx context.Context, to, code string) error
}

// NoopSMS is used when the SMS channel is disabled in config.
type NoopSMS struct{}

func (NoopSMS) SendCode(ctx context.Context, phone, code string) error { return nil }

// NoopEmail is used when the email channel is disabled in config.
type NoopEmail struct{}

func (NoopEmail) SendCode(ctx context.Context, to, code string) error { return nil }
