package webhookauth

import "context"

type verificationContextKey string

const verificationKey verificationContextKey = "webhook_verification"

// Verification describes how a webhook request passed authentication.
type Verification struct {
	Gateway string
	// Signed is false when the request was let through without a configured
	// secret.
	Signed bool
}

func WithVerification(ctx context.Context, v Verification) context.Context {
	return context.WithValue(ctx, verificationKey, v)
}

func VerificationFromContext(ctx context.Context) (Verification, bool) {
	v, ok := ctx.Value(verificationKey).(Verification)
	return v, ok
}
