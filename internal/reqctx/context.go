package reqctx

import "context"

type ctxKey string

const (
	keyRID       ctxKey = "chat_rid"
	keyMessageID ctxKey = "chat_message_id"
)

// WithRID stores the correlation id used in request and bot logs.
func WithRID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, keyRID, rid)
}

// RID returns correlation id if present.
func RID(ctx context.Context) string {
	v, _ := ctx.Value(keyRID).(string)
	return v
}

// WithMessageID stores the id of the message a background job reacts to.
func WithMessageID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyMessageID, id)
}

func MessageID(ctx context.Context) string {
	v, _ := ctx.Value(keyMessageID).(string)
	return v
}
