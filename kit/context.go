package kit

import "context"

type contextKey string

const (
	EditorIDKey  contextKey = "kit_editor_id"
	TransportKey contextKey = "kit_transport" // "http", "mcp"
	RequestIDKey contextKey = "kit_request_id"
)

// WithEditorID tags the context with the acting editor. Draft versions
// record it as the snapshot author.
func WithEditorID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, EditorIDKey, id)
}
func GetEditorID(ctx context.Context) string {
	v, _ := ctx.Value(EditorIDKey).(string)
	return v
}

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "http"
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}
