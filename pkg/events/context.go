package events

import "context"

type sinkKey struct{}

// NewContext returns a context carrying sink. Components that are shared
// across regions, such as the HTTP client, emit to the sink of the request
// context so events land on the right region.
func NewContext(ctx context.Context, sink Sink) context.Context {
	return context.WithValue(ctx, sinkKey{}, sink)
}

// FromContext returns the sink stored in ctx, or fallback if there is none.
func FromContext(ctx context.Context, fallback Sink) Sink {
	if s, ok := ctx.Value(sinkKey{}).(Sink); ok && s != nil {
		return s
	}
	if fallback == nil {
		return Discard
	}
	return fallback
}
