package core

import "context"

type contextKey string

const (
	ctxKeyTerminal contextKey = "sync_terminal"
	ctxKeyClientIP contextKey = "sync_client_ip"
)

// ContextWithTerminal records which terminal submitted the batch.
func ContextWithTerminal(ctx context.Context, terminal string) context.Context {
	return context.WithValue(ctx, ctxKeyTerminal, terminal)
}

// ContextWithClientIP records the submitting client's address.
func ContextWithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ctxKeyClientIP, ip)
}

// TerminalFromContext returns the terminal recorded by ContextWithTerminal.
func TerminalFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTerminal).(string); ok {
		return v
	}
	return ""
}

// ClientIPFromContext returns the address recorded by ContextWithClientIP.
func ClientIPFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyClientIP).(string); ok {
		return v
	}
	return ""
}
