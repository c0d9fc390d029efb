package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/datalab/internal/core"
	mw "github.com/JonMunkholm/datalab/internal/web/middleware"
)

// withRequestMetadata adds client IP and User-Agent to ctx for upload logs.
func withRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithClientIP(ctx, mw.ClientIP(r))
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}
