package middleware

import (
	"bytes"
	"crypto/subtle"
	"strings"

	"github.com/valyala/fasthttp"

	"metrikabridge/internal/config"
)

// AdminAuth validates the static admin token on maintenance endpoints. The
// token is accepted as "Authorization: Bearer <token>" or "X-Admin-Token".
// With no token configured the whole admin surface is disabled.
func AdminAuth(cfg *config.Config) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			if cfg.AdminToken == "" {
				ctx.SetStatusCode(fasthttp.StatusForbidden)
				ctx.SetBodyString("admin endpoints disabled")
				return
			}

			token := string(ctx.Request.Header.Peek("X-Admin-Token"))
			if token == "" {
				auth := ctx.Request.Header.Peek("Authorization")
				const prefix = "Bearer "
				if bytes.HasPrefix(auth, []byte(prefix)) {
					token = strings.TrimSpace(string(auth[len(prefix):]))
				}
			}
			if token == "" {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("missing admin token")
				return
			}

			if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.AdminToken)) != 1 {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("invalid admin token")
				return
			}

			next(ctx)
		}
	}
}
