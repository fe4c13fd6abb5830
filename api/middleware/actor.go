package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/alumnet-backend/pkg/logger"
)

// ActorHeader carries the caller identity set by the upstream gateway. It is
// trusted as-is and used for attribution only.
const ActorHeader = "X-Actor-Id"

const maxActorLen = 128

type actorKey struct{}

// ActorIDFromContext returns the identity injected by Actor, or "".
func ActorIDFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// Actor lifts ActorHeader into the request context and the log fields.
func Actor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := strings.TrimSpace(r.Header.Get(ActorHeader))
			if actor == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(actor) > maxActorLen {
				actor = actor[:maxActorLen]
			}
			ctx := WithActorID(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithActorID(ctx, actor)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
