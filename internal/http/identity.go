package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"roiboard/internal/auth"
)

var errNoIdentity = errors.New("missing actor identity")

// Identity headers set by the gateway in front of this service. The service
// trusts them as-is; authenticating the caller is the gateway's job.
const (
	headerActorID   = "X-Actor-Id"
	headerActorRole = "X-Actor-Role"
	headerActorName = "X-Actor-Name"
)

// IdentityProvider yields the acting identity for a request, or an error
// when the request carries none.
type IdentityProvider interface {
	Identify(r *http.Request) (auth.Actor, error)
}

// HeaderIdentityProvider reads the actor from trusted gateway headers.
type HeaderIdentityProvider struct{}

func (HeaderIdentityProvider) Identify(r *http.Request) (auth.Actor, error) {
	id := strings.TrimSpace(r.Header.Get(headerActorID))
	if id == "" {
		return auth.Actor{}, errNoIdentity
	}
	role, err := auth.ParseRole(r.Header.Get(headerActorRole))
	if err != nil {
		return auth.Actor{}, err
	}
	return auth.Actor{
		ID:   id,
		Name: strings.TrimSpace(r.Header.Get(headerActorName)),
		Role: role,
	}, nil
}

type actorContextKey struct{}

// withActor stores the actor in the request context.
func withActor(ctx context.Context, a auth.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, a)
}

// actorFrom retrieves the actor placed by the identity middleware.
func actorFrom(ctx context.Context) (auth.Actor, bool) {
	a, ok := ctx.Value(actorContextKey{}).(auth.Actor)
	return a, ok
}
