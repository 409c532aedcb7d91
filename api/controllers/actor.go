package controllers

import (
	"net/http"

	"github.com/angelmondragon/library-backend/api/middleware"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

var errActorMissing = pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")

func actorFrom(r *http.Request) (middleware.Actor, error) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return middleware.Actor{}, errActorMissing
	}
	return actor, nil
}

func serviceUnavailable(name string) error {
	return pkgerrors.New(pkgerrors.CodeInternal, name+" service unavailable")
}
