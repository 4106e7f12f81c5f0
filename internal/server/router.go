package server

import (
	"net/http"

	"github.com/dgellow/authgate/internal/response"
	"github.com/go-chi/chi/v5"
)

// NewRouter wires the gateway routes. Only GET is served; every other path
// or method is a 404.
func NewRouter(h *AuthHandlers) http.Handler {
	r := chi.NewRouter()
	r.Use(
		NewRecoverMiddleware("authgate"),
		NewLoggerMiddleware("http"),
		NewNoStoreMiddleware(),
	)

	r.Get("/", h.HomeHandler)
	r.Get("/signin", h.SignInHandler)
	r.Get("/callback", h.CallbackHandler)
	r.Get("/fetch-user-info", h.FetchUserInfoHandler)
	r.Get("/signout", h.SignOutHandler)

	notFound := func(w http.ResponseWriter, _ *http.Request) {
		response.WriteNotFound(w)
	}
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	return r
}
