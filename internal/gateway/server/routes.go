package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"adflow/internal/gateway/handler"
	"adflow/internal/gateway/handler/rpc"
	"adflow/internal/gateway/middleware"
)

// Handlers groups everything the router mounts. Assets may be nil when the
// asset backend serves its own URLs.
type Handlers struct {
	Project *rpc.ProjectHandler
	Events  *rpc.EventsHandler
	Debug   *handler.DebugHandler
	Assets  *handler.AssetHandler
}

func NewRouter(h Handlers, allowedOrigins []string, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(log))
	r.Use(middleware.CORS(allowedOrigins))

	// RPC Handlers
	for path, hh := range h.Project.Routes() {
		r.Handle(path, hh)
	}
	r.Handle("/ws/events", h.Events)

	// Plain HTTP
	r.Get("/", h.Debug.HandleRoot)
	r.Get("/healthz", h.Debug.HandleHealth)
	r.Get("/debug/status", h.Debug.HandleProjectStatus)
	r.Get("/debug/artifacts", h.Debug.HandleArtifacts)
	if h.Assets != nil {
		r.Get("/assets/*", h.Assets.ServeHTTP)
	}
	return r
}
