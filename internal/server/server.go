// Package server exposes a mesh source over HTTP: a standard GraphQL
// endpoint for queries and mutations, and a websocket transport for
// subscriptions.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"
)

// Server serves one executable schema.
type Server struct {
	schema   graphql.Schema
	timeout  time.Duration
	logger   *slog.Logger
	handler  *handler.Handler
	upgrader websocket.Upgrader
}

// New creates a server for the given schema. The timeout bounds each
// non-subscription request end to end; subscriptions stay open until either
// side disconnects.
func New(schema graphql.Schema, timeout time.Duration, logger *slog.Logger) *Server {
	return &Server{
		schema:  schema,
		timeout: timeout,
		logger:  logger,
		handler: handler.New(&handler.Config{
			Schema:   &schema,
			Pretty:   true,
			GraphiQL: true,
		}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{wsSubprotocol},
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Routes builds the HTTP route tree.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.HandleFunc("/graphql", s.serveGraphQL)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}

// serveGraphQL routes websocket upgrades to the subscription transport and
// everything else to the standard GraphQL handler under the request
// timeout.
func (s *Server) serveGraphQL(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.serveWS(w, r)
		return
	}

	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	s.handler.ContextHandler(ctx, w, r)
}
