package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/chat-relay/internal/auth"
	"github.com/npezzotti/chat-relay/internal/config"
	"github.com/npezzotti/chat-relay/internal/database"
	"github.com/npezzotti/chat-relay/internal/events"
	"github.com/npezzotti/chat-relay/internal/notifications"
	"github.com/npezzotti/chat-relay/internal/rooms"
	"github.com/npezzotti/chat-relay/internal/server"
)

type Broadcaster interface {
	Emit(ev events.BroadcastEvent)
}

type RelayApp struct {
	log               *log.Logger
	db                database.GoChatRepository
	cards             notifications.Log
	srv               *http.Server
	cs                *server.ChatServer
	resolver          *auth.Resolver
	access            *rooms.AccessPolicy
	broadcaster       Broadcaster
	signingKey        []byte
	allowedOrigins    []string
	scopeDMsByCompany bool
}

func NewRelayApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.GoChatRepository, cards notifications.Log, bc Broadcaster, cfg *config.Config) *RelayApp {
	s := &RelayApp{
		log:               logger,
		db:                db,
		cards:             cards,
		cs:                cs,
		resolver:          auth.NewResolver(logger, cfg.SigningKey, db),
		access:            rooms.NewAccessPolicy(db),
		broadcaster:       bc,
		signingKey:        cfg.SigningKey,
		allowedOrigins:    cfg.AllowedOrigins,
		scopeDMsByCompany: cfg.ScopeDMsByCompany,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))

	mux.HandleFunc("POST /api/messages", s.authMiddleware(s.createMessage))
	mux.HandleFunc("PUT /api/messages/{id}", s.authMiddleware(s.updateMessage))
	mux.HandleFunc("DELETE /api/messages/{id}", s.authMiddleware(s.deleteMessage))
	mux.HandleFunc("POST /api/polls/{id}/votes", s.authMiddleware(s.votePoll))

	mux.HandleFunc("POST /api/direct-messages", s.authMiddleware(s.createDirectMessage))
	mux.HandleFunc("DELETE /api/direct-messages/{id}", s.authMiddleware(s.deleteDirectMessage))
	mux.HandleFunc("POST /api/direct-messages/read", s.authMiddleware(s.markDirectMessagesRead))

	mux.HandleFunc("POST /api/channels/{id}/read", s.authMiddleware(s.markChannelRead))
	mux.HandleFunc("GET /api/notifications", s.authMiddleware(s.listNotifications))
	mux.HandleFunc("POST /api/notifications/{id}/read", s.authMiddleware(s.markNotificationRead))
	mux.HandleFunc("POST /api/push/subscribe", s.authMiddleware(s.subscribePush))
	mux.HandleFunc("POST /api/push/unsubscribe", s.authMiddleware(s.unsubscribePush))

	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *RelayApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *RelayApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
