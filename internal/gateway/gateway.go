// ABOUTME: Gateway orchestrator that wires the store, dispatcher, and HTTP server
// ABOUTME: Manages route registration, startup seeding, and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/lumenpress/chat-orchestrator/internal/config"
	"github.com/lumenpress/chat-orchestrator/internal/conversation"
	"github.com/lumenpress/chat-orchestrator/internal/dispatch"
	"github.com/lumenpress/chat-orchestrator/internal/provider"
	"github.com/lumenpress/chat-orchestrator/internal/store"
)

// Dispatcher is what the transport bindings need from the dispatch layer.
// This allows injecting deterministic implementations for testing.
type Dispatcher interface {
	Dispatch(ctx context.Context, conv *store.Conversation, agents []*store.Agent, configs map[string]provider.Config) <-chan *dispatch.Event
}

// Gateway owns the HTTP server and the two transport bindings: the scoped
// SSE endpoint and the broadcast websocket room.
type Gateway struct {
	config       *config.Config
	store        store.Store
	conversation *conversation.Service
	broadcaster  *conversation.Broadcaster
	dispatcher   Dispatcher
	httpServer   *http.Server
	logger       *slog.Logger
}

// initStore creates and returns a store based on config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("ORCHESTRATOR_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	// The constructors tag their own component; hand them the base logger
	convService := conversation.NewService(s, logger)
	broadcaster := conversation.NewBroadcaster(logger)

	providerClient := provider.NewClient(nil, logger)
	dispatcher := dispatch.New(providerClient, convService, s, dispatch.Options{
		HistoryWindow:   cfg.Chat.HistoryWindow,
		ProviderTimeout: cfg.Chat.ProviderTimeout,
	}, logger)

	gw := &Gateway{
		config:       cfg,
		store:        s,
		conversation: convService,
		broadcaster:  broadcaster,
		dispatcher:   dispatcher,
		logger:       logger.With("component", "gateway"),
	}

	if err := gw.applySeed(context.Background(), cfg.Seed); err != nil {
		_ = s.Close()
		return nil, err
	}

	mux := http.NewServeMux()
	gw.registerRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// registerRoutes registers all HTTP routes on the mux.
func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", g.handleHealthz)
	mux.HandleFunc("/api/agents", g.handleListAgents)
	mux.HandleFunc("/api/conversations/", g.handleConversationRoutes)
	mux.HandleFunc("/api/rooms/", g.handleRoomRoutes)
}

// applySeed creates the configured agents and the shared broadcast room so
// the room exists before anyone joins it. Seeding is idempotent across
// restarts: rows that already exist are left alone.
func (g *Gateway) applySeed(ctx context.Context, seed config.SeedConfig) error {
	for _, sa := range seed.Agents {
		agent := &store.Agent{
			ID:           sa.ID,
			DisplayName:  sa.Name,
			SystemPrompt: sa.SystemPrompt,
			ProviderKind: sa.Provider,
			AvatarURL:    sa.AvatarURL,
			CreatedAt:    time.Now(),
		}
		err := g.store.CreateAgent(ctx, agent)
		if errors.Is(err, store.ErrDuplicateAgent) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seeding agent %s: %w", sa.ID, err)
		}
		g.logger.Info("seeded agent", "agent_id", sa.ID, "name", sa.Name)
	}

	if seed.Room == nil {
		return nil
	}

	agentIDs := make([]string, 0, len(seed.Agents))
	for _, sa := range seed.Agents {
		agentIDs = append(agentIDs, sa.ID)
	}

	room := &store.Conversation{
		ID:        seed.Room.ID,
		Kind:      store.KindBroadcastRoom,
		Title:     seed.Room.Title,
		AgentIDs:  agentIDs,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	err := g.store.CreateConversation(ctx, room)
	if errors.Is(err, store.ErrDuplicateConversation) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("seeding broadcast room %s: %w", seed.Room.ID, err)
	}
	g.logger.Info("seeded broadcast room", "conversation_id", seed.Room.ID)
	return nil
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	g.broadcaster.Close()

	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealthz returns 200 OK if the server is alive.
func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
