package chat

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/campuslink/campuslink/internal/auth"
)

// EngineConfig collects the tunables of the chat core.
type EngineConfig struct {
	Gateway         GatewayConfig
	AppendTimeout   time.Duration
	MaxContentBytes int
}

// Engine is the wired chat core: membership registry, ingest pipeline,
// fan-out and the websocket gateway, sharing one connection table.
type Engine struct {
	Registry *Registry
	Ingest   *Ingest
	Fanout   *Fanout
	Gateway  *Gateway
}

// NewEngine wires the chat core against the given collaborators.
func NewEngine(cfg EngineConfig, verifier auth.TokenVerifier, rooms RoomDirectory, profiles ProfileDirectory, history History, log zerolog.Logger) *Engine {
	table := newConnTable()
	registry := NewRegistry()
	fanout := NewFanout(registry, table, log)
	ingest := NewIngest(registry, history, fanout, cfg.AppendTimeout, cfg.MaxContentBytes, log)
	gateway := NewGateway(cfg.Gateway, verifier, rooms, profiles, registry, ingest, table, log)

	return &Engine{
		Registry: registry,
		Ingest:   ingest,
		Fanout:   fanout,
		Gateway:  gateway,
	}
}

// Shutdown closes all live connections and waits for them to drain.
func (e *Engine) Shutdown(ctx context.Context) error {
	return e.Gateway.Shutdown(ctx)
}
