package transport

import (
	"context"
	"fmt"

	"plot-go/internal/config"
	"plot-go/internal/plot"
)

// NewTransportFromConfig connects to the sync channel described by cfg.
// The memory transport joins hub, which must be non-nil for that type.
func NewTransportFromConfig(ctx context.Context, cfg config.SyncConfig, redisPrefix, replicaID string, hub *MemoryHub, logger plot.Logger) (plot.Transport, error) {
	room := cfg.Room
	if room == "" {
		room = config.DefaultRoom
	}

	switch cfg.Transport {
	case "memory":
		if hub == nil {
			return nil, fmt.Errorf("memory transport needs a hub")
		}
		return hub.Join(room), nil
	case "websocket":
		if cfg.URL == "" {
			return nil, fmt.Errorf("websocket transport requires url")
		}
		t, err := DialWebSocket(ctx, cfg.URL, room, logger)
		if err != nil {
			return nil, err
		}
		return t, nil
	case "redis":
		if cfg.URL == "" {
			return nil, fmt.Errorf("redis transport requires url")
		}
		t, err := DialRedisTransport(ctx, cfg.URL, redisPrefix, room, replicaID, logger)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown sync transport: %q", cfg.Transport)
	}
}
