package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"plot-go/internal/config"
	"plot-go/internal/plot"
	"plot-go/internal/relay"
	"plot-go/internal/replica"
	"plot-go/internal/transport"
)

// SyncResult reports what a sync session exchanged.
type SyncResult struct {
	Received int
	Rejected int
}

// Sync joins the configured room and exchanges updates until ctx is done or
// the transport drops. The primary key lease is held for the whole session,
// so migrations, rollbacks and imports in this process fail with
// plot.ErrStoreBusy meanwhile. With seed set, a replica that has never synced
// starts from the stored document instead of empty.
func (a *PlotApp) Sync(ctx context.Context, seed bool) (result SyncResult, err error) {
	if err := a.persistOperation(a.cfg.Sync.Room); err != nil {
		return SyncResult{}, err
	}
	defer a.track(&err)

	release, err := a.leases.Acquire(a.primaryKey(), "sync")
	if err != nil {
		return SyncResult{}, err
	}
	defer release()

	r, found, err := a.loadReplica()
	if err != nil {
		return SyncResult{}, err
	}
	var mu sync.Mutex
	persist := func() {
		mu.Lock()
		defer mu.Unlock()
		if err := a.persistReplica(r); err != nil {
			a.logger.Error("persisting replica", "error", err)
		}
	}

	switch {
	case found:
		if seed {
			a.logger.Info("replica already has state; ignoring seed")
		}
	case seed:
		doc, _, docFound, err := a.Document()
		if err != nil {
			return SyncResult{}, err
		}
		if !docFound {
			return SyncResult{}, fmt.Errorf("%w: nothing stored under %s to seed from", plot.ErrNotFound, a.primaryKey())
		}
		replica.Populate(r, doc)
		persist()
		a.logger.Info("replica seeded", "areas", len(doc.Layout.Areas), "seasons", len(doc.Seasons))
	}

	t, err := transport.NewTransportFromConfig(ctx, a.cfg.Sync, a.redisPrefix(), a.cfg.ReplicaID, memoryHub, a.logger)
	if err != nil {
		return SyncResult{}, fmt.Errorf("connecting sync transport: %w", err)
	}

	cancel := r.OnUpdate(func([]byte, bool) { persist() })
	defer cancel()

	session := replica.NewSession(r, t, a.logger)
	if err := session.Start(); err != nil {
		t.Close()
		return SyncResult{}, err
	}
	a.logger.Info("sync started", "transport", a.cfg.Sync.Transport, "room", a.cfg.Sync.Room, "replica", a.cfg.ReplicaID)

	var dropped <-chan struct{}
	if ws, ok := t.(*transport.WebSocketTransport); ok {
		dropped = ws.Done()
	}
	select {
	case <-ctx.Done():
	case <-dropped:
		err = fmt.Errorf("relay connection closed")
	}

	if cerr := session.Close(); cerr != nil {
		a.logger.Warn("closing sync transport", "error", cerr)
	}
	persist()

	result.Received, result.Rejected = session.Stats()
	a.logger.Info("sync stopped", "received", result.Received, "rejected", result.Rejected)
	return result, err
}

func (a *PlotApp) redisPrefix() string {
	if a.cfg.Store.RedisPrefix != "" {
		return a.cfg.Store.RedisPrefix
	}
	return config.DefaultRedisPrefix
}

// Relay serves the websocket relay on the configured address until ctx is
// done.
func (a *PlotApp) Relay(ctx context.Context) error {
	addr := a.cfg.Relay.Addr
	if addr == "" {
		addr = config.DefaultRelayAddr
	}
	srv := relay.NewServer(a.logger)

	errc := make(chan error, 1)
	go func() { errc <- srv.Start(addr) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down relay: %w", err)
	}
	return <-errc
}
