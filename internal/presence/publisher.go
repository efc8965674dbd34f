package presence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftchat/driftchat-server/internal/config"
	"github.com/driftchat/driftchat-server/internal/store"
)

// Publisher keeps one user's liveness visible to the rest of the system.
// While running it refreshes the user row (online flag, rendezvous id,
// last-seen timestamp) on every heartbeat; on stop it marks the user offline.
// A heartbeat that fails is retried on the next tick, not immediately.
type Publisher struct {
	userID int64
	users  store.UserStore
	cfg    config.MatchConfig
	log    *zerolog.Logger

	mu         sync.Mutex
	rendezvous string

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewPublisher builds a publisher for one user. Call Run to start it.
func NewPublisher(userID int64, users store.UserStore, cfg config.MatchConfig, logger *zerolog.Logger) *Publisher {
	return &Publisher{
		userID: userID,
		users:  users,
		cfg:    cfg,
		log:    logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// SetRendezvous updates the rendezvous id announced on the next heartbeat
// and pushes one immediately so the change is visible right away.
func (p *Publisher) SetRendezvous(rendezvousID string) {
	p.mu.Lock()
	p.rendezvous = rendezvousID
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.beat(ctx)
}

// Run publishes heartbeats until Stop is called or ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	defer close(p.done)

	p.beat(ctx)

	ticker := time.NewTicker(p.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.goOffline()
			return
		case <-p.stop:
			p.goOffline()
			return
		case <-ticker.C:
			p.beat(ctx)
		}
	}
}

// Stop marks the user offline and ends the heartbeat loop. Idempotent.
func (p *Publisher) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
	<-p.done
}

func (p *Publisher) beat(ctx context.Context) {
	p.mu.Lock()
	rendezvous := p.rendezvous
	p.mu.Unlock()

	if err := p.users.UpdatePresence(ctx, p.userID, true, rendezvous); err != nil {
		p.log.Warn().Err(err).Int64("user_id", p.userID).Msg("presence heartbeat failed")
	}
}

func (p *Publisher) goOffline() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.users.UpdatePresence(ctx, p.userID, false, ""); err != nil {
		p.log.Warn().Err(err).Int64("user_id", p.userID).Msg("failed to mark user offline")
	}
}

// Reaper prunes waiting-pool entries whose owners stopped heartbeating.
// One reaper runs per server, not per session.
type Reaper struct {
	pool store.WaitingStore
	cfg  config.MatchConfig
	log  *zerolog.Logger
}

// NewReaper builds the pool reaper.
func NewReaper(pool store.WaitingStore, cfg config.MatchConfig, logger *zerolog.Logger) *Reaper {
	return &Reaper{pool: pool, cfg: cfg, log: logger}
}

// Run prunes stale entries every heartbeat interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned, err := r.pool.PruneWaiting(ctx, r.cfg.EntryTTL)
			if err != nil {
				r.log.Warn().Err(err).Msg("failed to prune waiting pool")
				continue
			}
			if pruned > 0 {
				r.log.Debug().Int64("pruned", pruned).Msg("removed stale waiting entries")
			}
		}
	}
}
