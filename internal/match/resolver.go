package match

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/driftchat/driftchat-server/internal/config"
	"github.com/driftchat/driftchat-server/internal/store"
	"github.com/driftchat/driftchat-server/internal/utils"
)

// Store is the storage surface the resolver needs.
type Store interface {
	store.UserStore
	store.WaitingStore
}

// Strategy attempts one way of finding a partner. Returning (nil, nil) means
// "nothing found, try the next strategy"; an error also degrades to the next.
type Strategy func(ctx context.Context, userID int64, rendezvousID string) (*Partner, error)

// Resolver finds a partner for a searching user. Find never surfaces a hard
// failure: it degrades through an ordered strategy chain
// (pool -> random active user -> synthetic) and always resolves.
type Resolver struct {
	store      Store
	cfg        config.MatchConfig
	log        *zerolog.Logger
	strategies []Strategy
}

// NewResolver builds a resolver with the default strategy chain.
func NewResolver(st Store, cfg config.MatchConfig, logger *zerolog.Logger) *Resolver {
	r := &Resolver{
		store: st,
		cfg:   cfg,
		log:   logger,
	}
	r.strategies = []Strategy{r.fromPool, r.fromRandomActive, r.synthetic}
	return r
}

// Find resolves a partner for userID. The only error it returns is context
// cancellation; every other failure falls through the chain.
func (r *Resolver) Find(ctx context.Context, userID int64) (*Result, error) {
	rendezvousID := utils.NewRendezvousID(userID)

	for _, strategy := range r.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		partner, err := strategy(ctx, userID, rendezvousID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.log.Warn().Err(err).Int64("user_id", userID).Msg("match strategy failed, degrading")
			r.markSelfAvailable(ctx, userID, rendezvousID)
			continue
		}
		if partner == nil {
			r.markSelfAvailable(ctx, userID, rendezvousID)
			continue
		}

		return &Result{
			Partner:          partner,
			SystemMessage:    connectedMessage(partner),
			SelfRendezvousID: rendezvousID,
		}, nil
	}

	// The synthetic strategy never returns nil; only cancellation lands here.
	return nil, ctx.Err()
}

// fromPool picks a uniformly random available entry and claims it.
// Uniform random means no weighting by wait time; long waiters are not
// favoured.
func (r *Resolver) fromPool(ctx context.Context, userID int64, rendezvousID string) (*Partner, error) {
	entries, err := r.store.ListAvailable(ctx, userID, r.cfg.PoolLimit)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	candidate := entries[rand.Intn(len(entries))]

	// Claim-and-check: the conditional update loses cleanly when another
	// searcher got there first, and we fall through to the next strategy.
	claimed, err := r.store.ClaimWaiting(ctx, candidate.UserID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		r.log.Debug().
			Int64("user_id", userID).
			Int64("candidate_id", candidate.UserID).
			Msg("candidate claimed by another searcher")
		return nil, nil
	}

	// Mark self unavailable so nobody else grabs us mid-handshake.
	if err := r.store.UpsertWaiting(ctx, userID, rendezvousID, false); err != nil {
		return nil, err
	}

	profile, err := r.store.GetUserByID(ctx, candidate.UserID)
	if err != nil {
		return nil, err
	}

	return &Partner{
		Kind:         PartnerReal,
		UserID:       profile.ID,
		DisplayName:  profile.DisplayName,
		Country:      profile.Country,
		RendezvousID: candidate.RendezvousID,
	}, nil
}

// fromRandomActive falls back to any online user. The rendezvous id comes
// from the presence row, refreshed by the presence publisher.
func (r *Resolver) fromRandomActive(ctx context.Context, userID int64, _ string) (*Partner, error) {
	user, err := r.store.RandomActiveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	return &Partner{
		Kind:         PartnerReal,
		UserID:       user.ID,
		DisplayName:  user.DisplayName,
		Country:      user.Country,
		RendezvousID: user.RendezvousID,
	}, nil
}

// synthetic generates a partner after an artificial delay so the match does
// not look suspiciously instant.
func (r *Resolver) synthetic(ctx context.Context, _ int64, _ string) (*Partner, error) {
	timer := time.NewTimer(r.cfg.SyntheticDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return newSyntheticPartner(), nil
}

// markSelfAvailable re-enters the pool so other searchers can find us while
// we keep degrading. Failure here is non-fatal.
func (r *Resolver) markSelfAvailable(ctx context.Context, userID int64, rendezvousID string) {
	if err := r.store.UpsertWaiting(ctx, userID, rendezvousID, true); err != nil {
		r.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to re-enter waiting pool")
	}
}

// Cancel removes the user from the waiting pool. Safe when no entry exists.
func (r *Resolver) Cancel(ctx context.Context, userID int64) error {
	return r.store.RemoveWaiting(ctx, userID)
}
