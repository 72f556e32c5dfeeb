// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CampaignLocker serialises QueueEntry transitions per campaign (spec §5:
// "the scheduler is single-writer per campaign"). Single-process state is
// authoritative (spec §1 Non-goals: no multi-node coordination) — the
// in-process mutex implementation is the default and sufficient on its
// own; RedisLocker is an optional belt-and-suspenders lease for operators
// who run more than one worker process against the same database anyway.
type CampaignLocker interface {
	Lock(ctx context.Context, campaignID uint64) (unlock func(), err error)
}

// mutexLocker guards each campaign with its own sync.Mutex, created
// lazily and kept for the process lifetime.
type mutexLocker struct {
	mu    sync.Mutex
	locks map[uint64]*sync.Mutex
}

// NewMutexLocker returns the default, single-process CampaignLocker.
func NewMutexLocker() CampaignLocker {
	return &mutexLocker{locks: make(map[uint64]*sync.Mutex)}
}

func (l *mutexLocker) Lock(ctx context.Context, campaignID uint64) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[campaignID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[campaignID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}

// redisLocker takes a short-lived SETNX lease per campaign, for
// deployments that run multiple worker processes against one database
// despite the single-node design (an explicit operator choice, not a
// requirement this package imposes).
type redisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker builds a CampaignLocker backed by Redis. Falls back
// behavior when Redis is unreachable is the caller's responsibility —
// NewMutexLocker remains the safe default.
func NewRedisLocker(client *redis.Client, ttl time.Duration) CampaignLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &redisLocker{client: client, ttl: ttl}
}

func (l *redisLocker) Lock(ctx context.Context, campaignID uint64) (func(), error) {
	key := fmt.Sprintf("voicecampaign:dispatch-lease:%d", campaignID)
	token := uuid.NewString()

	deadline := time.Now().Add(l.ttl)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("scheduler: acquire redis lease for campaign %d: %w", campaignID, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("scheduler: timed out acquiring redis lease for campaign %d", campaignID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}

	unlock := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if v, err := l.client.Get(releaseCtx, key).Result(); err == nil && v == token {
			l.client.Del(releaseCtx, key)
		}
	}
	return unlock, nil
}
