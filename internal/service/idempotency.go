package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"pos-ledger/internal/util"

	"go.uber.org/zap"
)

// ErrRequestInFlight is returned while another request with the same idempotency key runs
var ErrRequestInFlight = errors.New("request with this idempotency key is in progress")

const idempotencyLockTTL = 30 * time.Second

type idempotency struct {
	store  IdempotencyStore
	ttl    time.Duration
	logger *zap.Logger
}

// runIdempotent returns the stored result for key or runs fn and stores its result.
// An unreachable idempotency store degrades to running fn without replay protection.
func runIdempotent[T any](ctx context.Context, idem idempotency, scope, key string, fn func() (*T, error)) (*T, error) {
	if idem.store == nil || key == "" {
		return fn()
	}

	cached, err := replayStored[T](ctx, idem, scope, key)
	if err != nil {
		idem.logger.Warn("Idempotency lookup failed, running without replay protection",
			zap.String("scope", scope), zap.Error(err))
		return fn()
	}
	if cached != nil {
		return cached, nil
	}

	lockKey := scope + ":" + key
	locked, err := idem.store.AcquireLock(ctx, lockKey, idempotencyLockTTL)
	if err != nil {
		idem.logger.Warn("Idempotency lock failed", zap.String("scope", scope), zap.Error(err))
	} else if !locked {
		return nil, ErrRequestInFlight
	} else {
		defer func() {
			if err := idem.store.ReleaseLock(context.WithoutCancel(ctx), lockKey); err != nil {
				idem.logger.Warn("Failed to release idempotency lock", zap.Error(err))
			}
		}()

		// the previous holder may have stored its result between lookup and lock
		if cached, err := replayStored[T](ctx, idem, scope, key); err == nil && cached != nil {
			return cached, nil
		}
	}

	result, err := fn()
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(result); err != nil {
		idem.logger.Warn("Failed to encode result for replay", zap.Error(err))
	} else if err := idem.store.Remember(ctx, scope, key, raw, idem.ttl); err != nil {
		idem.logger.Warn("Failed to store idempotency key", zap.String("scope", scope), zap.Error(err))
	}
	return result, nil
}

// replayStored decodes a stored result for key. A nil result means nothing usable was stored.
func replayStored[T any](ctx context.Context, idem idempotency, scope, key string) (*T, error) {
	raw, found, err := idem.store.Recall(ctx, scope, key)
	if err != nil || !found {
		return nil, err
	}
	var cached T
	if err := json.Unmarshal(raw, &cached); err != nil {
		idem.logger.Warn("Discarding unreadable stored result", zap.String("scope", scope))
		return nil, nil
	}
	util.IdempotentReplaysTotal.Inc()
	idem.logger.Info("Replaying stored result",
		zap.String("scope", scope), zap.String("idempotency_key", key))
	return &cached, nil
}
