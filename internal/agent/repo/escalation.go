package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tiendahogar/agent-core/internal/agent/model"
	"github.com/tiendahogar/agent-core/internal/core/errx"
	logx "github.com/tiendahogar/agent-core/pkg/logger"
)

// RedisEscalationStore keeps one JSON record per escalation plus a set of
// ids per status so the supervisor dashboard can list pending work cheaply.
type RedisEscalationStore struct {
	rdb redis.Cmdable
}

func NewRedisEscalationStore(rdb redis.Cmdable) *RedisEscalationStore {
	return &RedisEscalationStore{rdb: rdb}
}

func (r *RedisEscalationStore) recordKey(id string) string {
	return fmt.Sprintf("escalation:%s", id)
}

func (r *RedisEscalationStore) statusKey(status model.EscalationStatus) string {
	return fmt.Sprintf("escalations:status:%s", status)
}

func (r *RedisEscalationStore) Save(ctx context.Context, escalation *model.EscalationRequest) error {
	b, err := json.Marshal(escalation)
	if err != nil {
		return fmt.Errorf("marshal escalation: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, r.recordKey(escalation.ID), b, 0)
	pipe.SAdd(ctx, r.statusKey(escalation.Status), escalation.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		logx.Error().Err(err).Str("escalation_id", escalation.ID).Msg("failed to save escalation to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisEscalationStore) UpdateStatus(ctx context.Context, id string, status model.EscalationStatus, supervisorResponse string) error {
	raw, err := r.rdb.Get(ctx, r.recordKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return errx.ErrNotFound
		}
		return errx.WrapRedis(err)
	}

	var esc model.EscalationRequest
	if err := json.Unmarshal(raw, &esc); err != nil {
		return fmt.Errorf("unmarshal escalation: %w", err)
	}

	previous := esc.Status
	esc.Status = status
	esc.UpdatedAt = time.Now().UTC()
	if supervisorResponse != "" {
		esc.SupervisorResponse = supervisorResponse
	}

	b, err := json.Marshal(&esc)
	if err != nil {
		return fmt.Errorf("marshal escalation: %w", err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, r.recordKey(id), b, 0)
	pipe.SRem(ctx, r.statusKey(previous), id)
	pipe.SAdd(ctx, r.statusKey(status), id)
	if _, err := pipe.Exec(ctx); err != nil {
		logx.Error().Err(err).Str("escalation_id", id).Msg("failed to update escalation status in redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisEscalationStore) ListByStatus(ctx context.Context, status model.EscalationStatus, limit int) ([]*model.EscalationRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	ids, err := r.rdb.SMembers(ctx, r.statusKey(status)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, errx.WrapRedis(err)
	}

	out := make([]*model.EscalationRequest, 0, len(ids))
	for _, id := range ids {
		if len(out) >= limit {
			break
		}
		raw, err := r.rdb.Get(ctx, r.recordKey(id)).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, errx.WrapRedis(err)
		}
		var esc model.EscalationRequest
		if err := json.Unmarshal(raw, &esc); err != nil {
			logx.Error().Err(err).Str("escalation_id", id).Msg("skipping unreadable escalation record")
			continue
		}
		out = append(out, &esc)
	}
	return out, nil
}

var _ model.EscalationStore = (*RedisEscalationStore)(nil)
