package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tiendahogar/agent-core/internal/agent/model"
	"github.com/tiendahogar/agent-core/internal/core/errx"
	logx "github.com/tiendahogar/agent-core/pkg/logger"
)

// RedisProfileStore persists user profiles as JSON documents.
type RedisProfileStore struct {
	rdb redis.Cmdable
}

func NewRedisProfileStore(rdb redis.Cmdable) *RedisProfileStore {
	return &RedisProfileStore{rdb: rdb}
}

func (r *RedisProfileStore) profileKey(userID string) string {
	return fmt.Sprintf("profile:%s", userID)
}

func (r *RedisProfileStore) Get(ctx context.Context, userID string) (*model.UserProfile, error) {
	raw, err := r.rdb.Get(ctx, r.profileKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, errx.ErrNotFound
		}
		return nil, errx.WrapRedis(err)
	}

	var profile model.UserProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	return &profile, nil
}

func (r *RedisProfileStore) Create(ctx context.Context, profile *model.UserProfile) error {
	b, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	// NX keeps creation idempotent under concurrent guest lookups.
	if err := r.rdb.SetNX(ctx, r.profileKey(profile.UserID), b, 0).Err(); err != nil {
		logx.Error().Err(err).Str("user_id", profile.UserID).Msg("failed to create profile in redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisProfileStore) UpdatePreferences(ctx context.Context, userID string, update model.PreferenceUpdate) error {
	profile, err := r.Get(ctx, userID)
	if err != nil {
		return err
	}

	if update.Size != "" {
		profile.Preferences.Size = update.Size
	}
	if update.FavoriteColor != "" {
		profile.Preferences.FavoriteColor = update.FavoriteColor
	}
	if update.Style != "" {
		profile.Preferences.Style = update.Style
	}
	if update.BudgetRange != "" {
		profile.Preferences.BudgetRange = update.BudgetRange
	}
	for _, interest := range update.Interests {
		if !containsString(profile.Interests, interest) {
			profile.Interests = append(profile.Interests, interest)
		}
	}

	b, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := r.rdb.Set(ctx, r.profileKey(userID), b, 0).Err(); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

var _ model.ProfileStore = (*RedisProfileStore)(nil)
