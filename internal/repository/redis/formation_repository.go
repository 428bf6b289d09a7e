package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pitchside/tacticsroom/internal/models"
	"github.com/pitchside/tacticsroom/pkg/logger"
)

var (
	ErrNotFound        = errors.New("formation not found")
	ErrLockNotAcquired = errors.New("formation is locked by another writer")
	ErrUnsupportedEdit = errors.New("unsupported edit type")
)

const (
	lockTTL          = 5 * time.Second
	lockAttempts     = 3
	lockRetryBackoff = 50 * time.Millisecond
)

type FormationRepository interface {
	Load(ctx context.Context, fID string) (*models.Formation, error)
	Save(ctx context.Context, f *models.Formation) error
	Delete(ctx context.Context, fID string) error

	// ApplyEdit mutates the persisted document according to the update and
	// returns the new version. Serialized per formation via a lock key.
	ApplyEdit(ctx context.Context, fID string, u *models.RealTimeUpdate) (int64, error)

	AppendHistory(ctx context.Context, fID string, entry models.FormationHistoryEntry) error
	History(ctx context.Context, fID string, limit int64) ([]models.FormationHistoryEntry, error)
}

type redisFormationRepository struct {
	cli          *redis.Client
	l            logger.Logger
	historyLimit int64
}

func NewRedisFormationRepository(cli *redis.Client, historyLimit int, l logger.Logger) FormationRepository {
	if historyLimit <= 0 {
		historyLimit = 200
	}
	return &redisFormationRepository{
		cli:          cli,
		l:            l,
		historyLimit: int64(historyLimit),
	}
}

func (r *redisFormationRepository) Load(ctx context.Context, fID string) (*models.Formation, error) {
	raw, err := r.cli.Get(ctx, r.formationKey(fID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		r.l.Errorf(ctx, "redisFormationRepository.Load: %v", err)
		return nil, err
	}

	var f models.Formation
	if err := json.Unmarshal(raw, &f); err != nil {
		r.l.Errorf(ctx, "redisFormationRepository.Load: corrupt formation %s: %v", fID, err)
		return nil, fmt.Errorf("unmarshal formation %s: %w", fID, err)
	}

	return &f, nil
}

func (r *redisFormationRepository) Save(ctx context.Context, f *models.Formation) error {
	now := time.Now()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	if f.Version == 0 {
		f.Version = 1
	}
	f.UpdatedAt = now

	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal formation %s: %w", f.ID, err)
	}

	if err := r.cli.Set(ctx, r.formationKey(f.ID), raw, 0).Err(); err != nil {
		r.l.Errorf(ctx, "redisFormationRepository.Save: %v", err)
		return err
	}

	return nil
}

func (r *redisFormationRepository) Delete(ctx context.Context, fID string) error {
	pipe := r.cli.Pipeline()
	pipe.Del(ctx, r.formationKey(fID))
	pipe.Del(ctx, r.historyKey(fID))

	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisFormationRepository.Delete: %v", err)
		return err
	}

	return nil
}

func (r *redisFormationRepository) ApplyEdit(ctx context.Context, fID string, u *models.RealTimeUpdate) (int64, error) {
	token, err := r.acquireLock(ctx, fID)
	if err != nil {
		return 0, err
	}
	defer r.releaseLock(ctx, fID, token)

	f, err := r.Load(ctx, fID)
	if err != nil {
		return 0, err
	}

	if err := applyToDocument(f, u); err != nil {
		return 0, err
	}

	f.Version++
	f.UpdatedAt = time.Now()

	raw, err := json.Marshal(f)
	if err != nil {
		return 0, fmt.Errorf("marshal formation %s: %w", fID, err)
	}

	if err := r.cli.Set(ctx, r.formationKey(fID), raw, 0).Err(); err != nil {
		r.l.Errorf(ctx, "redisFormationRepository.ApplyEdit: %v", err)
		return 0, err
	}

	return f.Version, nil
}

func applyToDocument(f *models.Formation, u *models.RealTimeUpdate) error {
	switch u.Type {
	case models.UpdateTypePlayerMove:
		var move models.PlayerMoveData
		if err := json.Unmarshal(u.Data, &move); err != nil {
			return fmt.Errorf("decode player_move: %w", err)
		}
		for i := range f.Players {
			if f.Players[i].PlayerID == move.PlayerID {
				f.Players[i].X = move.X
				f.Players[i].Y = move.Y
				return nil
			}
		}
		return fmt.Errorf("player %s not in formation %s", move.PlayerID, f.ID)

	case models.UpdateTypeFormationChange:
		var change models.FormationChangeData
		if err := json.Unmarshal(u.Data, &change); err != nil {
			return fmt.Errorf("decode formation_change: %w", err)
		}
		if change.Name != nil {
			f.Name = *change.Name
		}
		if change.Layout != nil {
			f.Layout = *change.Layout
		}
		if change.Players != nil {
			f.Players = change.Players
		}
		return nil

	case models.UpdateTypeTacticalUpdate:
		var tactical models.TacticalUpdateData
		if err := json.Unmarshal(u.Data, &tactical); err != nil {
			return fmt.Errorf("decode tactical_update: %w", err)
		}
		if f.Instructions == nil {
			f.Instructions = make(map[string]string, len(tactical.Instructions))
		}
		for k, v := range tactical.Instructions {
			f.Instructions[k] = v
		}
		return nil
	}

	return fmt.Errorf("%w: %s", ErrUnsupportedEdit, u.Type)
}

func (r *redisFormationRepository) AppendHistory(ctx context.Context, fID string, entry models.FormationHistoryEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}

	hKey := r.historyKey(fID)

	pipe := r.cli.Pipeline()
	pipe.LPush(ctx, hKey, raw)
	pipe.LTrim(ctx, hKey, 0, r.historyLimit-1)

	if _, err := pipe.Exec(ctx); err != nil {
		r.l.Errorf(ctx, "redisFormationRepository.AppendHistory: %v", err)
		return err
	}

	return nil
}

func (r *redisFormationRepository) History(ctx context.Context, fID string, limit int64) ([]models.FormationHistoryEntry, error) {
	if limit <= 0 || limit > r.historyLimit {
		limit = r.historyLimit
	}

	rows, err := r.cli.LRange(ctx, r.historyKey(fID), 0, limit-1).Result()
	if err != nil {
		r.l.Errorf(ctx, "redisFormationRepository.History: %v", err)
		return nil, err
	}

	entries := make([]models.FormationHistoryEntry, 0, len(rows))
	for _, row := range rows {
		var entry models.FormationHistoryEntry
		if err := json.Unmarshal([]byte(row), &entry); err != nil {
			r.l.Warnf(ctx, "redisFormationRepository.History: skipping corrupt entry: %v", err)
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// releaseLock only deletes the lock when it still holds our token, so a
// lock that expired mid-write never kills a successor's lock.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

func (r *redisFormationRepository) acquireLock(ctx context.Context, fID string) (string, error) {
	token := uuid.New().String()
	lKey := r.lockKey(fID)

	for attempt := 0; attempt < lockAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(lockRetryBackoff * time.Duration(attempt)):
			}
		}

		ok, err := r.cli.SetNX(ctx, lKey, token, lockTTL).Result()
		if err != nil {
			r.l.Errorf(ctx, "redisFormationRepository.acquireLock: %v", err)
			return "", err
		}
		if ok {
			return token, nil
		}
	}

	return "", ErrLockNotAcquired
}

func (r *redisFormationRepository) releaseLock(ctx context.Context, fID, token string) {
	if err := releaseScript.Run(ctx, r.cli, []string{r.lockKey(fID)}, token).Err(); err != nil && err != redis.Nil {
		r.l.Warnf(ctx, "redisFormationRepository.releaseLock: %v", err)
	}
}

func (r *redisFormationRepository) formationKey(fID string) string {
	return fmt.Sprintf("tacticsroom:formation:%s", fID)
}

func (r *redisFormationRepository) historyKey(fID string) string {
	return fmt.Sprintf("tacticsroom:formation:%s:history", fID)
}

func (r *redisFormationRepository) lockKey(fID string) string {
	return fmt.Sprintf("tacticsroom:formation:%s:lock", fID)
}
