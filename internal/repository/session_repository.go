package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Tesseract-Nexus/go-shared/cache"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"ooh-import-service/internal/models"
)

// Cache TTL constants
const (
	SessionCacheTTL = 2 * time.Minute // Sessions change on every wizard action
)

// ErrNotFound is returned when no session exists for an owner
var ErrNotFound = errors.New("import session not found")

// SessionStore persists the single active import session of each owner
type SessionStore interface {
	Load(ctx context.Context, ownerKey string) (*models.ImportSession, error)
	Save(ctx context.Context, session *models.ImportSession) error
	Delete(ctx context.Context, ownerKey string) error
}

// SessionRepository keeps sessions as JSONB documents in PostgreSQL, with a
// read-through cache in front when Redis is available.
type SessionRepository struct {
	db    *gorm.DB
	redis *redis.Client
	cache *cache.CacheLayer
}

var _ SessionStore = (*SessionRepository)(nil)

func NewSessionRepository(db *gorm.DB, redisClient *redis.Client) *SessionRepository {
	repo := &SessionRepository{
		db:    db,
		redis: redisClient,
	}

	if redisClient != nil {
		cacheConfig := cache.CacheConfig{
			L1Enabled:  true,
			L1MaxItems: 1000,
			L1TTL:      10 * time.Second,
			DefaultTTL: SessionCacheTTL,
			KeyPrefix:  "tesseract:ooh-import:",
		}
		repo.cache = cache.NewCacheLayerFromClient(redisClient, cacheConfig)
	}

	return repo
}

func sessionCacheKey(ownerKey string) string {
	return fmt.Sprintf("session:%s", ownerKey)
}

// Load returns the stored session of ownerKey or ErrNotFound
func (r *SessionRepository) Load(ctx context.Context, ownerKey string) (*models.ImportSession, error) {
	if r.cache != nil {
		var session models.ImportSession
		err := r.cache.GetOrSetJSON(ctx, sessionCacheKey(ownerKey), &session, SessionCacheTTL, func() (any, error) {
			return r.loadFromDB(ctx, ownerKey)
		})
		if err != nil {
			if errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		return &session, nil
	}

	return r.loadFromDB(ctx, ownerKey)
}

func (r *SessionRepository) loadFromDB(ctx context.Context, ownerKey string) (*models.ImportSession, error) {
	var record models.ImportSessionRecord
	if err := r.db.WithContext(ctx).Where("owner_key = ?", ownerKey).Take(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load import session: %w", err)
	}

	var session models.ImportSession
	if err := json.Unmarshal(record.Document, &session); err != nil {
		return nil, fmt.Errorf("failed to decode import session: %w", err)
	}
	return &session, nil
}

// Save upserts the session on its owner key. A new session for the same owner
// replaces the previous document entirely.
func (r *SessionRepository) Save(ctx context.Context, session *models.ImportSession) error {
	doc, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode import session: %w", err)
	}

	record := models.ImportSessionRecord{
		TenantID:    session.TenantID,
		OwnerKey:    session.OwnerKey,
		SessionID:   session.SessionID,
		CurrentStep: int(session.CurrentStep),
		Document:    doc,
		CreatedAt:   session.CreatedAt,
		UpdatedAt:   time.Now().UTC(),
	}

	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"tenant_id", "session_id", "current_step", "document", "created_at", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to save import session: %w", err)
	}

	r.invalidate(ctx, session.OwnerKey)
	return nil
}

// Delete removes the session of ownerKey. Deleting a missing session is not an error.
func (r *SessionRepository) Delete(ctx context.Context, ownerKey string) error {
	err := r.db.WithContext(ctx).Where("owner_key = ?", ownerKey).Delete(&models.ImportSessionRecord{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete import session: %w", err)
	}
	r.invalidate(ctx, ownerKey)
	return nil
}

// PurgeExpired deletes every session created before cutoff
func (r *SessionRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.ImportSessionRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge import sessions: %w", res.Error)
	}
	if res.RowsAffected > 0 && r.cache != nil {
		_ = r.cache.DeletePattern(ctx, "session:*")
	}
	return res.RowsAffected, nil
}

func (r *SessionRepository) invalidate(ctx context.Context, ownerKey string) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Delete(ctx, sessionCacheKey(ownerKey))
}

// RedisHealth returns the health status of the Redis connection
func (r *SessionRepository) RedisHealth(ctx context.Context) error {
	if r.redis == nil {
		return fmt.Errorf("redis not configured")
	}
	return r.redis.Ping(ctx).Err()
}

// CacheStats returns cache statistics
func (r *SessionRepository) CacheStats() *cache.CacheStats {
	if r.cache == nil {
		return nil
	}
	stats := r.cache.Stats()
	return &stats
}
