package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"ooh-import-service/internal/models"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

var sessionColumns = []string{"id", "tenant_id", "owner_key", "session_id", "current_step", "document", "created_at", "updated_at"}

func sessionRow(t *testing.T, s *models.ImportSession) *sqlmock.Rows {
	doc, err := json.Marshal(s)
	require.NoError(t, err)
	return sqlmock.NewRows(sessionColumns).
		AddRow(uuid.New(), s.TenantID, s.OwnerKey, s.SessionID, int(s.CurrentStep), doc, s.CreatedAt, s.UpdatedAt)
}

func TestSessionRepository_LoadNotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSessionRepository(db, nil)

	mock.ExpectQuery(`SELECT \* FROM "import_sessions" WHERE owner_key = \$1`).
		WillReturnRows(sqlmock.NewRows(sessionColumns))

	_, err := repo.Load(context.Background(), "tenant-1:user-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_LoadDecodesDocument(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSessionRepository(db, nil)
	session := newSession("tenant-1:user-1")
	session.CurrentStep = models.StepMapping
	session.ColumnMapping = models.ColumnMapping{0: models.FieldCode}

	mock.ExpectQuery(`SELECT \* FROM "import_sessions" WHERE owner_key = \$1`).
		WillReturnRows(sessionRow(t, session))

	loaded, err := repo.Load(context.Background(), "tenant-1:user-1")
	require.NoError(t, err)
	assert.Equal(t, session.SessionID, loaded.SessionID)
	assert.Equal(t, models.StepMapping, loaded.CurrentStep)
	assert.Equal(t, models.FieldCode, loaded.ColumnMapping[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_SaveUpsertsOnOwnerKey(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSessionRepository(db, nil)
	session := newSession("tenant-1:user-1")

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "import_sessions" .* ON CONFLICT \("owner_key"\) DO UPDATE SET`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New()))
	mock.ExpectCommit()

	require.NoError(t, repo.Save(context.Background(), session))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_Delete(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSessionRepository(db, nil)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "import_sessions" WHERE owner_key = \$1`).
		WithArgs("tenant-1:user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "tenant-1:user-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_PurgeExpired(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSessionRepository(db, nil)
	cutoff := time.Now().Add(-24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "import_sessions" WHERE created_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	n, err := repo.PurgeExpired(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_CachedLoadHitsDatabaseOnce(t *testing.T) {
	db, mock := setupMockDB(t)
	_, client := setupMiniredis(t)
	repo := NewSessionRepository(db, client)
	session := newSession("tenant-1:user-1")

	mock.ExpectQuery(`SELECT \* FROM "import_sessions" WHERE owner_key = \$1`).
		WillReturnRows(sessionRow(t, session))

	ctx := context.Background()
	first, err := repo.Load(ctx, "tenant-1:user-1")
	require.NoError(t, err)
	second, err := repo.Load(ctx, "tenant-1:user-1")
	require.NoError(t, err)

	assert.Equal(t, first.SessionID, second.SessionID)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NotNil(t, repo.CacheStats())
	assert.NoError(t, repo.RedisHealth(ctx))
}
