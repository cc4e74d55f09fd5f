package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/stretchr/testify/mock"
	"ooh-import-service/internal/events"
	"ooh-import-service/internal/models"
	"ooh-import-service/internal/repository"
)

// MockBulkSaver is a mock implementation of BulkSaver
type MockBulkSaver struct {
	mock.Mock
}

var _ BulkSaver = (*MockBulkSaver)(nil)

func (m *MockBulkSaver) BulkSave(ctx context.Context, tenantID string, req models.BulkSaveRequest) (*models.BulkSaveResult, error) {
	args := m.Called(ctx, tenantID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BulkSaveResult), args.Error(1)
}

// MockCodeChecker is a mock implementation of CodeChecker
type MockCodeChecker struct {
	mock.Mock
}

var _ CodeChecker = (*MockCodeChecker)(nil)

func (m *MockCodeChecker) ExistingCodes(ctx context.Context, tenantID string, codes []string) ([]string, error) {
	args := m.Called(ctx, tenantID, codes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockPublisher is a mock implementation of events.Publisher
type MockPublisher struct {
	mock.Mock
}

var _ events.Publisher = (*MockPublisher)(nil)

func (m *MockPublisher) PublishImportEvent(ctx context.Context, event *events.ImportEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// memoryStore keeps sessions as JSON so every Load returns an independent copy
type memoryStore struct {
	mu   sync.Mutex
	docs map[string][]byte
}

var _ repository.SessionStore = (*memoryStore)(nil)

func newMemoryStore() *memoryStore {
	return &memoryStore{docs: map[string][]byte{}}
}

func (m *memoryStore) Load(_ context.Context, ownerKey string) (*models.ImportSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[ownerKey]
	if !ok {
		return nil, repository.ErrNotFound
	}
	var s models.ImportSession
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *memoryStore) Save(_ context.Context, session *models.ImportSession) error {
	doc, err := json.Marshal(session)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[session.OwnerKey] = doc
	return nil
}

func (m *memoryStore) Delete(_ context.Context, ownerKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, ownerKey)
	return nil
}
