// Package events provides NATS event publishing for ooh-import-service
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/Tesseract-Nexus/go-shared/events"
	"github.com/sirupsen/logrus"
)

// Import event types
const (
	ImportStarted         = "import.started"
	ImportSubmitted       = "import.submitted"
	ImportCompleted       = "import.completed"
	ImportPartiallyFailed = "import.partially_failed"
	ImportCancelled       = "import.cancelled"

	StreamImport = "IMPORT_EVENTS"
)

// ImportEvent describes a milestone of a bulk import session
type ImportEvent struct {
	events.BaseEvent
	SessionID          string   `json:"sessionId"`
	OwnerKey           string   `json:"ownerKey,omitempty"`
	TargetCollectionID int64    `json:"targetCollectionId,omitempty"`
	FileName           string   `json:"fileName,omitempty"`
	TotalRows          int      `json:"totalRows"`
	SubmittedRows      int      `json:"submittedRows,omitempty"`
	SavedRows          int      `json:"savedRows,omitempty"`
	FailedRows         int      `json:"failedRows,omitempty"`
	SkippedRows        int      `json:"skippedRows,omitempty"`
	SavedIDs           []int64  `json:"savedIds,omitempty"`
	FailedCodes        []string `json:"failedCodes,omitempty"`
}

func (e *ImportEvent) GetSubject() string {
	return e.EventType
}

func (e *ImportEvent) GetStream() string {
	return StreamImport
}

// Publisher is the surface the import service needs to announce milestones
type Publisher interface {
	PublishImportEvent(ctx context.Context, event *ImportEvent) error
}

// ImportEventPublisher publishes import events to NATS JetStream
type ImportEventPublisher struct {
	publisher *events.Publisher
	logger    *logrus.Entry
}

// NewImportEventPublisher connects to NATS and makes sure the import stream exists
func NewImportEventPublisher(natsURL string, logger *logrus.Logger) (*ImportEventPublisher, error) {
	if natsURL == "" {
		return nil, fmt.Errorf("NATS URL is required")
	}

	log := logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	config := events.DefaultPublisherConfig(natsURL)
	config.Name = "ooh-import-service-publisher"

	publisher, err := events.NewPublisher(config, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create publisher: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := publisher.EnsureStream(ctx, StreamImport, []string{"import.>"}); err != nil {
		log.WithError(err).Warn("Failed to ensure import stream exists")
	}

	return &ImportEventPublisher{
		publisher: publisher,
		logger:    log.WithField("component", "import-events"),
	}, nil
}

// NewImportEvent fills the common envelope of an import event
func NewImportEvent(eventType, tenantID, sessionID string) *ImportEvent {
	return &ImportEvent{
		BaseEvent: events.BaseEvent{
			EventType: eventType,
			TenantID:  tenantID,
			SourceID:  sessionID,
			Timestamp: time.Now().UTC(),
		},
		SessionID: sessionID,
	}
}

// PublishImportEvent publishes the event and logs the outcome
func (p *ImportEventPublisher) PublishImportEvent(ctx context.Context, event *ImportEvent) error {
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.WithFields(logrus.Fields{
			"sessionId": event.SessionID,
			"eventType": event.EventType,
		}).WithError(err).Error("Failed to publish import event")
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"sessionId": event.SessionID,
		"eventType": event.EventType,
		"savedRows": event.SavedRows,
		"failed":    event.FailedRows,
	}).Info("Published import event")
	return nil
}

// IsConnected reports whether the NATS connection is up
func (p *ImportEventPublisher) IsConnected() bool {
	return p.publisher != nil && p.publisher.IsConnected()
}

// Close closes the publisher connection
func (p *ImportEventPublisher) Close() {
	if p.publisher != nil {
		p.publisher.Close()
	}
}
