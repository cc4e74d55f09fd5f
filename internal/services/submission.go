package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"ooh-import-service/internal/events"
	"ooh-import-service/internal/importer"
	"ooh-import-service/internal/models"
	"ooh-import-service/internal/repository"
)

// Messages attached to rows that could not be saved without a backend reason
const (
	MsgTransportFailure = "Could not reach the inventory service. Try again."
	MsgSaveUnconfirmed  = "The inventory service did not confirm this row."
	MsgRowInvalid       = "Row has validation errors and was not submitted."
)

// submission is a batch that was marked in flight and still holds the lock
type submission struct {
	owner     Owner
	sessionID uuid.UUID
	tenantID  string
	request   models.BulkSaveRequest
	indexes   []int
	lock      repository.Lock
	started   time.Time
}

// Submit sends every row that is neither skipped nor saved to the bulk saver
// and reconciles the result into the session. Only one submission per session
// runs at a time.
func (s *ImportService) Submit(ctx context.Context, owner Owner) (*models.ImportSummary, error) {
	sub, summary, err := s.prepareSubmission(ctx, owner)
	if err != nil || sub == nil {
		return summary, err
	}
	return s.completeSubmission(ctx, sub)
}

// Retry resubmits the rows that failed before. Rows already saved are never
// sent again.
func (s *ImportService) Retry(ctx context.Context, owner Owner) (*models.ImportSummary, error) {
	return s.Submit(ctx, owner)
}

// SubmitAsync marks the batch in flight and runs the save in the background.
// The returned summary reflects the in-flight state.
func (s *ImportService) SubmitAsync(ctx context.Context, owner Owner) (*models.ImportSummary, error) {
	sub, summary, err := s.prepareSubmission(ctx, owner)
	if err != nil || sub == nil {
		return summary, err
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.SubmitTimeout)
		defer cancel()
		if _, err := s.completeSubmission(bg, sub); err != nil && !errors.Is(err, ErrStaleSubmission) {
			s.logger.WithError(err).WithField("ownerKey", owner.Key()).Error("Background submission failed")
		}
	}()
	return summary, nil
}

// Wait blocks until background submissions have finished
func (s *ImportService) Wait() {
	s.inflight.Wait()
}

// prepareSubmission takes the lock, builds the batch and persists the rows as
// processing. A nil submission with a summary means there was nothing to send.
func (s *ImportService) prepareSubmission(ctx context.Context, owner Owner) (*submission, *models.ImportSummary, error) {
	lock, err := s.locker.TryLock(ctx, "import:submit:"+owner.Key(), s.config.SubmitTimeout+30*time.Second)
	if err != nil {
		if errors.Is(err, repository.ErrLockHeld) {
			return nil, nil, ErrSubmissionInFlight
		}
		return nil, nil, err
	}

	release := true
	defer func() {
		if release {
			_ = lock.Release(context.WithoutCancel(ctx))
		}
	}()

	session, err := s.Current(ctx, owner)
	if err != nil {
		return nil, nil, err
	}
	if session.CurrentStep != models.StepProcessing {
		return nil, nil, &GateError{
			From:    session.CurrentStep,
			To:      models.StepProcessing,
			Reasons: []string{"rows can only be submitted at the processing step"},
		}
	}

	for i := range session.Rows {
		r := &session.Rows[i]
		if !r.SkipImport && !r.Saved() && r.ValidationStatus == models.ValidationError {
			r.SubmissionStatus = models.SubmissionError
			r.SubmissionError = MsgRowInvalid
		}
	}

	payloads, indexes := importer.BuildBatch(session.Rows)
	if len(payloads) == 0 {
		session.Submitting = false
		if s.allSaved(session) {
			s.complete(session)
		}
		session.UpdatedAt = s.now().UTC()
		if err := s.store.Save(ctx, session); err != nil {
			return nil, nil, err
		}
		return nil, BuildSummary(session), nil
	}

	for _, i := range indexes {
		session.Rows[i].SubmissionStatus = models.SubmissionProcessing
		session.Rows[i].SubmissionError = ""
	}
	session.Submitting = true
	session.SubmissionAttempts++
	session.LastSubmissionError = ""
	session.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, session); err != nil {
		return nil, nil, err
	}

	s.log(session).WithFields(logrus.Fields{
		"batch":   len(payloads),
		"attempt": session.SubmissionAttempts,
	}).Info("Submitting import batch")
	s.publish(ctx, events.ImportSubmitted, session, func(e *events.ImportEvent) {
		e.SubmittedRows = len(payloads)
	})

	release = false
	return &submission{
		owner:     owner,
		sessionID: session.SessionID,
		tenantID:  session.TenantID,
		request: models.BulkSaveRequest{
			OwnerID:  session.TargetCollectionID,
			TenantID: session.TenantID,
			Rows:     payloads,
		},
		indexes: indexes,
		lock:    lock,
		started: s.now(),
	}, BuildSummary(session), nil
}

// completeSubmission calls the saver and applies its answer, unless the
// session was cancelled, replaced or moved on in the meantime.
func (s *ImportService) completeSubmission(ctx context.Context, sub *submission) (*models.ImportSummary, error) {
	defer func() { _ = sub.lock.Release(context.WithoutCancel(ctx)) }()

	result, saveErr := s.saver.BulkSave(ctx, sub.tenantID, sub.request)

	session, err := s.Current(context.WithoutCancel(ctx), sub.owner)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			s.logger.WithField("ownerKey", sub.owner.Key()).Info("Discarded submission result for a closed session")
			return nil, ErrStaleSubmission
		}
		return nil, err
	}
	if session.SessionID != sub.sessionID || session.CurrentStep != models.StepProcessing {
		s.log(session).Info("Discarded submission result for a session that moved on")
		return nil, ErrStaleSubmission
	}

	Reconcile(session, sub.indexes, result, saveErr)
	if saveErr != nil {
		s.log(session).WithError(saveErr).Warn("Bulk save failed")
	}
	if s.allSaved(session) {
		s.complete(session)
	}
	session.UpdatedAt = s.now().UTC()
	if err := s.store.Save(context.WithoutCancel(ctx), session); err != nil {
		return nil, err
	}

	summary := BuildSummary(session)
	s.log(session).WithFields(logrus.Fields{
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"blocked":   summary.Blocked,
		"duration":  s.now().Sub(sub.started).String(),
	}).Info("Import batch reconciled")

	eventType := events.ImportCompleted
	if summary.Failed > 0 || summary.Blocked > 0 {
		eventType = events.ImportPartiallyFailed
	}
	s.publish(context.WithoutCancel(ctx), eventType, session, func(e *events.ImportEvent) {
		e.SubmittedRows = len(sub.indexes)
		e.SavedRows = summary.Succeeded
		e.FailedRows = summary.Failed
		e.SkippedRows = summary.Skipped
		e.SavedIDs = summary.SavedIDs
		for _, f := range summary.Failures {
			e.FailedCodes = append(e.FailedCodes, f.Code)
		}
		for _, b := range summary.BlockedRows {
			e.FailedCodes = append(e.FailedCodes, b.Code)
		}
	})
	return summary, nil
}

// Reconcile applies a bulk save outcome to the rows at indexes, in batch order.
// A transport error fails every row. Otherwise rows whose code was rejected
// fail with the backend's message and the rest are saved, taking the returned
// IDs in order.
func Reconcile(session *models.ImportSession, indexes []int, result *models.BulkSaveResult, saveErr error) {
	session.Submitting = false

	if saveErr != nil || result == nil {
		session.LastSubmissionError = MsgTransportFailure
		for _, i := range indexes {
			session.Rows[i].SubmissionStatus = models.SubmissionError
			session.Rows[i].SubmissionError = MsgTransportFailure
		}
		return
	}

	failures := make(map[string]string, len(result.Errors))
	for _, e := range result.Errors {
		failures[strings.TrimSpace(e.Code)] = e.Error
	}

	next := 0
	for _, i := range indexes {
		r := &session.Rows[i]
		if msg, failed := failures[strings.TrimSpace(r.Code)]; failed {
			r.SubmissionStatus = models.SubmissionError
			r.SubmissionError = msg
			continue
		}

		if next < len(result.Saved) {
			id := result.Saved[next]
			next++
			r.SavedID = &id
			r.SubmissionStatus = models.SubmissionSuccess
			r.SubmissionError = ""
			continue
		}
		if result.Success {
			r.SubmissionStatus = models.SubmissionSuccess
			r.SubmissionError = ""
			continue
		}
		r.SubmissionStatus = models.SubmissionError
		r.SubmissionError = MsgSaveUnconfirmed
	}

	for _, id := range result.Saved {
		if !session.HasSavedID(id) {
			session.SavedRowIDs = append(session.SavedRowIDs, id)
		}
	}
	if len(result.Errors) > 0 {
		session.LastSubmissionError = result.Errors[0].Error
	}
}

// allSaved reports whether every row that is not skipped has been saved
func (s *ImportService) allSaved(session *models.ImportSession) bool {
	for i := range session.Rows {
		r := &session.Rows[i]
		if !r.SkipImport && !r.Saved() {
			return false
		}
	}
	return true
}

func (s *ImportService) complete(session *models.ImportSession) {
	now := s.now().UTC()
	session.CurrentStep = models.StepSummary
	session.CompletedAt = &now
}
