package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"ooh-import-service/internal/events"
	"ooh-import-service/internal/importer"
	"ooh-import-service/internal/models"
	"ooh-import-service/internal/repository"
)

var (
	ErrSessionNotFound    = errors.New("import session not found")
	ErrStepNotAllowed     = errors.New("step transition not allowed")
	ErrInvalidStep        = errors.New("invalid step")
	ErrSubmissionInFlight = errors.New("a submission is already in flight for this session")
	ErrStaleSubmission    = errors.New("submission result discarded: session moved on")
	ErrRowOutOfRange      = errors.New("row index out of range")
	ErrColumnOutOfRange   = errors.New("column index out of range")
	ErrImageNotFound      = errors.New("image not found")
	ErrTooManyImages      = errors.New("too many images for this point")
	ErrInvalidMapping     = errors.New("invalid column mapping")
)

// DefaultSessionTTL is how long a session lives after it was started
const DefaultSessionTTL = 24 * time.Hour

// GateError explains why a step transition was refused
type GateError struct {
	From    models.Step
	To      models.Step
	Reasons []string
}

func (e *GateError) Error() string {
	return fmt.Sprintf("cannot move from %s to %s: %s", e.From, e.To, strings.Join(e.Reasons, "; "))
}

func (e *GateError) Unwrap() error {
	return ErrStepNotAllowed
}

// BulkSaver persists a submission batch and reports the per-row outcome
type BulkSaver interface {
	BulkSave(ctx context.Context, tenantID string, req models.BulkSaveRequest) (*models.BulkSaveResult, error)
}

// CodeChecker reports which codes are already registered in the inventory
type CodeChecker interface {
	ExistingCodes(ctx context.Context, tenantID string, codes []string) ([]string, error)
}

// Owner identifies the operator a session belongs to
type Owner struct {
	TenantID string
	UserID   string
}

// Key is the store key of the owner's session
func (o Owner) Key() string {
	return o.TenantID + ":" + o.UserID
}

// Config tunes the import service
type Config struct {
	SessionTTL    time.Duration
	SubmitTimeout time.Duration
}

// ImportService owns the import session of each operator and moves it
// through upload, mapping, review, processing and summary.
type ImportService struct {
	store     repository.SessionStore
	saver     BulkSaver
	checker   CodeChecker
	publisher events.Publisher
	locker    repository.Locker
	logger    *logrus.Entry
	config    Config
	now       func() time.Time

	// background submissions started by SubmitAsync
	inflight sync.WaitGroup
}

// NewImportService creates a new ImportService. checker and publisher may be nil.
func NewImportService(
	store repository.SessionStore,
	saver BulkSaver,
	checker CodeChecker,
	publisher events.Publisher,
	locker repository.Locker,
	logger *logrus.Entry,
	config Config,
) *ImportService {
	if config.SessionTTL <= 0 {
		config.SessionTTL = DefaultSessionTTL
	}
	if config.SubmitTimeout <= 0 {
		config.SubmitTimeout = 2 * time.Minute
	}
	if locker == nil {
		locker = repository.NewLocalLocker()
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ImportService{
		store:     store,
		saver:     saver,
		checker:   checker,
		publisher: publisher,
		locker:    locker,
		logger:    logger.WithField("component", "import_service"),
		config:    config,
		now:       time.Now,
	}
}

// Start discards any current session of owner and opens a new one at the upload step.
func (s *ImportService) Start(ctx context.Context, owner Owner, targetID int64, targetName string) (*models.ImportSession, error) {
	if err := s.store.Delete(ctx, owner.Key()); err != nil {
		return nil, err
	}

	session := models.NewImportSession(owner.Key(), owner.TenantID, targetID, targetName, s.now())
	if err := s.store.Save(ctx, session); err != nil {
		return nil, err
	}

	s.log(session).Info("Import session started")
	s.publish(ctx, events.ImportStarted, session, nil)
	return session, nil
}

// Current returns the live session of owner. Expired sessions are deleted and
// reported as missing.
func (s *ImportService) Current(ctx context.Context, owner Owner) (*models.ImportSession, error) {
	session, err := s.store.Load(ctx, owner.Key())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if session.Expired(s.now(), s.config.SessionTTL) {
		if err := s.store.Delete(ctx, owner.Key()); err != nil {
			return nil, err
		}
		s.log(session).Info("Discarded expired import session")
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Cancel discards the session of owner. A submission still in flight will have
// its result discarded.
func (s *ImportService) Cancel(ctx context.Context, owner Owner) error {
	session, err := s.Current(ctx, owner)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, owner.Key()); err != nil {
		return err
	}
	s.log(session).Info("Import session cancelled")
	s.publish(ctx, events.ImportCancelled, session, nil)
	return nil
}

// Finish closes a session that reached processing or summary and returns its
// final summary.
func (s *ImportService) Finish(ctx context.Context, owner Owner) (*models.ImportSummary, error) {
	session, err := s.Current(ctx, owner)
	if err != nil {
		return nil, err
	}
	if session.CurrentStep < models.StepProcessing || session.Submitting {
		return nil, &GateError{
			From:    session.CurrentStep,
			To:      models.StepSummary,
			Reasons: []string{"the import can only be finished after processing"},
		}
	}

	summary := BuildSummary(session)
	if err := s.store.Delete(ctx, owner.Key()); err != nil {
		return nil, err
	}
	s.log(session).WithField("saved", len(session.SavedRowIDs)).Info("Import session finished")
	return summary, nil
}

// Upload stores the parsed spreadsheet, drops blank rows, detects a column
// mapping and derives the rows from it.
func (s *ImportService) Upload(ctx context.Context, owner Owner, fileName string, headers []string, rows [][]models.Cell) (*models.ImportSession, error) {
	return s.mutate(ctx, owner, func(session *models.ImportSession) error {
		if session.CurrentStep > models.StepMapping {
			return &GateError{
				From:    session.CurrentStep,
				To:      models.StepUpload,
				Reasons: []string{"a file can only be uploaded before review starts"},
			}
		}

		raw := make([][]models.Cell, 0, len(rows))
		for _, r := range rows {
			if !blankRow(r) {
				raw = append(raw, r)
			}
		}

		session.FileName = fileName
		session.ColumnHeaders = append([]string{}, headers...)
		session.RawRows = cloneRows(raw)
		session.OriginalRawRows = cloneRows(raw)
		session.CurrentRowIndex = 0

		mapping, _ := importer.DetectColumnMapping(session.ColumnHeaders, session.RawRows)
		s.applyMapping(ctx, session, mapping)

		s.log(session).WithFields(logrus.Fields{
			"fileName": fileName,
			"rows":     len(raw),
			"columns":  len(headers),
		}).Info("Spreadsheet uploaded")
		return nil
	})
}

// SuggestMapping proposes a mapping from headers and column content, with the
// check result of that proposal.
func (s *ImportService) SuggestMapping(ctx context.Context, owner Owner) (*models.MappingSuggestion, error) {
	session, err := s.Current(ctx, owner)
	if err != nil {
		return nil, err
	}

	mapping, confidence := importer.DetectColumnMapping(session.ColumnHeaders, session.RawRows)
	check := importer.ValidateColumnMapping(mapping)

	preview := session.RawRows
	if len(preview) > 5 {
		preview = preview[:5]
	}
	return &models.MappingSuggestion{
		Mapping:    mapping,
		Errors:     check.Errors,
		Warnings:   check.Warnings,
		Headers:    session.ColumnHeaders,
		Preview:    preview,
		Confidence: confidence,
	}, nil
}

// SetMapping replaces the column mapping and re-derives every row. Mappings
// naming unknown fields or columns outside the file are rejected.
func (s *ImportService) SetMapping(ctx context.Context, owner Owner, mapping models.ColumnMapping) (*models.ImportSession, error) {
	return s.mutate(ctx, owner, func(session *models.ImportSession) error {
		if session.CurrentStep != models.StepMapping && session.CurrentStep != models.StepUpload {
			return &GateError{
				From:    session.CurrentStep,
				To:      models.StepMapping,
				Reasons: []string{"the mapping can only change at the mapping step"},
			}
		}
		for col, field := range mapping {
			if col < 0 || col >= len(session.ColumnHeaders) {
				return fmt.Errorf("%w: column %d does not exist", ErrInvalidMapping, col)
			}
			if !field.Known() {
				return fmt.Errorf("%w: unknown field %q", ErrInvalidMapping, field)
			}
		}

		s.applyMapping(ctx, session, mapping.Clone())
		s.log(session).WithField("mapped", len(mapping)).Info("Column mapping updated")
		return nil
	})
}

// applyMapping re-derives rows, corrections and validation for mapping
func (s *ImportService) applyMapping(ctx context.Context, session *models.ImportSession, mapping models.ColumnMapping) {
	session.ColumnMapping = mapping
	session.Rows = importer.DeriveRows(session.RawRows, mapping)
	session.CellCorrections = importer.CollectCorrections(session.OriginalRawRows, session.RawRows, mapping)
	session.ExistingCodes = s.lookupExisting(ctx, session, rowCodes(session.Rows))
	importer.ValidateRows(session.Rows, session.ExistingCodes, importer.ExpectedFields(session.ColumnMapping)...)
}

// lookupExisting asks the code checker about codes. Lookup failures only lose
// the "already exists" check.
func (s *ImportService) lookupExisting(ctx context.Context, session *models.ImportSession, codes []string) []string {
	if s.checker == nil || len(codes) == 0 {
		return session.ExistingCodes
	}
	existing, err := s.checker.ExistingCodes(ctx, session.TenantID, codes)
	if err != nil {
		s.log(session).WithError(err).Warn("Existing code lookup failed")
		return session.ExistingCodes
	}
	return existing
}

// GoToStep moves the session to step. Forward moves go one step at a time and
// must pass the gate of the current step; backward moves are refused once
// processing has started.
func (s *ImportService) GoToStep(ctx context.Context, owner Owner, step models.Step) (*models.ImportSession, error) {
	if !step.Valid() {
		return nil, ErrInvalidStep
	}
	return s.mutate(ctx, owner, func(session *models.ImportSession) error {
		from := session.CurrentStep
		if err := CheckTransition(session, step); err != nil {
			return err
		}
		if from == step {
			return nil
		}

		if from == models.StepReview && step == models.StepProcessing {
			for i := range session.Rows {
				if importer.Submittable(&session.Rows[i]) {
					session.Rows[i].SubmissionStatus = models.SubmissionQueued
				}
			}
		}
		if step == models.StepSummary && session.CompletedAt == nil {
			now := s.now().UTC()
			session.CompletedAt = &now
		}
		session.CurrentStep = step

		s.log(session).WithField("from", from.String()).Info("Import step changed")
		return nil
	})
}

// CheckTransition returns a *GateError when session may not move to step
func CheckTransition(session *models.ImportSession, step models.Step) error {
	from := session.CurrentStep
	refuse := func(reasons ...string) error {
		return &GateError{From: from, To: step, Reasons: reasons}
	}

	switch {
	case step == from:
		return nil
	case step < from:
		if from >= models.StepProcessing {
			return refuse("steps cannot go back once processing has started")
		}
		return nil
	case step > from+1:
		return refuse("steps must be completed in order")
	}

	switch from {
	case models.StepUpload:
		var reasons []string
		if len(session.ColumnHeaders) == 0 {
			reasons = append(reasons, "the file has no header row")
		}
		if len(session.RawRows) == 0 {
			reasons = append(reasons, "the file has no data rows")
		}
		if len(reasons) > 0 {
			return refuse(reasons...)
		}
	case models.StepMapping:
		check := importer.ValidateColumnMapping(session.ColumnMapping)
		reasons := append([]string{}, check.Errors...)
		for i := range session.Rows {
			r := &session.Rows[i]
			if r.SkipImport || r.ValidationStatus != models.ValidationError {
				continue
			}
			reasons = append(reasons, rowErrorReason(i, r))
		}
		if len(reasons) > 0 {
			return refuse(reasons...)
		}
	case models.StepProcessing:
		if session.Submitting {
			return refuse("a submission is still in flight")
		}
		if session.SubmissionAttempts == 0 {
			return refuse("no rows were submitted yet")
		}
	}
	return nil
}

func rowErrorReason(index int, r *models.ImportRow) string {
	var msgs []string
	for _, issue := range r.ValidationErrors {
		if issue.Severity == models.SeverityError {
			msgs = append(msgs, fmt.Sprintf("%s: %s", issue.Field, issue.Message))
		}
	}
	label := fmt.Sprintf("row %d", index+1)
	if r.Code != "" {
		label = fmt.Sprintf("row %d (%s)", index+1, r.Code)
	}
	return label + ": " + strings.Join(msgs, ", ")
}

// Summary reports counts and per-row failures of the session of owner
func (s *ImportService) Summary(ctx context.Context, owner Owner) (*models.ImportSummary, error) {
	session, err := s.Current(ctx, owner)
	if err != nil {
		return nil, err
	}
	return BuildSummary(session), nil
}

// BuildSummary aggregates the state of session
func BuildSummary(session *models.ImportSession) *models.ImportSummary {
	summary := &models.ImportSummary{
		SessionID:   session.SessionID.String(),
		Step:        session.CurrentStep,
		Total:       len(session.Rows),
		Corrections: len(session.CellCorrections),
		SavedIDs:    append([]int64{}, session.SavedRowIDs...),
		Failures:    []models.RowOutcome{},
		BlockedRows: []models.RowOutcome{},
	}

	for i := range session.Rows {
		r := &session.Rows[i]
		switch r.ValidationStatus {
		case models.ValidationValid:
			summary.ValidCount++
		case models.ValidationWarning:
			summary.WarningCount++
		case models.ValidationError:
			summary.ErrorCount++
		}

		switch {
		case r.SkipImport:
			summary.Skipped++
		case r.Saved():
			summary.Succeeded++
		case r.ValidationStatus == models.ValidationError:
			// Retry cannot send these until they are fixed
			summary.Blocked++
			summary.BlockedRows = append(summary.BlockedRows, models.RowOutcome{
				Index:  i,
				Code:   r.Code,
				Status: r.SubmissionStatus,
				Error:  MsgRowInvalid,
			})
		case r.SubmissionStatus == models.SubmissionError:
			summary.Failed++
			summary.Failures = append(summary.Failures, models.RowOutcome{
				Index:  i,
				Code:   r.Code,
				Status: r.SubmissionStatus,
				Error:  r.SubmissionError,
			})
		default:
			summary.Pending++
		}
	}

	summary.CanRetry = session.CurrentStep == models.StepProcessing && !session.Submitting && summary.Failed > 0
	summary.CanFinish = session.CurrentStep >= models.StepProcessing && !session.Submitting && session.SubmissionAttempts > 0
	return summary
}

// mutate loads the live session of owner, applies fn and saves the result
func (s *ImportService) mutate(ctx context.Context, owner Owner, fn func(*models.ImportSession) error) (*models.ImportSession, error) {
	session, err := s.Current(ctx, owner)
	if err != nil {
		return nil, err
	}
	if err := fn(session); err != nil {
		return nil, err
	}
	session.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ImportService) log(session *models.ImportSession) *logrus.Entry {
	return s.logger.WithFields(logrus.Fields{
		"sessionId": session.SessionID.String(),
		"ownerKey":  session.OwnerKey,
		"step":      session.CurrentStep.String(),
		"rows":      len(session.Rows),
	})
}

func (s *ImportService) publish(ctx context.Context, eventType string, session *models.ImportSession, fill func(*events.ImportEvent)) {
	if s.publisher == nil {
		return
	}
	event := events.NewImportEvent(eventType, session.TenantID, session.SessionID.String())
	event.OwnerKey = session.OwnerKey
	event.TargetCollectionID = session.TargetCollectionID
	event.FileName = session.FileName
	event.TotalRows = len(session.Rows)
	if fill != nil {
		fill(event)
	}
	if err := s.publisher.PublishImportEvent(ctx, event); err != nil {
		s.log(session).WithError(err).WithField("eventType", eventType).Warn("Failed to publish import event")
	}
}

func blankRow(cells []models.Cell) bool {
	for _, c := range cells {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

func cloneRows(rows [][]models.Cell) [][]models.Cell {
	out := make([][]models.Cell, len(rows))
	for i, r := range rows {
		out[i] = append([]models.Cell{}, r...)
	}
	return out
}

func rowCodes(rows []models.ImportRow) []string {
	seen := map[string]bool{}
	codes := make([]string, 0, len(rows))
	for i := range rows {
		code := strings.TrimSpace(rows[i].Code)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}
	return codes
}
