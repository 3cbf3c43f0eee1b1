package service

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-permits-portal/internal/catalog"
	"github.com/pesio-ai/be-permits-portal/internal/client"
	"github.com/pesio-ai/be-permits-portal/internal/metrics"
	"github.com/pesio-ai/be-permits-portal/internal/platform/errors"
	"github.com/pesio-ai/be-permits-portal/internal/platform/logger"
	"github.com/pesio-ai/be-permits-portal/internal/repository"
	"github.com/pesio-ai/be-permits-portal/internal/submission"
	"github.com/pesio-ai/be-permits-portal/internal/workflow"
)

// ErrForbidden is returned when the caller may not act on an application.
var ErrForbidden = errors.New(errors.ErrCodeForbidden, "not allowed to access this application")

// ApplicationStore persists applications and their history.
type ApplicationStore interface {
	Create(ctx context.Context, app *workflow.Application) error
	Get(ctx context.Context, id string) (*workflow.Application, error)
	List(ctx context.Context, filter repository.ApplicationFilter) ([]*workflow.Application, int, error)
	RecordTransition(ctx context.Context, app *workflow.Application, rec *workflow.HistoryRecord, expectedVersion int) error
	Delete(ctx context.Context, id string) error
}

// DocumentStore persists document metadata.
type DocumentStore interface {
	submission.MetadataStore
	ListByApplication(ctx context.Context, applicationID string) ([]*submission.Document, error)
	Get(ctx context.Context, id string) (*submission.Document, error)
}

// CatalogStore looks up catalog entries.
type CatalogStore interface {
	Get(ctx context.Context, id string) (*catalog.Entry, error)
	List(ctx context.Context) ([]*catalog.Entry, error)
}

// Notifier publishes workflow events.
type Notifier interface {
	PublishApplicationEvent(ctx context.Context, eventType, applicationID, reference, actorID string, recipients []string, payload map[string]any)
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID string
	Email  string
	Role   string
}

// Options configures an ApplicationService.
type Options struct {
	AdminRole         string
	RejectionTimeline workflow.RejectionPolicy
	Now               func() time.Time
}

// ApplicationService coordinates the workflow engine, persistence, document
// storage and notifications.
type ApplicationService struct {
	apps      ApplicationStore
	docs      DocumentStore
	catalog   CatalogStore
	blobs     submission.BlobStore
	notifier  Notifier
	engine    *workflow.Engine
	adminRole string
	policy    workflow.RejectionPolicy
	log       *logger.Logger
}

// NewApplicationService creates a new application service
func NewApplicationService(
	apps ApplicationStore,
	docs DocumentStore,
	catalogStore CatalogStore,
	blobs submission.BlobStore,
	notifier Notifier,
	opts Options,
	log *logger.Logger,
) *ApplicationService {
	if opts.AdminRole == "" {
		opts.AdminRole = "admin"
	}
	return &ApplicationService{
		apps:      apps,
		docs:      docs,
		catalog:   catalogStore,
		blobs:     blobs,
		notifier:  notifier,
		engine:    workflow.NewEngine(opts.Now),
		adminRole: opts.AdminRole,
		policy:    opts.RejectionTimeline,
		log:       log,
	}
}

// NewStager returns a stager wired to the service's blob and metadata stores.
func (s *ApplicationService) NewStager(opts ...submission.StagerOption) *submission.Stager {
	return submission.NewStager(s.blobs, s.docs, opts...)
}

// IsAdmin reports whether actor reviews applications.
func (s *ApplicationService) IsAdmin(actor Actor) bool {
	return actor.Role == s.adminRole
}

// ── Catalog ──────────────────────────────────────────────────────────────────

// GetCatalogEntry returns one catalog entry.
func (s *ApplicationService) GetCatalogEntry(ctx context.Context, id string) (*catalog.Entry, error) {
	return s.catalog.Get(ctx, id)
}

// ListCatalog returns every catalog entry.
func (s *ApplicationService) ListCatalog(ctx context.Context) ([]*catalog.Entry, error) {
	return s.catalog.List(ctx)
}

// ── Create ───────────────────────────────────────────────────────────────────

// CreateResult is the outcome of a submission. Documents holds every upload
// attempt; failed ones can be retried by the applicant.
type CreateResult struct {
	Application *workflow.Application
	Documents   []*submission.Document
}

// Failed returns the documents that did not persist.
func (r *CreateResult) Failed() []*submission.Document {
	var out []*submission.Document
	for _, d := range r.Documents {
		if d.Status == submission.DocumentError && d.SupersededBy == "" {
			out = append(out, d)
		}
	}
	return out
}

// CreateApplication submits a new application and persists the staged
// documents. Document failures do not undo the submission; they are reported
// in the result.
func (s *ApplicationService) CreateApplication(ctx context.Context, actor Actor, catalogEntryID string, applicant submission.Applicant, stager *submission.Stager) (*CreateResult, error) {
	if _, err := s.catalog.Get(ctx, catalogEntryID); err != nil {
		return nil, err
	}

	app, err := s.engine.Submit(uuid.NewString(), catalogEntryID, actor.UserID, applicant)
	if err != nil {
		return nil, err
	}
	if err := s.apps.Create(ctx, app); err != nil {
		return nil, err
	}
	metrics.RecordApplicationCreated()

	s.log.Info().
		Str("application_id", app.ID).
		Str("reference", app.ReferenceNumber()).
		Str("catalog_entry_id", catalogEntryID).
		Str("user_id", actor.UserID).
		Msg("Application submitted")

	result := &CreateResult{Application: app}
	if stager != nil && stager.Len() > 0 {
		persisted, err := stager.Persist(ctx, app.ID, actor.UserID)
		if err != nil {
			s.log.Warn().Err(err).Str("application_id", app.ID).Msg("Failed to record document metadata")
		}
		s.recordUploads(app.ID, persisted, stager.Failed())
		result.Documents = stager.Documents()
	}

	s.notify(ctx, client.EventApplicationSubmitted, app, actor.UserID, []string{app.UserID}, map[string]any{
		"catalog_entry_id": catalogEntryID,
		"documents":        len(result.Documents) - len(result.Failed()),
	})
	return result, nil
}

// UploadDocuments persists additional documents, such as re-sent files that
// failed during submission, for a pending application the actor owns.
func (s *ApplicationService) UploadDocuments(ctx context.Context, actor Actor, id string, stager *submission.Stager) ([]*submission.Document, error) {
	app, err := s.apps.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.UserID != actor.UserID {
		return nil, ErrForbidden
	}
	if app.Status.IsTerminal() {
		return nil, workflow.ErrApplicationClosed
	}
	persisted, err := stager.Persist(ctx, app.ID, actor.UserID)
	s.recordUploads(app.ID, persisted, stager.Failed())
	return persisted, err
}

// ── Transition ───────────────────────────────────────────────────────────────

// Transition moves an application to target on behalf of a reviewer.
func (s *ApplicationService) Transition(ctx context.Context, actor Actor, id string, target workflow.Status, comment, revisionInstructions string) (*workflow.Application, error) {
	if !s.IsAdmin(actor) {
		return nil, ErrForbidden
	}

	app, err := s.apps.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	expected := app.Version
	from := app.Status
	rec, err := s.engine.Transition(app, target, comment, revisionInstructions, actor.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.apps.RecordTransition(ctx, app, &rec, expected); err != nil {
		return nil, err
	}
	metrics.RecordTransition(string(target))

	s.log.Info().
		Str("application_id", app.ID).
		Str("from", string(from)).
		Str("to", string(target)).
		Str("actor_id", actor.UserID).
		Msg("Application status changed")

	event := client.EventApplicationStatusChanged
	payload := map[string]any{"from": string(from), "to": string(target), "comment": rec.Comment}
	if target == workflow.StatusNeedsRevision {
		event = client.EventApplicationRevisionRequested
		payload["revision_instructions"] = *rec.RevisionInstructions
	}
	s.notify(ctx, event, app, actor.UserID, []string{app.UserID}, payload)
	return app, nil
}

// ── Resubmit ─────────────────────────────────────────────────────────────────

// Resubmit persists the revised documents in stager and returns the
// application to review. At least one document has to persist.
func (s *ApplicationService) Resubmit(ctx context.Context, actor Actor, id string, stager *submission.Stager) (*workflow.Application, []*submission.Document, error) {
	app, err := s.apps.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if app.UserID != actor.UserID {
		return nil, nil, ErrForbidden
	}
	if app.Status != workflow.StatusNeedsRevision {
		return nil, nil, workflow.ErrInvalidTransition
	}
	if stager == nil || stager.Len() == 0 {
		return nil, nil, workflow.ErrNoDocumentsProvided
	}

	persisted, err := stager.Persist(ctx, app.ID, actor.UserID)
	s.recordUploads(app.ID, persisted, stager.Failed())
	if err != nil {
		return nil, stager.Documents(), err
	}

	expected := app.Version
	rec, err := s.engine.Resubmit(app, persisted, actor.UserID)
	if err != nil {
		return nil, stager.Documents(), err
	}
	if err := s.apps.RecordTransition(ctx, app, &rec, expected); err != nil {
		return nil, stager.Documents(), err
	}
	metrics.RecordTransition(string(app.Status))

	s.log.Info().
		Str("application_id", app.ID).
		Int("documents", len(persisted)).
		Msg("Application resubmitted")

	s.notify(ctx, client.EventApplicationResubmitted, app, actor.UserID, lastReviewer(app), map[string]any{
		"documents": len(persisted),
	})
	return app, stager.Documents(), nil
}

// ── Comments ─────────────────────────────────────────────────────────────────

// AddClientComment appends an applicant comment to the history.
func (s *ApplicationService) AddClientComment(ctx context.Context, actor Actor, id, message string) (*workflow.HistoryRecord, error) {
	app, err := s.apps.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.UserID != actor.UserID {
		return nil, ErrForbidden
	}

	expected := app.Version
	rec, err := s.engine.AddClientComment(app, message, actor.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.apps.RecordTransition(ctx, app, &rec, expected); err != nil {
		return nil, err
	}

	s.notify(ctx, client.EventApplicationCommentAdded, app, actor.UserID, lastReviewer(app), map[string]any{
		"comment": rec.Comment,
	})
	return &rec, nil
}

// ── Delete ───────────────────────────────────────────────────────────────────

// Delete withdraws a pending application owned by actor.
func (s *ApplicationService) Delete(ctx context.Context, actor Actor, id string) error {
	app, err := s.apps.Get(ctx, id)
	if err != nil {
		return err
	}
	if app.UserID != actor.UserID {
		return ErrForbidden
	}
	if app.Status.IsTerminal() {
		return workflow.ErrApplicationClosed
	}
	if err := s.apps.Delete(ctx, id); err != nil {
		return err
	}

	s.log.Info().Str("application_id", id).Str("user_id", actor.UserID).Msg("Application withdrawn")
	return nil
}

// ── Queries ──────────────────────────────────────────────────────────────────

// Get returns an application visible to actor.
func (s *ApplicationService) Get(ctx context.Context, actor Actor, id string) (*workflow.Application, error) {
	app, err := s.apps.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canView(actor, app) {
		return nil, ErrForbidden
	}
	if err := workflow.CheckInvariants(app); err != nil {
		s.log.Error().Err(err).Str("application_id", id).Msg("Stored application is inconsistent")
	}
	return app, nil
}

// List returns applications visible to actor. Applicants only see their own.
func (s *ApplicationService) List(ctx context.Context, actor Actor, filter repository.ApplicationFilter) ([]*workflow.Application, int, error) {
	if !s.IsAdmin(actor) {
		filter.UserID = actor.UserID
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, 0, errors.InvalidInput("to", "must be after from")
	}
	return s.apps.List(ctx, filter)
}

// Timeline returns the progress steps of an application.
func (s *ApplicationService) Timeline(ctx context.Context, actor Actor, id string) ([]workflow.TimelineStep, error) {
	app, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return slices.Collect(app.Timeline(s.policy)), nil
}

// Documents returns the persisted documents of an application.
func (s *ApplicationService) Documents(ctx context.Context, actor Actor, id string) ([]*submission.Document, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.docs.ListByApplication(ctx, id)
}

// DownloadDocument returns a persisted document and its content.
func (s *ApplicationService) DownloadDocument(ctx context.Context, actor Actor, documentID string) (*submission.Document, []byte, error) {
	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.Get(ctx, actor, doc.ApplicationID); err != nil {
		return nil, nil, err
	}
	data, err := s.blobs.Download(ctx, doc.StorageRef)
	if err != nil {
		return nil, nil, err
	}
	return doc, data, nil
}

func (s *ApplicationService) canView(actor Actor, app *workflow.Application) bool {
	return s.IsAdmin(actor) || app.UserID == actor.UserID
}

func (s *ApplicationService) recordUploads(applicationID string, persisted, failed []*submission.Document) {
	for _, d := range persisted {
		metrics.RecordDocumentUpload(true, d.Size)
	}
	for _, d := range failed {
		metrics.RecordDocumentUpload(false, d.Size)
		s.log.Warn().Err(d.Err).
			Str("application_id", applicationID).
			Str("tracking_id", d.TrackingID).
			Str("file_name", d.FileName).
			Msg("Document upload failed")
	}
}

func (s *ApplicationService) notify(ctx context.Context, event string, app *workflow.Application, actorID string, recipients []string, payload map[string]any) {
	if s.notifier == nil {
		return
	}
	s.notifier.PublishApplicationEvent(ctx, event, app.ID, app.ReferenceNumber(), actorID, recipients, payload)
}

// lastReviewer returns the reviewer who last changed the status, if any.
func lastReviewer(app *workflow.Application) []string {
	for i := len(app.History) - 1; i >= 0; i-- {
		if r := app.History[i]; r.Actor == workflow.ActorAdmin && r.ActorID != "" {
			return []string{r.ActorID}
		}
	}
	return nil
}
