package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/formulations/internal/attachment"
	"github.com/JonMunkholm/formulations/internal/logging"
)

// DefaultBatchSize is the number of records sent to the store per write.
const DefaultBatchSize = 500

// Uploader stores submission attachments.
type Uploader interface {
	Upload(ctx context.Context, f attachment.File) (attachment.Stored, error)
}

// Notifier delivers the confirmation of a stored submission.
type Notifier interface {
	NotifySubmission(ctx context.Context, rec Record) error
}

// Recorder receives service counters. internal/metrics provides the
// Prometheus implementation.
type Recorder interface {
	ImportRows(accepted, rejected int)
	RecordsWritten(inserted, skipped int)
	Submission(result string)
	AttachmentFailure()
}

// Submission outcomes reported to the Recorder.
const (
	ResultCreated   = "created"
	ResultInvalid   = "invalid"
	ResultDuplicate = "duplicate"
	ResultFailed    = "failed"
)

type nopRecorder struct{}

func (nopRecorder) ImportRows(int, int)     {}
func (nopRecorder) RecordsWritten(int, int) {}
func (nopRecorder) Submission(string)       {}
func (nopRecorder) AttachmentFailure()      {}

type nopNotifier struct{}

func (nopNotifier) NotifySubmission(context.Context, Record) error { return nil }

// Service provides the import and submission operations over a RecordStore.
type Service struct {
	store      RecordStore
	normalizer *Normalizer
	uploader   Uploader
	notifier   Notifier
	metrics    Recorder
	limiter    *ImportLimiter
	batchSize  int
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithUploader sets the attachment store. Without one, submissions that
// carry a file fail with ErrAttachmentUpload.
func WithUploader(u Uploader) Option {
	return func(s *Service) { s.uploader = u }
}

// WithNotifier sets the confirmation notifier.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.metrics = r }
}

// WithBatchSize sets how many records are written per store call.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithImportLimiter bounds concurrent imports. Without one imports are
// not limited.
func WithImportLimiter(l *ImportLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithClock overrides the time source used for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNormalizer replaces the default header mapping.
func WithNormalizer(n *Normalizer) Option {
	return func(s *Service) { s.normalizer = n }
}

// NewService creates a new Service instance.
func NewService(store RecordStore, opts ...Option) *Service {
	s := &Service{
		store:      store,
		normalizer: DefaultNormalizer(),
		notifier:   nopNotifier{},
		metrics:    nopRecorder{},
		batchSize:  DefaultBatchSize,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying record store.
func (s *Service) Store() RecordStore {
	return s.store
}

// Import validates rows and inserts the accepted ones, skipping CURPs that
// are already stored or repeated within the batch.
//
// ErrEmptyBatch is returned when rows is empty and ErrNothingInserted when
// every row was rejected; in the latter case the result still carries the
// row errors. Store failures abort the import.
func (s *Service) Import(ctx context.Context, rows []Row) (ImportResult, error) {
	logger := logging.WithFields(ctx, "op", "import")

	if len(rows) == 0 {
		return ImportResult{}, ErrEmptyBatch
	}

	records, rowErrs := s.normalizer.Normalize(rows)
	result := ImportResult{
		Total:    len(rows),
		Accepted: len(records),
		Errors:   rowErrs,
	}
	s.metrics.ImportRows(len(records), len(rowErrs))

	if len(records) == 0 {
		logger.Info("import rejected every row", "rows", len(rows))
		return result, ErrNothingInserted
	}

	unique := dedupeByCURP(records)
	result.Skipped = len(records) - len(unique)

	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx); err != nil {
			return result, fmt.Errorf("wait for import slot: %w", err)
		}
		defer s.limiter.Release()
	}

	now := s.now().UTC()
	for i := range unique {
		unique[i].CreatedAt = now
		unique[i].Active = true
	}

	for start := 0; start < len(unique); start += s.batchSize {
		end := min(start+s.batchSize, len(unique))

		written, err := s.store.InsertMany(ctx, unique[start:end], InsertOnly)
		if err != nil {
			return result, fmt.Errorf("import records %d-%d: %w", start+1, end, err)
		}
		result.Inserted += written.Inserted
		result.Skipped += written.Skipped
	}
	s.metrics.RecordsWritten(result.Inserted, result.Skipped)

	logger.Info("import completed",
		"rows", result.Total,
		"accepted", result.Accepted,
		"inserted", result.Inserted,
		"skipped", result.Skipped,
		"rejected", len(result.Errors),
	)
	return result, nil
}

// WaitForImports blocks until running imports finish or ctx ends.
func (s *Service) WaitForImports(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.WaitForDrain(ctx)
}

// ImportCSV parses an uploaded CSV file and imports its rows.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader) (ImportResult, error) {
	rows, err := ParseCSVRows(r)
	if err != nil {
		return ImportResult{}, err
	}
	return s.Import(ctx, rows)
}

// Submit validates a single submission, stores its attachment if one is
// given, inserts the record and sends the confirmation.
//
// Validation problems are returned as *ValidationError. A CURP already
// stored yields ErrDuplicateKey. The notification is best effort; its
// failure is logged and does not fail the submission.
func (s *Service) Submit(ctx context.Context, sub Submission, file *attachment.File) (Record, error) {
	logger := logging.WithFields(ctx, "op", "submit")

	rec, err := sub.Validate()
	if err != nil {
		s.metrics.Submission(ResultInvalid)
		return Record{}, err
	}

	exists, err := s.store.Exists(ctx, rec.CURP)
	if err != nil {
		s.metrics.Submission(ResultFailed)
		return Record{}, fmt.Errorf("check curp: %w", err)
	}
	if exists {
		s.metrics.Submission(ResultDuplicate)
		return Record{}, ErrDuplicateKey
	}

	if file != nil {
		stored, err := s.upload(ctx, *file)
		if err != nil {
			s.metrics.AttachmentFailure()
			s.metrics.Submission(ResultFailed)
			return Record{}, err
		}
		rec.PDFURL = stored.ViewURL
		logger.Info("attachment stored",
			"public_id", stored.PublicID,
			"bytes", file.Size(),
			"content_type", file.ContentType,
		)
	}

	rec.CreatedAt = s.now().UTC()
	rec.Active = true

	created, err := s.store.Create(ctx, rec)
	if err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			s.metrics.Submission(ResultDuplicate)
			return Record{}, err
		}
		s.metrics.Submission(ResultFailed)
		return Record{}, fmt.Errorf("create record: %w", err)
	}
	s.metrics.Submission(ResultCreated)

	if err := s.notifier.NotifySubmission(ctx, created); err != nil {
		logger.Warn("confirmation not delivered", "id", created.ID, "error", err)
	}

	logger.Info("submission stored",
		"id", created.ID,
		"curp", MaskCURP(created.CURP),
		"ip", GetIPAddressFromContext(ctx),
		"user_agent", GetUserAgentFromContext(ctx),
	)
	return created, nil
}

func (s *Service) upload(ctx context.Context, f attachment.File) (attachment.Stored, error) {
	if s.uploader == nil {
		return attachment.Stored{}, fmt.Errorf("%w: no attachment store configured", ErrAttachmentUpload)
	}
	stored, err := s.uploader.Upload(ctx, f)
	if err != nil {
		return attachment.Stored{}, fmt.Errorf("%w: %v", ErrAttachmentUpload, err)
	}
	return stored, nil
}

// List returns every stored record, newest first.
func (s *Service) List(ctx context.Context) ([]Record, error) {
	records, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// Ping checks the store, if it supports it.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// dedupeByCURP keeps the first record of every CURP, preserving order.
func dedupeByCURP(records []Record) []Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		if _, dup := seen[rec.CURP]; dup {
			continue
		}
		seen[rec.CURP] = struct{}{}
		out = append(out, rec)
	}
	return out
}
