package core_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/formulations/internal/attachment"
	"github.com/JonMunkholm/formulations/internal/core"
	"github.com/JonMunkholm/formulations/internal/store/memstore"
)

const curpA = "ABCD010101HDFRRL09"

var fixedNow = time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)

type fakeUploader struct {
	calls int
	err   error
}

func (u *fakeUploader) Upload(_ context.Context, f attachment.File) (attachment.Stored, error) {
	u.calls++
	if u.err != nil {
		return attachment.Stored{}, u.err
	}
	urls := attachment.ResolveURLs("https://res.cloudinary.com/demo/image/upload/v1/evidencias/x.pdf", f.Name, f.ContentType)
	return attachment.Stored{URLs: urls, PublicID: "evidencias/x.pdf"}, nil
}

type fakeNotifier struct {
	sent []core.Record
	err  error
}

func (n *fakeNotifier) NotifySubmission(_ context.Context, rec core.Record) error {
	n.sent = append(n.sent, rec)
	return n.err
}

type countingRecorder struct {
	accepted, rejected int
	inserted, skipped  int
	submissions        map[string]int
	attachmentFailures int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{submissions: make(map[string]int)}
}

func (r *countingRecorder) ImportRows(accepted, rejected int) {
	r.accepted += accepted
	r.rejected += rejected
}

func (r *countingRecorder) RecordsWritten(inserted, skipped int) {
	r.inserted += inserted
	r.skipped += skipped
}

func (r *countingRecorder) Submission(result string) { r.submissions[result]++ }
func (r *countingRecorder) AttachmentFailure()       { r.attachmentFailures++ }

// failingStore reports every operation as a storage failure.
type failingStore struct{}

func (failingStore) InsertMany(context.Context, []core.Record, core.UpsertPolicy) (core.WriteResult, error) {
	return core.WriteResult{}, core.ErrStorageUnavailable
}
func (failingStore) Create(context.Context, core.Record) (core.Record, error) {
	return core.Record{}, core.ErrStorageUnavailable
}
func (failingStore) Exists(context.Context, string) (bool, error) {
	return false, core.ErrStorageUnavailable
}
func (failingStore) List(context.Context) ([]core.Record, error) {
	return nil, core.ErrStorageUnavailable
}

func newService(store core.RecordStore, opts ...core.Option) *core.Service {
	opts = append([]core.Option{core.WithClock(func() time.Time { return fixedNow })}, opts...)
	return core.NewService(store, opts...)
}

func TestImport_EmptyBatch(t *testing.T) {
	_, err := newService(memstore.New()).Import(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrEmptyBatch)
}

func TestImport_AverageOutOfRange(t *testing.T) {
	store := memstore.New()
	res, err := newService(store).Import(context.Background(), []core.Row{
		{"curp": curpA, "promedio": "11"},
	})

	assert.ErrorIs(t, err, core.ErrNothingInserted)
	assert.Equal(t, []core.RowError{{Row: 1, Reason: "Promedio fuera de rango."}}, res.Errors)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 0, store.Len())
}

func TestImport_MissingCURPNeverWritten(t *testing.T) {
	store := memstore.New()
	res, err := newService(store).Import(context.Background(), []core.Row{
		{"nombre": "Sin curp"},
		{"curp": curpA},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, []core.RowError{{Row: 1, Reason: core.MsgMissingCURP}}, res.Errors)
	assert.Equal(t, 1, store.Len())
}

func TestImport_DuplicateInBatch(t *testing.T) {
	store := memstore.New()
	res, err := newService(store).Import(context.Background(), []core.Row{
		{"curp": curpA, "nombre": "Primero"},
		{"curp": strings.ToLower(curpA), "nombre": "Segundo"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Accepted)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, store.Len())

	rec, ok := store.Get(curpA)
	require.True(t, ok)
	assert.Equal(t, "Primero", rec.FirstName)
}

func TestImport_IdempotentAcrossBatches(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newService(store)

	rows := []core.Row{{"curp": curpA, "nombre": "Ana"}}
	first, err := svc.Import(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Inserted)

	second, err := svc.Import(ctx, []core.Row{{"curp": curpA, "nombre": "Cambiado"}})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 1, second.Skipped)

	assert.Equal(t, 1, store.Len())
	rec, _ := store.Get(curpA)
	assert.Equal(t, "Ana", rec.FirstName)
}

func TestImport_StampsRecords(t *testing.T) {
	store := memstore.New()
	_, err := newService(store).Import(context.Background(), []core.Row{{"curp": curpA}})
	require.NoError(t, err)

	rec, _ := store.Get(curpA)
	assert.True(t, rec.Active)
	assert.Equal(t, fixedNow, rec.CreatedAt)
}

func TestImport_Batches(t *testing.T) {
	store := memstore.New()
	rows := make([]core.Row, 0, 7)
	for _, prefix := range []string{"AAAA", "BBBB", "CCCC", "DDDD", "EEEE", "FFFF", "GGGG"} {
		rows = append(rows, core.Row{"curp": prefix + "010101HDFRRL09"})
	}

	res, err := newService(store, core.WithBatchSize(3)).Import(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Inserted)
	assert.Equal(t, 7, store.Len())
}

func TestImport_StoreFailure(t *testing.T) {
	_, err := newService(failingStore{}).Import(context.Background(), []core.Row{{"curp": curpA}})
	assert.ErrorIs(t, err, core.ErrStorageUnavailable)
}

func TestImport_BusyLimiter(t *testing.T) {
	limiter := core.NewImportLimiter(1, 10*time.Millisecond)
	require.NoError(t, limiter.Acquire(context.Background()))

	store := memstore.New()
	svc := newService(store, core.WithImportLimiter(limiter))

	_, err := svc.Import(context.Background(), []core.Row{{"curp": curpA}})
	assert.ErrorIs(t, err, core.ErrTooManyImports)
	assert.Equal(t, 0, store.Len())

	limiter.Release()
	res, err := svc.Import(context.Background(), []core.Row{{"curp": curpA}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Zero(t, limiter.Active())
	assert.NoError(t, svc.WaitForImports(context.Background()))
}

func TestImport_Metrics(t *testing.T) {
	rec := newCountingRecorder()
	store := memstore.New()
	_, _ = store.Create(context.Background(), core.Record{CURP: curpA})

	_, err := newService(store, core.WithRecorder(rec)).Import(context.Background(), []core.Row{
		{"curp": curpA},
		{"curp": "ZZZZ010101HDFRRL09"},
		{"curp": "corta"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, rec.accepted)
	assert.Equal(t, 1, rec.rejected)
	assert.Equal(t, 1, rec.inserted)
	assert.Equal(t, 1, rec.skipped)
}

func TestImportCSV(t *testing.T) {
	store := memstore.New()
	csv := "CURP,Correo Personal\n" + curpA + ",ana@example.com\n"

	res, err := newService(store).ImportCSV(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)

	rec, _ := store.Get(curpA)
	assert.Equal(t, "ana@example.com", rec.PersonalEmail)
}

func TestImportCSV_NoRows(t *testing.T) {
	_, err := newService(memstore.New()).ImportCSV(context.Background(), strings.NewReader("curp\n"))
	assert.ErrorIs(t, err, core.ErrEmptyBatch)
}

func submission() core.Submission {
	return core.Submission{
		FirstName:       "Ana",
		PaternalSurname: "López",
		MaternalSurname: "Díaz",
		CURP:            curpA,
		HomePhone:       "5550000000",
		MobilePhone:     "5551111111",
		PersonalEmail:   "ana@example.com",
		Institution:     "Universidad",
		Program:         "Derecho",
		Average:         "9",
		Status:          "regular",
	}
}

func TestSubmit_InvalidEmailNotPersisted(t *testing.T) {
	store := memstore.New()
	sub := submission()
	sub.PersonalEmail = "not-an-email"

	_, err := newService(store).Submit(context.Background(), sub, nil)
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Equal(t, "Correo personal inválido.", core.ValidationMessage(err))
	assert.Equal(t, 0, store.Len())
}

func TestSubmit_WithAttachment(t *testing.T) {
	store := memstore.New()
	up := &fakeUploader{}
	notifier := &fakeNotifier{}
	metrics := newCountingRecorder()
	svc := newService(store, core.WithUploader(up), core.WithNotifier(notifier), core.WithRecorder(metrics))

	file := &attachment.File{Name: "kardex.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")}
	rec, err := svc.Submit(context.Background(), submission(), file)
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "https://res.cloudinary.com/demo/raw/upload/v1/evidencias/x.pdf", rec.PDFURL)
	assert.Equal(t, fixedNow, rec.CreatedAt)
	assert.True(t, rec.Active)
	assert.Equal(t, 1, up.calls)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, rec.ID, notifier.sent[0].ID)
	assert.Equal(t, 1, metrics.submissions[core.ResultCreated])
}

func TestSubmit_Duplicate(t *testing.T) {
	store := memstore.New()
	up := &fakeUploader{}
	svc := newService(store, core.WithUploader(up))

	_, err := svc.Submit(context.Background(), submission(), nil)
	require.NoError(t, err)

	file := &attachment.File{Name: "a.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}
	_, err = svc.Submit(context.Background(), submission(), file)
	assert.ErrorIs(t, err, core.ErrDuplicateKey)
	assert.Equal(t, 0, up.calls, "attachment must not be uploaded for a duplicate")
	assert.Equal(t, 1, store.Len())
}

func TestSubmit_UploadFailure(t *testing.T) {
	store := memstore.New()
	metrics := newCountingRecorder()
	svc := newService(store,
		core.WithUploader(&fakeUploader{err: errors.New("503 from cloud")}),
		core.WithRecorder(metrics),
	)

	file := &attachment.File{Name: "a.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}
	_, err := svc.Submit(context.Background(), submission(), file)
	assert.ErrorIs(t, err, core.ErrAttachmentUpload)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 1, metrics.attachmentFailures)
}

func TestSubmit_NoUploaderConfigured(t *testing.T) {
	file := &attachment.File{Name: "a.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}
	_, err := newService(memstore.New()).Submit(context.Background(), submission(), file)
	assert.ErrorIs(t, err, core.ErrAttachmentUpload)
}

func TestSubmit_NotificationFailureIgnored(t *testing.T) {
	store := memstore.New()
	svc := newService(store, core.WithNotifier(&fakeNotifier{err: errors.New("smtp down")}))

	_, err := svc.Submit(context.Background(), submission(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestSubmit_StoreFailure(t *testing.T) {
	_, err := newService(failingStore{}).Submit(context.Background(), submission(), nil)
	assert.ErrorIs(t, err, core.ErrStorageUnavailable)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newService(store)

	_, err := svc.Import(ctx, []core.Row{{"curp": curpA}, {"curp": "ZZZZ010101HDFRRL09"}})
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = newService(failingStore{}).List(ctx)
	assert.ErrorIs(t, err, core.ErrStorageUnavailable)
}

func TestPing(t *testing.T) {
	assert.NoError(t, newService(memstore.New()).Ping(context.Background()))
	assert.NoError(t, newService(failingStore{}).Ping(context.Background()))
}
