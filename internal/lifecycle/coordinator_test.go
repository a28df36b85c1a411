package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/alerthub-service/internal/domain"
	"github.com/couchcryptid/alerthub-service/internal/observability"
)

var now = time.Date(2024, 2, 6, 10, 17, 0, 0, time.UTC)

// fakeStore applies a transaction's writes only when fn returns nil.
type fakeStore struct {
	mu           sync.Mutex
	reports      map[int64]domain.Report
	municipality map[int64]string
	outbox       []domain.EnrichmentTask
	nextID       int64

	insertErr  error
	enqueueErr error
	archiveErr map[int64]error

	commits   int
	rollbacks int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		reports:      make(map[int64]domain.Report),
		municipality: make(map[int64]string),
		archiveErr:   make(map[int64]error),
	}
}

func (s *fakeStore) seed(d domain.DisasterType, municipality string, status domain.Status) int64 {
	s.nextID++
	r := domain.Report{ID: s.nextID, DisasterType: d, Status: status, CreatedAt: now}
	if status.IsTerminal() {
		at := now.Add(-time.Hour)
		r.ArchivedAt = &at
	}
	s.reports[r.ID] = r
	s.municipality[r.ID] = municipality
	return r.ID
}

func (s *fakeStore) InTx(ctx context.Context, fn func(ctx context.Context, tx domain.ReportTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &fakeTx{
		store:   s,
		reports: maps.Clone(s.reports),
		outbox:  slices.Clone(s.outbox),
		nextID:  s.nextID,
	}
	if err := fn(ctx, tx); err != nil {
		s.rollbacks++
		return err
	}
	s.reports = tx.reports
	s.outbox = tx.outbox
	s.nextID = tx.nextID
	s.commits++
	return nil
}

type fakeTx struct {
	store   *fakeStore
	reports map[int64]domain.Report
	outbox  []domain.EnrichmentTask
	nextID  int64
}

func (t *fakeTx) InsertReport(_ context.Context, r domain.Report) (int64, error) {
	if t.store.insertErr != nil {
		return 0, t.store.insertErr
	}
	t.nextID++
	r.ID = t.nextID
	t.reports[r.ID] = r
	return r.ID, nil
}

func (t *fakeTx) EnqueueEnrichment(_ context.Context, task domain.EnrichmentTask) error {
	if t.store.enqueueErr != nil {
		return t.store.enqueueErr
	}
	t.outbox = append(t.outbox, task)
	return nil
}

func (t *fakeTx) LockActiveReports(_ context.Context, d domain.DisasterType, municipality string) ([]int64, error) {
	var ids []int64
	for id, r := range t.reports {
		if r.Status == domain.StatusPending && r.DisasterType == d && t.store.municipality[id] == municipality {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (t *fakeTx) ArchiveReport(_ context.Context, id int64, outcome domain.Status, at time.Time) (bool, error) {
	if err := t.store.archiveErr[id]; err != nil {
		return false, err
	}
	r, ok := t.reports[id]
	if !ok || r.Status != domain.StatusPending {
		return false, nil
	}
	r.Status = outcome
	r.ArchivedAt = &at
	t.reports[id] = r
	return true, nil
}

type memoryImages struct {
	mu       sync.Mutex
	stored   map[string]string
	deleted  []string
	storeErr error
}

func newMemoryImages() *memoryImages {
	return &memoryImages{stored: make(map[string]string)}
}

func (m *memoryImages) Store(_ context.Context, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return m.storeErr
	}
	m.stored[name] = string(data)
	return nil
}

func (m *memoryImages) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stored, name)
	m.deleted = append(m.deleted, name)
	return nil
}

type fakeBacklog struct {
	missing     []domain.Report
	locales     []string
	maxEnqueues int
	limit       int
	enqueued   []domain.EnrichmentTask
	enqueueErr error
}

func (b *fakeBacklog) ReportsMissingPlaceNames(_ context.Context, locales []string, maxEnqueues, limit int) ([]domain.Report, error) {
	b.locales, b.maxEnqueues, b.limit = locales, maxEnqueues, limit
	return b.missing, nil
}

func (b *fakeBacklog) EnqueueEnrichment(_ context.Context, tasks []domain.EnrichmentTask) error {
	if b.enqueueErr != nil {
		return b.enqueueErr
	}
	b.enqueued = append(b.enqueued, tasks...)
	return nil
}

type fixture struct {
	coord   *Coordinator
	store   *fakeStore
	images  *memoryImages
	backlog *fakeBacklog
	metrics *observability.Metrics
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { domain.SetClock(nil) })

	f := fixture{
		store:   newFakeStore(),
		images:  newMemoryImages(),
		backlog: &fakeBacklog{},
		metrics: observability.NewMetricsForTesting(),
	}
	f.coord = New(f.store, f.backlog, f.images, []string{"el-GR", "en-US"}, 5, f.metrics,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.coord.newName = func() string { return "5f1c2b" }
	return f
}

func validRequest() CreateRequest {
	return CreateRequest{
		DisasterType: "Flood",
		Longitude:    23.7275,
		Latitude:     37.9838,
		Description:  "river overflow near the bridge",
		Culture:      "el-gr",
		UserID:       "user-1",
	}
}

func TestCreate_WithoutImage(t *testing.T) {
	f := newFixture(t)

	id, err := f.coord.Create(context.Background(), validRequest())

	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	r := f.store.reports[id]
	assert.Equal(t, domain.Flood, r.DisasterType)
	assert.Equal(t, domain.StatusPending, r.Status)
	assert.True(t, r.IsActive())
	assert.Nil(t, r.ArchivedAt)
	assert.Equal(t, domain.PlaceholderImage, r.ImageName)
	assert.Equal(t, "el-GR", r.Culture)
	assert.Equal(t, now, r.CreatedAt)

	require.Len(t, f.store.outbox, 1)
	assert.Equal(t, domain.EnrichmentTask{ReportID: id, Longitude: 23.7275, Latitude: 37.9838, EnqueuedAt: now}, f.store.outbox[0])
	assert.Equal(t, 1, f.store.commits)
}

func TestCreate_DisasterTypeByIndex(t *testing.T) {
	f := newFixture(t)
	req := validRequest()
	req.DisasterType = "6"

	id, err := f.coord.Create(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, domain.Tsunami, f.store.reports[id].DisasterType)
}

func TestCreate_WithImage(t *testing.T) {
	f := newFixture(t)
	req := validRequest()
	req.Image = &Image{ContentType: "image/png", Body: strings.NewReader("png-bytes")}

	id, err := f.coord.Create(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "5f1c2b.png", f.store.reports[id].ImageName)
	assert.Equal(t, "png-bytes", f.images.stored["5f1c2b.png"])
}

func TestCreate_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	req := CreateRequest{
		DisasterType: "Meteor",
		Longitude:    181,
		Latitude:     -91,
		Description:  strings.Repeat("x", domain.MaxDescriptionLen+1),
		Culture:      "fr-FR",
		Image:        &Image{ContentType: "application/pdf", Body: strings.NewReader("%PDF")},
	}

	_, err := f.coord.Create(context.Background(), req)

	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, map[string]string{
		"DisasterType": "unknown disaster type",
		"Longitude":    "must be between -180 and 180",
		"Latitude":     "must be between -90 and 90",
		"Description":  "must be at most 2000 characters",
		"Culture":      "unsupported culture",
		"UserId":       "is required",
		"ImageFile":    "must be an image",
	}, ve.Fields)
	assert.Empty(t, f.store.reports)
	assert.Empty(t, f.images.stored)
	assert.Zero(t, f.store.commits+f.store.rollbacks)
}

func TestValidate_FieldLimits(t *testing.T) {
	f := newFixture(t)

	req := validRequest()
	req.Description = strings.Repeat("x", domain.MaxDescriptionLen)
	req.UserID = strings.Repeat("u", domain.MaxUserIDLen)
	req.Image = &Image{ContentType: "image/" + strings.Repeat("p", domain.MaxImageNameLen-imageIDLen-1)}
	require.NoError(t, f.coord.Validate(req))

	req.UserID += "u"
	req.Image.ContentType += "p"
	err := f.coord.Validate(req)

	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, map[string]string{
		"UserId":    "must be at most 450 characters",
		"ImageFile": "must be an image",
	}, ve.Fields)
}

func TestCreate_UploadFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.images.storeErr = errors.New("disk full")
	req := validRequest()
	req.Image = &Image{ContentType: "image/jpeg", Body: strings.NewReader("jpg")}

	_, err := f.coord.Create(context.Background(), req)

	require.ErrorIs(t, err, ErrCreateFailed)
	assert.Empty(t, f.store.reports)
	assert.Empty(t, f.store.outbox)
	assert.Equal(t, 1, f.store.rollbacks)
	assert.Empty(t, f.images.deleted, "nothing was stored, nothing to clean up")
}

func TestCreate_EnqueueFailureRemovesImage(t *testing.T) {
	f := newFixture(t)
	f.store.enqueueErr = errors.New("connection reset")
	req := validRequest()
	req.Image = &Image{ContentType: "image/png", Body: strings.NewReader("png")}

	_, err := f.coord.Create(context.Background(), req)

	require.ErrorIs(t, err, ErrCreateFailed)
	assert.Empty(t, f.store.reports)
	assert.Equal(t, []string{"5f1c2b.png"}, f.images.deleted)
	assert.Empty(t, f.images.stored)
}

func TestCreate_InsertFailure(t *testing.T) {
	f := newFixture(t)
	f.store.insertErr = errors.New("unique violation")

	_, err := f.coord.Create(context.Background(), validRequest())

	require.ErrorIs(t, err, ErrCreateFailed)
	assert.Empty(t, f.store.outbox)
}

func TestTriage_ApprovesMatchingActiveReports(t *testing.T) {
	f := newFixture(t)
	a1 := f.store.seed(domain.Flood, "Athens", domain.StatusPending)
	a2 := f.store.seed(domain.Flood, "Athens", domain.StatusPending)
	patras := f.store.seed(domain.Flood, "Patras", domain.StatusPending)
	fire := f.store.seed(domain.Fire, "Athens", domain.StatusPending)
	old := f.store.seed(domain.Flood, "Athens", domain.StatusRejected)

	n, err := f.coord.Approve(context.Background(), domain.Flood.Index(), "Athens")

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for _, id := range []int64{a1, a2} {
		r := f.store.reports[id]
		assert.Equal(t, domain.StatusApproved, r.Status)
		require.NotNil(t, r.ArchivedAt)
		assert.Equal(t, now, *r.ArchivedAt)
	}
	assert.Equal(t, domain.StatusPending, f.store.reports[patras].Status)
	assert.Equal(t, domain.StatusPending, f.store.reports[fire].Status)
	assert.Equal(t, domain.StatusRejected, f.store.reports[old].Status)
}

func TestTriage_MunicipalityMatchesExactly(t *testing.T) {
	f := newFixture(t)
	athens := f.store.seed(domain.Flood, "Athens", domain.StatusPending)

	for _, name := range []string{"  Athens ", "athens", "Athen"} {
		n, err := f.coord.Approve(context.Background(), domain.Flood.Index(), name)

		require.NoError(t, err, name)
		assert.Zero(t, n, name)
	}
	assert.Equal(t, domain.StatusPending, f.store.reports[athens].Status)
	assert.Nil(t, f.store.reports[athens].ArchivedAt)
}

func TestTriage_FailureMidBatchChangesNothing(t *testing.T) {
	f := newFixture(t)
	ids := []int64{
		f.store.seed(domain.Flood, "Athens", domain.StatusPending),
		f.store.seed(domain.Flood, "Athens", domain.StatusPending),
		f.store.seed(domain.Flood, "Athens", domain.StatusPending),
	}
	f.store.archiveErr[ids[1]] = errors.New("connection reset")

	n, err := f.coord.Reject(context.Background(), domain.Flood.Index(), "Athens")

	require.ErrorIs(t, err, ErrTriageFailed)
	assert.Zero(t, n)
	for _, id := range ids {
		assert.Equal(t, domain.StatusPending, f.store.reports[id].Status)
		assert.Nil(t, f.store.reports[id].ArchivedAt)
	}
	assert.Equal(t, 1, f.store.rollbacks)
}

func TestTriage_RepeatIsNoop(t *testing.T) {
	f := newFixture(t)
	f.store.seed(domain.Storm, "Patras", domain.StatusPending)

	n, err := f.coord.Approve(context.Background(), domain.Storm.Index(), "Patras")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.coord.Reject(context.Background(), domain.Storm.Index(), "Patras")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, domain.StatusApproved, f.store.reports[1].Status)
}

func TestTriage_NoMatches(t *testing.T) {
	f := newFixture(t)

	n, err := f.coord.Approve(context.Background(), domain.Earthquake.Index(), "Nowhere")

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, f.store.commits)
}

func TestTriage_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.Triage(context.Background(), 42, "", domain.StatusPending)

	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "disasterIndex")
	assert.Contains(t, ve.Fields, "municipality")
	assert.Contains(t, ve.Fields, "outcome")
	assert.Zero(t, f.store.commits+f.store.rollbacks)
}

func TestRequeueIncomplete(t *testing.T) {
	f := newFixture(t)
	f.backlog.missing = []domain.Report{
		{ID: 3, Longitude: 21.7346, Latitude: 38.2466},
		{ID: 5, Longitude: 23.7275, Latitude: 37.9838},
	}

	n, err := f.coord.RequeueIncomplete(context.Background(), 100)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"el-GR", "en-US"}, f.backlog.locales)
	assert.Equal(t, 5, f.backlog.maxEnqueues)
	assert.Equal(t, 100, f.backlog.limit)
	assert.Equal(t, []domain.EnrichmentTask{
		{ReportID: 3, Longitude: 21.7346, Latitude: 38.2466, EnqueuedAt: now},
		{ReportID: 5, Longitude: 23.7275, Latitude: 37.9838, EnqueuedAt: now},
	}, f.backlog.enqueued)
}

func TestRequeueIncomplete_Nothing(t *testing.T) {
	f := newFixture(t)

	n, err := f.coord.RequeueIncomplete(context.Background(), 10)

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.backlog.enqueued)
}

func TestImageExtension(t *testing.T) {
	tests := map[string]string{
		"image/png":                "png",
		"image/JPEG":               "jpeg",
		"image/svg+xml":            "svg",
		"image/webp; charset=x":    "webp",
		"application/octet-stream": "",
		"image/":                   "",
		"image/../x":               "",
	}
	for in, want := range tests {
		assert.Equal(t, want, imageExtension(in), in)
	}
}
