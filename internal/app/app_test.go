package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/newthinker/pushrelay/internal/config"
	"github.com/newthinker/pushrelay/internal/core"
	"github.com/newthinker/pushrelay/internal/notifier"
	"github.com/newthinker/pushrelay/internal/notifier/pushover"
	"github.com/newthinker/pushrelay/internal/storage/archive"
	"github.com/newthinker/pushrelay/internal/storage/delivery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePushover records posted forms and answers with a fixed status.
type fakePushover struct {
	mu     sync.Mutex
	forms  []url.Values
	status int
}

func (f *fakePushover) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	f.mu.Lock()
	f.forms = append(f.forms, r.PostForm)
	status := f.status
	f.mu.Unlock()

	w.Header().Set("X-Limit-App-Remaining", "9000")
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if status == http.StatusOK {
		w.Write([]byte(`{"status":1,"request":"req-1"}`))
		return
	}
	w.Write([]byte(`{"status":0,"errors":["user identifier is invalid"],"request":"req-2"}`))
}

func (f *fakePushover) calls() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.forms...)
}

type fakeRecorder struct {
	dispatches      int
	archiveFailures int
}

func (f *fakeRecorder) RecordDispatch(kind, outcome, reason string, duration float64) { f.dispatches++ }
func (f *fakeRecorder) SetProviderRemaining(int)                                     {}
func (f *fakeRecorder) RecordArchiveFailure()                                        { f.archiveFailures++ }

// failingStorage rejects every write.
type failingStorage struct{ archive.Storage }

func (failingStorage) Write(ctx context.Context, path string, data []byte) error {
	return errors.New("disk full")
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.LinkPrefix = "https://monitor.example.com/"
	cfg.Projects = map[string]config.ProjectConfig{
		"backend": {
			UserKey:         "u",
			APIToken:        "t",
			MinimumSeverity: "warning",
			NotifyOnlyNew:   true,
		},
		"quiet": {},
	}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, fake *fakePushover) *App {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	sender := pushover.New(notifier.Config{Endpoint: server.URL}, nil)
	a, err := New(cfg, sender, nil)
	require.NoError(t, err)
	return a
}

func TestNew_InvalidProject(t *testing.T) {
	cfg := testConfig()
	cfg.Projects["broken"] = config.ProjectConfig{MinimumSeverity: "loud"}

	_, err := New(cfg, pushover.New(notifier.Config{}, nil), nil)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))
}

func TestApp_HandleEvent_DeliversWithGroupLink(t *testing.T) {
	fake := &fakePushover{}
	a := newTestApp(t, testConfig(), fake)

	event := core.ErrorEvent{Group: "Boom", GroupID: 17, Severity: core.SeverityError, Message: "boom"}
	result, err := a.HandleEvent(context.Background(), "backend", event, true)
	require.NoError(t, err)

	assert.True(t, result.Delivered(), "unexpected result %+v", result)
	calls := fake.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "https://monitor.example.com/backend/group/17/", calls[0].Get("url"))
	assert.Equal(t, "More info", calls[0].Get("url_title"))

	stored, err := a.History().GetByID(context.Background(), result.ID)
	require.NoError(t, err)
	assert.Equal(t, "backend", stored.Project)
}

func TestApp_HandleEvent_KeepsExplicitURL(t *testing.T) {
	fake := &fakePushover{}
	a := newTestApp(t, testConfig(), fake)

	event := core.ErrorEvent{GroupID: 17, Severity: core.SeverityError, URL: "https://errors.example.com/x"}
	_, err := a.HandleEvent(context.Background(), "backend", event, true)
	require.NoError(t, err)

	assert.Equal(t, "https://errors.example.com/x", fake.calls()[0].Get("url"))
}

func TestApp_HandleEvent_UnknownProject(t *testing.T) {
	fake := &fakePushover{}
	a := newTestApp(t, testConfig(), fake)

	_, err := a.HandleEvent(context.Background(), "missing", core.ErrorEvent{}, true)
	assert.True(t, errors.Is(err, core.ErrProjectNotFound))
	assert.Empty(t, fake.calls())

	n, _ := a.History().Count(context.Background(), delivery.ListFilter{})
	assert.Equal(t, 0, n)
}

func TestApp_HandleEvent_SkipsAreRecorded(t *testing.T) {
	fake := &fakePushover{}
	a := newTestApp(t, testConfig(), fake)
	ctx := context.Background()

	r1, err := a.HandleEvent(ctx, "backend", core.ErrorEvent{Severity: core.SeverityError}, false)
	require.NoError(t, err)
	assert.True(t, r1.Skipped())

	r2, err := a.HandleEvent(ctx, "quiet", core.ErrorEvent{Severity: core.SeverityCritical}, true)
	require.NoError(t, err)
	assert.Equal(t, "NOT_CONFIGURED", r2.Reason)

	assert.Empty(t, fake.calls())
	n, _ := a.History().Count(ctx, delivery.ListFilter{Outcome: core.OutcomeSkipped})
	assert.Equal(t, 2, n)
}

func TestApp_HandleAlert(t *testing.T) {
	fake := &fakePushover{}
	a := newTestApp(t, testConfig(), fake)

	result, err := a.HandleAlert(context.Background(), "backend", core.Alert{Message: "queue backlog"})
	require.NoError(t, err)
	assert.True(t, result.Delivered())
	assert.Equal(t, core.KindAlert, result.Kind)
	assert.Equal(t, "[backend] ALERT", fake.calls()[0].Get("title"))
}

func TestApp_ProviderFailureIsReturnedNotRaised(t *testing.T) {
	fake := &fakePushover{status: http.StatusBadRequest}
	a := newTestApp(t, testConfig(), fake)

	result, err := a.HandleEvent(context.Background(), "backend", core.ErrorEvent{Severity: core.SeverityError}, true)
	require.NoError(t, err)
	assert.True(t, result.Failed())
	assert.Equal(t, "PROVIDER_REJECTED", result.Reason)
	assert.Equal(t, "user identifier is invalid", result.Diagnostic)
}

func TestApp_ArchivesResults(t *testing.T) {
	cfg := testConfig()
	cfg.Archive = config.ArchiveConfig{Enabled: true, Type: "localfs", Path: t.TempDir()}
	fake := &fakePushover{}
	a := newTestApp(t, cfg, fake)
	ctx := context.Background()

	result, err := a.HandleAlert(ctx, "backend", core.Alert{Message: "m"})
	require.NoError(t, err)

	loaded, err := archive.LoadResult(ctx, a.Archive(), result.At, result.ID)
	require.NoError(t, err)
	assert.Equal(t, result.ID, loaded.ID)
	assert.Equal(t, core.OutcomeDelivered, loaded.Outcome)
}

func TestApp_ArchiveFailureDoesNotFailDispatch(t *testing.T) {
	fake := &fakePushover{}
	a := newTestApp(t, testConfig(), fake)
	rec := &fakeRecorder{}
	a.SetRecorder(rec)
	a.SetArchive(failingStorage{})

	result, err := a.HandleAlert(context.Background(), "backend", core.Alert{Message: "m"})
	require.NoError(t, err)
	assert.True(t, result.Delivered())
	assert.Equal(t, 1, rec.archiveFailures)
	assert.Equal(t, 1, rec.dispatches)
}

func TestApp_PruneArchive(t *testing.T) {
	cfg := testConfig()
	cfg.Archive = config.ArchiveConfig{Enabled: true, Type: "localfs", Path: t.TempDir(), RetentionDays: 7}
	a := newTestApp(t, cfg, &fakePushover{})
	ctx := context.Background()

	old := core.Result{ID: "old", At: time.Now().AddDate(0, 0, -30)}
	fresh := core.Result{ID: "fresh", At: time.Now()}
	require.NoError(t, archive.ArchiveResult(ctx, a.Archive(), old))
	require.NoError(t, archive.ArchiveResult(ctx, a.Archive(), fresh))

	removed, err := a.PruneArchive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestApp_Projects(t *testing.T) {
	a := newTestApp(t, testConfig(), &fakePushover{})
	assert.Equal(t, []string{"backend", "quiet"}, a.Projects())

	cfg, ok := a.Project("backend")
	assert.True(t, ok)
	assert.Equal(t, core.SeverityWarning, cfg.MinimumSeverity)
}

func TestApp_StartStop(t *testing.T) {
	a := newTestApp(t, testConfig(), &fakePushover{})

	done := make(chan error, 1)
	go func() { done <- a.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		return a.GetStats(context.Background())["running"] == true
	}, time.Second, 10*time.Millisecond)

	assert.Error(t, a.Start(context.Background()), "second start must fail")

	a.Stop()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("app did not stop")
	}
}

func TestApp_GetStats(t *testing.T) {
	a := newTestApp(t, testConfig(), &fakePushover{})
	ctx := context.Background()

	a.HandleAlert(ctx, "backend", core.Alert{Message: "m"})
	a.HandleEvent(ctx, "backend", core.ErrorEvent{Severity: core.SeverityDebug}, true)

	stats := a.GetStats(ctx)
	assert.Equal(t, 2, stats["projects"])
	assert.Equal(t, 1, stats["delivered"])
	assert.Equal(t, 1, stats["skipped"])
	assert.Equal(t, false, stats["archive"])
}
