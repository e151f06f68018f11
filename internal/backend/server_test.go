package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maniack/logpurge/internal/accesslog"
	"github.com/maniack/logpurge/internal/purge"
	"github.com/maniack/logpurge/internal/storage"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type testEnv struct {
	srv   *Server
	dir   string
	sched *purge.Scheduler
	store *storage.Store
}

// newTestServer wires a server to a scheduler over a temp directory using the
// daily access log convention. The scheduler is not started.
func newTestServer(t *testing.T, cfg purge.Config, withStore bool) *testEnv {
	t.Helper()
	dir := t.TempDir()
	dc := purge.DirectoryContext{Dir: dir, Convention: purge.Convention{
		Prefix: "access_log", Suffix: ".log", Variant: purge.Datestamped,
	}}
	env := &testEnv{dir: dir}
	opts := purge.Options{Logger: quietLogger()}
	if withStore {
		store, err := storage.Open(filepath.Join(t.TempDir(), "history.db"), dir)
		if err != nil {
			t.Fatalf("open storage: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		env.store = store
		opts.Recorder = store
	}
	env.sched = purge.NewScheduler(cfg, dc, purge.ConventionResolver(dc, time.Now), opts)

	s, err := NewServer(Config{
		Logger:      quietLogger(),
		Version:     "test",
		Purge:       env.sched,
		History:     env.store,
		SkipWorkers: true,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	env.srv = s
	return env
}

func retention() purge.Config {
	return purge.Config{Enabled: true, ExecutionInterval: time.Hour, MaxHistory: 30 * time.Minute}
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func writeFile(t *testing.T, dir, name string, mod time.Time) {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(p, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestServer(t, retention(), true)
	if w := do(t, env.srv.Router, http.MethodGet, "/healthz/alive"); w.Code != http.StatusOK {
		t.Fatalf("alive code = %d", w.Code)
	}
	if w := do(t, env.srv.Router, http.MethodGet, "/healthz/ready"); w.Code != http.StatusOK {
		t.Fatalf("ready code = %d", w.Code)
	}
}

func TestReadyAfterStop(t *testing.T) {
	env := newTestServer(t, retention(), false)
	if err := env.sched.Start(); err != nil {
		t.Fatal(err)
	}
	if err := env.sched.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if w := do(t, env.srv.Router, http.MethodGet, "/healthz/ready"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready after stop = %d", w.Code)
	}
}

func TestPurgeStatus(t *testing.T) {
	env := newTestServer(t, retention(), false)
	w := do(t, env.srv.Router, http.MethodGet, "/api/purge/status")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d body=%s", w.Code, w.Body.String())
	}
	var st purgeStatus
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.State != "created" || st.Dir != env.dir || st.Variant != "datestamped" || st.Interval != "1h0m0s" {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.NextRun != nil || st.LastPass != nil {
		t.Fatalf("no run expected yet: %+v", st)
	}
}

func TestPurgeRunDeletesExpired(t *testing.T) {
	env := newTestServer(t, retention(), true)
	old := time.Now().Add(-2 * time.Hour)
	writeFile(t, env.dir, "access_log.2020-01-01.log", old)
	writeFile(t, env.dir, "access_log.2020-01-02.log", time.Now())
	writeFile(t, env.dir, "other.log", old)

	w := do(t, env.srv.Router, http.MethodPost, "/api/purge/run")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d body=%s", w.Code, w.Body.String())
	}
	var res passResponse
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Deleted != 1 || res.Trigger != purge.TriggerManual || res.Error != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, err := os.Stat(filepath.Join(env.dir, "access_log.2020-01-01.log")); !os.IsNotExist(err) {
		t.Fatalf("expired file still present: %v", err)
	}
	for _, keep := range []string{"access_log.2020-01-02.log", "other.log"} {
		if _, err := os.Stat(filepath.Join(env.dir, keep)); err != nil {
			t.Fatalf("%s removed: %v", keep, err)
		}
	}

	w = do(t, env.srv.Router, http.MethodGet, "/api/purge/runs?limit=5")
	if w.Code != http.StatusOK {
		t.Fatalf("runs code = %d", w.Code)
	}
	var runs []storage.PurgeRun
	if err := json.Unmarshal(w.Body.Bytes(), &runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != res.ID || runs[0].Deleted != 1 || runs[0].Trigger != "manual" {
		t.Fatalf("unexpected history: %+v", runs)
	}

	w = do(t, env.srv.Router, http.MethodGet, "/api/purge/status")
	var st purgeStatus
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.LastPass == nil || st.LastPass.ID != res.ID {
		t.Fatalf("last pass not reported: %+v", st)
	}
}

func TestPurgeRunScanError(t *testing.T) {
	env := newTestServer(t, retention(), false)
	if err := os.RemoveAll(env.dir); err != nil {
		t.Fatal(err)
	}
	w := do(t, env.srv.Router, http.MethodPost, "/api/purge/run")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	var res passResponse
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if res.Error == "" || res.Deleted != 0 {
		t.Fatalf("expected scan error in body: %s", w.Body.String())
	}
}

func TestPurgeRunStopped(t *testing.T) {
	env := newTestServer(t, retention(), false)
	if err := env.sched.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if w := do(t, env.srv.Router, http.MethodPost, "/api/purge/run"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d", w.Code)
	}
}

func TestPurgeRoutesWithoutScheduler(t *testing.T) {
	s, err := NewServer(Config{Logger: quietLogger(), SkipWorkers: true})
	if err != nil {
		t.Fatal(err)
	}
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/purge/status"},
		{http.MethodPost, "/api/purge/run"},
		{http.MethodGet, "/api/purge/runs"},
	} {
		if w := do(t, s.Router, tc.method, tc.path); w.Code != http.StatusNotFound {
			t.Errorf("%s %s = %d", tc.method, tc.path, w.Code)
		}
	}
	w := do(t, s.Router, http.MethodGet, "/api/config")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"purge_enabled":false`) {
		t.Fatalf("config = %d %s", w.Code, w.Body.String())
	}
}

func TestPurgeRunsBadLimit(t *testing.T) {
	env := newTestServer(t, retention(), true)
	if w := do(t, env.srv.Router, http.MethodGet, "/api/purge/runs?limit=abc"); w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", w.Code)
	}
}

func TestPruneHistory(t *testing.T) {
	env := newTestServer(t, retention(), true)
	ctx := context.Background()
	old := purge.PassResult{ID: "old", Trigger: purge.TriggerTick, StartedAt: time.Now().Add(-48 * time.Hour)}
	old.FinishedAt = old.StartedAt
	fresh := purge.PassResult{ID: "fresh", Trigger: purge.TriggerTick, StartedAt: time.Now()}
	fresh.FinishedAt = fresh.StartedAt
	for _, r := range []purge.PassResult{old, fresh} {
		if err := env.store.RecordPass(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	if n := env.srv.pruneHistory(24 * time.Hour); n != 1 {
		t.Fatalf("pruned = %d", n)
	}
	runs, err := env.store.ListRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != "fresh" {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestAccessLogMiddlewareWired(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewServer(Config{Logger: quietLogger(), AccessLog: &buf, SkipWorkers: true})
	if err != nil {
		t.Fatal(err)
	}
	do(t, s.Router, http.MethodGet, "/healthz/alive")
	if !strings.Contains(buf.String(), `"GET /healthz/alive HTTP/1.1" 200`) {
		t.Fatalf("access line = %q", buf.String())
	}
}

func TestServerAttachedToDailyWriter(t *testing.T) {
	dir := t.TempDir()
	w, err := accesslog.Open(accesslog.Config{Dir: dir, Prefix: "access_log", Suffix: ".log", Style: accesslog.StyleDaily})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	writeFile(t, dir, "access_log.2001-01-01.log", time.Now().Add(-time.Hour))
	eng := purge.NewEngine(retention(), purge.Options{Logger: quietLogger()})
	sched, err := eng.AttachTo(w)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = sched.Stop(context.Background()) }()

	s, err := NewServer(Config{Logger: quietLogger(), AccessLog: w, Purge: sched, SkipWorkers: true})
	if err != nil {
		t.Fatal(err)
	}
	do(t, s.Router, http.MethodGet, "/healthz/alive")
	rec := do(t, s.Router, http.MethodPost, "/api/purge/run")
	if rec.Code != http.StatusOK {
		t.Fatalf("run = %d", rec.Code)
	}
	var res passResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Deleted != 1 {
		t.Fatalf("deleted = %d", res.Deleted)
	}
	if _, err := os.Stat(w.(purge.LiveFile).CurrentFile()); err != nil {
		t.Fatalf("active access log removed: %v", err)
	}
}

func TestCloseStopsHistoryWorker(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "history.db"), dir)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	defer store.Close()

	s, err := NewServer(Config{Logger: quietLogger(), History: store, HistoryTTL: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("history worker did not stop")
	}
	// second Close is a no-op
	s.Close()
}
