package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeLive struct {
	recording bool
	elapsed   int
	bytes     int
}

func (f fakeLive) Recording() bool     { return f.recording }
func (f fakeLive) ElapsedSeconds() int { return f.elapsed }
func (f fakeLive) BufferedBytes() int  { return f.bytes }

type fakeBackup struct{}

func (fakeBackup) QueueDepth() int { return 3 }
func (fakeBackup) Uploaded() int64 { return 10 }
func (fakeBackup) Failed() int64   { return 1 }
func (fakeBackup) Dropped() int64  { return 0 }

func TestCollectorRecording(t *testing.T) {
	c := NewCollector(nil, fakeLive{recording: true, elapsed: 42, bytes: 2048}, fakeBackup{})

	want := `
# HELP scribe_recording_active 1 while a recording session is in progress.
# TYPE scribe_recording_active gauge
scribe_recording_active 1
# HELP scribe_recording_elapsed_seconds Elapsed time of the current recording.
# TYPE scribe_recording_elapsed_seconds gauge
scribe_recording_elapsed_seconds 42
# HELP scribe_backup_queue_depth Vault files waiting for S3 upload.
# TYPE scribe_backup_queue_depth gauge
scribe_backup_queue_depth 3
`
	err := testutil.CollectAndCompare(c, strings.NewReader(want),
		"scribe_recording_active", "scribe_recording_elapsed_seconds", "scribe_backup_queue_depth")
	if err != nil {
		t.Error(err)
	}
}

func TestCollectorIdle(t *testing.T) {
	c := NewCollector(nil, fakeLive{elapsed: 99}, nil)
	// recording_active, elapsed, buffered; no backup or pool metrics.
	if n := testutil.CollectAndCount(c); n != 3 {
		t.Errorf("metric count = %d, want 3", n)
	}
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
}

func TestInstrumentHandlerUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Get("/api/v1/notes/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/notes/{id}", "418"))
	req := httptest.NewRequest("GET", "/api/v1/notes/abc", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/notes/{id}", "418"))

	if after-before != 1 {
		t.Errorf("counter delta = %v, want 1", after-before)
	}
}
