package prusalinkclient

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/tuzkov/prusaLapse/logging"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(logging.Discard(), &PrinterConfig{
		Address:  strings.TrimPrefix(srv.URL, "http://"),
		Username: "maker",
		ApiKey:   "key",
	})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(nil, nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewClient(nil, &PrinterConfig{}); err == nil {
		t.Error("expected error for empty address")
	}
}

func TestJobStatus(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/api/v1/job" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"id":42,"state":"PRINTING","progress":12.5,"file":{"name":"BENCHY~1.BGC","display_name":"benchy.bgcode"}}`))
	})

	st, err := client.JobStatus(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if !st.Online || st.JobID != 42 || st.State != StatusPrinting || st.FileName != "benchy.bgcode" || st.Progress != 12.5 {
		t.Errorf("unexpected status %+v", st)
	}

	// served from cache
	if _, err := client.JobStatus(t.Context()); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Errorf("got %d requests, want 1", calls.Load())
	}
}

func TestJobStatusNoJob(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	st, err := client.JobStatus(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if !st.Online || st.State != StatusFinished {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestJobStatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	if _, err := client.JobStatus(t.Context()); err == nil {
		t.Error("expected error")
	}
}

func TestPrinterStatus(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/api/v1/status" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"printer":{"state":"PRINTING","axis_x":120.5,"axis_y":80.25,"axis_z":1.2},"job":{"id":7,"progress":50}}`))
	})

	for i := 0; i < 2; i++ {
		st, err := client.PrinterStatus(t.Context())
		if err != nil {
			t.Fatal(err)
		}
		if !st.Online || !st.HasPosition || st.State != StatusPrinting || st.X != 120.5 || st.Y != 80.25 || st.Z != 1.2 || st.JobID != 7 || st.Progress != 50 {
			t.Errorf("unexpected status %+v", st)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("printer status must not be cached, got %d requests", calls.Load())
	}
}

func TestPrinterStatusIdle(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"printer":{"state":"IDLE","axis_x":0,"axis_y":0}}`))
	})

	st, err := client.PrinterStatus(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if st.State != StatusIdle || st.JobID != 0 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestPrinterStatusWithoutPosition(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"printer":{"state":"PRINTING","axis_z":1.2}}`))
	})

	st, err := client.PrinterStatus(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if st.HasPosition {
		t.Errorf("missing axes reported as a position: %+v", st)
	}
	if st.Z != 1.2 || st.State != StatusPrinting {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestPrinterStatusAtOrigin(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"printer":{"state":"PRINTING","axis_x":0,"axis_y":0}}`))
	})

	st, err := client.PrinterStatus(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if !st.HasPosition || st.X != 0 || st.Y != 0 {
		t.Errorf("origin not reported as a position: %+v", st)
	}
}
