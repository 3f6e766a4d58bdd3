package scrubber

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"
)

type recordingSink struct {
	mu         sync.Mutex
	batches    [][]Record
	writeErr   error
	connectErr error
	connected  bool
	closed     bool
}

func (s *recordingSink) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return s.connectErr
}

func (s *recordingSink) Write(_ context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.batches = append(s.batches, records)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) written() [][]Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Record(nil), s.batches...)
}

func endpointServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if b, _ := io.ReadAll(r.Body); len(b) != 0 {
			t.Errorf("request body = %q, want empty", b)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)

	return server
}

const countyBody = `{"outages":[
	{"County Name":"Miami-Dade","Customers Out":"100","Customers Served":"1,000"},
	{"County Name":"Broward","Customers Out":"1,234","Customers Served":"10,000"}
]}`

func newTestPoller(t *testing.T, url string, build BuildFunc, sink Sink) (*Poller, *Metrics) {
	metrics := NewMetrics()
	p := NewPoller(SourceCountyOutage, url, build, nil, sink, metrics, zaptest.NewLogger(t).Sugar())
	p.now = func() time.Time { return captured }

	return p, metrics
}

func TestPollerPull(t *testing.T) {
	server := endpointServer(t, http.StatusOK, countyBody)
	sink := &recordingSink{}
	p, metrics := newTestPoller(t, server.URL, DecodeCountyOutages, sink)

	if err := p.Pull(context.Background()); err != nil {
		t.Fatalf("Pull() error = %v", err)
	}

	batches := sink.written()
	if len(batches) != 1 {
		t.Fatalf("got %d writes, want 1", len(batches))
	}
	if len(batches[0]) != 3 {
		t.Fatalf("got %d records, want 3", len(batches[0]))
	}
	for _, r := range batches[0] {
		if r.Timestamp() != "2020-09-10T12:30:45.123456Z" {
			t.Errorf("timestamp = %q", r.Timestamp())
		}
	}

	if got := testutil.ToFloat64(metrics.pulls.WithLabelValues(string(SourceCountyOutage), resultSuccess)); got != 1 {
		t.Errorf("successful pulls = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.recordsWritten.WithLabelValues(string(SourceCountyOutage))); got != 3 {
		t.Errorf("records written = %v, want 3", got)
	}
}

func TestPollerSkipsNon200(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusNoContent} {
		server := endpointServer(t, status, countyBody)
		sink := &recordingSink{}
		p, metrics := newTestPoller(t, server.URL, DecodeCountyOutages, sink)

		if err := p.Pull(context.Background()); err != nil {
			t.Errorf("status %d: Pull() error = %v, want nil", status, err)
		}
		if n := len(sink.written()); n != 0 {
			t.Errorf("status %d: got %d writes, want 0", status, n)
		}
		if got := testutil.ToFloat64(metrics.pulls.WithLabelValues(string(SourceCountyOutage), resultSkipped)); got != 1 {
			t.Errorf("status %d: skipped pulls = %v, want 1", status, got)
		}
	}
}

func TestPollerMalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `not json`},
		{"missing outages", `{"data":[]}`},
		{"missing field", `{"outages":[{"County Name":"Lee","Customers Out":"1"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := endpointServer(t, http.StatusOK, tt.body)
			sink := &recordingSink{}
			p, metrics := newTestPoller(t, server.URL, DecodeCountyOutages, sink)

			if err := p.Pull(context.Background()); err == nil {
				t.Fatal("Pull() error = nil, want error")
			}
			if n := len(sink.written()); n != 0 {
				t.Errorf("got %d writes, want 0", n)
			}
			if got := testutil.ToFloat64(metrics.pulls.WithLabelValues(string(SourceCountyOutage), resultError)); got != 1 {
				t.Errorf("failed pulls = %v, want 1", got)
			}
		})
	}
}

func TestPollerSinkError(t *testing.T) {
	server := endpointServer(t, http.StatusOK, countyBody)
	sinkErr := errors.New("influx down")
	p, _ := newTestPoller(t, server.URL, DecodeCountyOutages, &recordingSink{writeErr: sinkErr})

	if err := p.Pull(context.Background()); !errors.Is(err, sinkErr) {
		t.Errorf("Pull() error = %v, want %v", err, sinkErr)
	}
}

func TestPollerUnreachable(t *testing.T) {
	server := endpointServer(t, http.StatusOK, countyBody)
	url := server.URL
	server.Close()

	sink := &recordingSink{}
	p, _ := newTestPoller(t, url, DecodeCountyOutages, sink)

	if err := p.Pull(context.Background()); err == nil {
		t.Error("Pull() error = nil, want connection error")
	}
	if n := len(sink.written()); n != 0 {
		t.Errorf("got %d writes, want 0", n)
	}
}
