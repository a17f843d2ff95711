package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	logx "linkwatch/pkg/logx"
)

func newTestClient(srv *httptest.Server, timeout time.Duration) *Client {
	return New(Config{
		OfflineURL: srv.URL + "/api/offline/all",
		StatusURL:  srv.URL + "/api/status/{router}",
		RetryDelay: 5 * time.Millisecond,
		Timeout:    timeout,
	}, srv.Client(), logx.Nop(), nil)
}

func TestFetchOfflineDropsMalformedEntries(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"users":[
			{"router":"R1","user":"BRN-01","offlineSince":"2024-05-01T08:00:00Z","durationMinutes":20},
			{"router":"R1","user":"nosince","durationMinutes":16.5},
			{"router":"","user":"x","durationMinutes":20},
			{"router":"R1","user":null,"durationMinutes":20},
			{"router":"R1","user":"neg","durationMinutes":-1},
			{"router":"R1","user":"nodur","offlineSince":"2024-05-01T08:00:00Z"}
		]}`))
	}))
	defer srv.Close()

	recs, err := newTestClient(srv, time.Second).FetchOffline(context.Background())
	if err != nil {
		t.Fatalf("FetchOffline: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records: %+v", len(recs), recs)
	}
	if recs[0].User != "BRN-01" || recs[0].Since.IsZero() || recs[0].DurationMinutes != 20 {
		t.Fatalf("first record wrong: %+v", recs[0])
	}
	if recs[1].OfflineSince != "" || !recs[1].Since.IsZero() {
		t.Fatalf("missing offlineSince should stay empty: %+v", recs[1])
	}
}

func TestFetchOfflineSurvivesMistypedEntry(t *testing.T) {
	t.Parallel()

	valid := `{"router":"R1","user":"BRN-01","offlineSince":"2024-05-01T08:00:00Z","durationMinutes":20}`
	cases := []struct {
		name string
		bad  string
	}{
		{"numeric user", `{"router":"R1","user":12345,"durationMinutes":20}`},
		{"string duration", `{"router":"R1","user":"x","durationMinutes":"abc"}`},
		{"epoch since", `{"router":"R1","user":"y","offlineSince":1714550400,"durationMinutes":20}`},
		{"not an object", `"R1/z"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"users":[` + tc.bad + `,` + valid + `]}`))
			}))
			defer srv.Close()

			recs, err := newTestClient(srv, time.Second).FetchOffline(context.Background())
			if err != nil {
				t.Fatalf("FetchOffline: %v", err)
			}
			if len(recs) != 1 || recs[0].User != "BRN-01" {
				t.Fatalf("records=%+v", recs)
			}
		})
	}
}

func TestParseOfflineCountsUndecodableEntries(t *testing.T) {
	t.Parallel()

	p := offlinePayload{Users: []json.RawMessage{
		json.RawMessage(`{"router":"R1","user":"a","durationMinutes":20}`),
		json.RawMessage(`{"router":"R1","user":"b","durationMinutes":"abc"}`),
		json.RawMessage(`null`),
	}}
	recs, dropped := parseOffline(p)
	if len(recs) != 1 || dropped != 2 {
		t.Fatalf("recs=%+v dropped=%d", recs, dropped)
	}
}

func TestFetchOfflineRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"users":[]}`))
	}))
	defer srv.Close()

	recs, err := newTestClient(srv, time.Second).FetchOffline(context.Background())
	if err != nil {
		t.Fatalf("FetchOffline: %v", err)
	}
	if len(recs) != 0 || calls.Load() != 3 {
		t.Fatalf("recs=%v calls=%d", recs, calls.Load())
	}
}

func TestFetchOfflineExhausts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	recs, err := newTestClient(srv, time.Second).FetchOffline(context.Background())
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err=%v want ErrExhausted", err)
	}
	if recs == nil || len(recs) != 0 {
		t.Fatalf("exhausted fetch should degrade to an empty result, got %v", recs)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls=%d want 3", calls.Load())
	}
}

func TestFetchTimesOutPerAttempt(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := newTestClient(srv, 20*time.Millisecond).FetchOffline(context.Background())
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err=%v", err)
	}
	if d := time.Since(start); d > 2*time.Second {
		t.Fatalf("timeout not enforced, took %v", d)
	}
}

func TestFetchStatus(t *testing.T) {
	t.Parallel()

	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		_, _ = w.Write([]byte(`{"routerName":"SALAM-UTAMA-METRO","totalInterfaces":40,"offlineList":["a"," ","b"]}`))
	}))
	defer srv.Close()

	st, err := newTestClient(srv, time.Second).FetchStatus(context.Background(), "SALAM-UTAMA-METRO")
	if err != nil {
		t.Fatalf("FetchStatus: %v", err)
	}
	if got := path.Load().(string); got != "/api/status/SALAM-UTAMA-METRO" {
		t.Fatalf("path=%q", got)
	}
	if st.Router != "SALAM-UTAMA-METRO" || st.Total.ValueOrZero() != 40 || st.Running.Valid {
		t.Fatalf("unexpected status: %+v", st)
	}
	if len(st.Offline) != 2 {
		t.Fatalf("offline=%v", st.Offline)
	}
}

func TestFetchStatusBadJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"routerName":`))
	}))
	defer srv.Close()

	st, err := newTestClient(srv, time.Second).FetchStatus(context.Background(), "R1")
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if st.Router != "R1" {
		t.Fatalf("router=%q", st.Router)
	}
}
