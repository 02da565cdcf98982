package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestForwarder_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Connection") != "" {
			t.Errorf("hop-by-hop header Connection must not be forwarded")
		}
		w.Header().Set("X-Upstream", "yes")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	f := NewForwarder(5 * time.Second)
	header := http.Header{"Connection": []string{"keep-alive"}, "X-Test": []string{"1"}}

	result := f.Forward(context.Background(), http.MethodPost, ts.URL, "/widgets", "", header, []byte(`{"a":1}`))

	if result.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s (err=%v)", result.Outcome, result.Err)
	}
	if result.StatusCode != http.StatusCreated {
		t.Errorf("expected 201, got %d", result.StatusCode)
	}
	if string(result.Body) != `{"ok":true}` {
		t.Errorf("unexpected body: %s", result.Body)
	}
	if result.Header.Get("X-Upstream") != "yes" {
		t.Errorf("expected upstream header to be relayed")
	}
}

func TestForwarder_ConnectFailure(t *testing.T) {
	f := NewForwarder(2 * time.Second)

	result := f.Forward(context.Background(), http.MethodGet, "http://127.0.0.1:1", "/x", "", nil, nil)

	if !result.Outcome.IsRecoverable() {
		t.Fatalf("expected a recoverable outcome, got %s", result.Outcome)
	}
}

func TestForwarder_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	f := NewForwarder(5 * time.Millisecond)
	result := f.Forward(context.Background(), http.MethodGet, ts.URL, "/slow", "", nil, nil)

	if result.Outcome != OutcomeTimeout {
		t.Fatalf("expected timeout, got %s", result.Outcome)
	}
	if !result.Outcome.IsRecoverable() {
		t.Error("timeout must be recoverable")
	}
}

func TestForwarder_QueryStringAppended(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	f := NewForwarder(time.Second)
	f.Forward(context.Background(), http.MethodGet, ts.URL, "/search", "q=widgets&page=2", nil, nil)

	if gotQuery != "q=widgets&page=2" {
		t.Errorf("expected query to be forwarded, got %q", gotQuery)
	}
}

func TestOutcomeIsRecoverable(t *testing.T) {
	cases := map[ForwardOutcome]bool{
		OutcomeSuccess:        false,
		OutcomeConnectFailure: true,
		OutcomeTimeout:        true,
		OutcomeProtocolError:  true,
		OutcomeOther:          false,
	}
	for outcome, want := range cases {
		if got := outcome.IsRecoverable(); got != want {
			t.Errorf("%s.IsRecoverable() = %v, want %v", outcome, got, want)
		}
	}
}
