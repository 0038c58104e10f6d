package driver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
)

func TestHTTPRangeReadDoesNotRetry(t *testing.T) {
	var attempts int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	d := NewHTTPRange(ts.URL)
	_, err := d.Read(context.Background(), 0, 16)
	if err == nil {
		t.Fatal("expected an error from a failing range GET")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("expected exactly one attempt, got %d", got)
	}
}

func TestHTTPRangeReadSingleAttemptOnSuccess(t *testing.T) {
	var attempts int32
	want := []byte("0123456789")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Header().Set("Content-Range", "bytes 0-9/10")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(want)
	}))
	defer ts.Close()

	d := NewHTTPRange(ts.URL)
	got, err := d.Read(context.Background(), 0, len(want))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("got %q, want %q", got, want)
	}
	if attempts != 1 {
		t.Errorf("expected exactly one attempt, got %d", attempts)
	}
}

func TestHTTPRangeWithCredentialsSignsRequests(t *testing.T) {
	var gotAuth, gotContentSha string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentSha = r.Header.Get("X-Amz-Content-Sha256")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("data"))
	}))
	defer ts.Close()

	d := NewHTTPRange(ts.URL, WithCredentials(Credentials{
		AccessKeyID:     "AKIAEXAMPLE",
		SecretAccessKey: "secretkeyexample",
		Region:          "us-east-1",
	}))

	if _, err := d.Read(context.Background(), 0, 4); err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if gotAuth == "" {
		t.Error("expected a SigV4 Authorization header to be set")
	}
	if gotContentSha != emptyPayloadHash {
		t.Errorf("got X-Amz-Content-Sha256 %q, want %q", gotContentSha, emptyPayloadHash)
	}
}

func TestHTTPRangeWithoutCredentialsSendsUnsignedRequests(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("data"))
	}))
	defer ts.Close()

	d := NewHTTPRange(ts.URL)
	if _, err := d.Read(context.Background(), 0, 4); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("expected no Authorization header without configured credentials, got %q", gotAuth)
	}
}

func TestHTTPRangeSize(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD request, got %s", r.Method)
		}
		w.Header().Set("Content-Length", strconv.Itoa(1024))
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	d := NewHTTPRange(ts.URL)
	size, err := d.Size(context.Background())
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != 1024 {
		t.Errorf("got size %d, want 1024", size)
	}
}
