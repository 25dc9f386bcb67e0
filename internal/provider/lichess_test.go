package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestExportRequestShape(t *testing.T) {
	var gotPath, gotAccept string
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		gotAccept = r.Header.Get("Accept")
		w.Write([]byte("[Event \"Rated Blitz game\"]\n\n1. e4 e5 *\n"))
	}))
	defer srv.Close()

	src := NewLichessSource(NewFetcher(testProfile), WithLichessBaseURL(srv.URL))
	since := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	stream, err := src.Export(context.Background(), "DrNykterstein", &since)
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	defer stream.Close()

	if gotPath != "/api/games/user/drnykterstein" {
		t.Errorf("request path = %q, want lowercased username", gotPath)
	}
	if gotAccept != lichessAccept {
		t.Errorf("Accept = %q, want %q", gotAccept, lichessAccept)
	}
	for key, want := range map[string]string{
		"moves":   "true",
		"tags":    "true",
		"clocks":  "false",
		"evals":   "false",
		"opening": "true",
		"since":   "1709294400000",
	} {
		if got := gotQuery.Get(key); got != want {
			t.Errorf("query %s = %q, want %q", key, got, want)
		}
	}

	body, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	if len(body) == 0 {
		t.Error("stream body is empty")
	}
}

func TestExportOmitsSinceOnFirstSync(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte("\n"))
	}))
	defer srv.Close()

	src := NewLichessSource(NewFetcher(testProfile), WithLichessBaseURL(srv.URL))
	stream, err := src.Export(context.Background(), "someone", nil)
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	stream.Close()

	if gotQuery.Has("since") {
		t.Errorf("since = %q, want absent", gotQuery.Get("since"))
	}
}
