package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const resultsPage = `<html><body>
<div class="result">
  <a href="http://examplemarketonionaddr.onion/market">Example Market</a>
</div>
<div class="result">
  <a href="http://exampleforumonionaddr2.onion/forum">Example Forum</a>
</div>
<a href="/internal/about">About</a>
<a href="https://clearnet.example.com/page">Clearnet</a>
</body></html>`

func TestParseResults(t *testing.T) {
	results, err := ParseResults(strings.NewReader(resultsPage))
	if err != nil {
		t.Fatalf("ParseResults: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 onion results, got %d: %+v", len(results), results)
	}
	if results[0].Title != "Example Market" {
		t.Errorf("title = %q", results[0].Title)
	}
	if !strings.Contains(results[0].Link, ".onion/market") {
		t.Errorf("link = %q", results[0].Link)
	}
}

func TestSearchDeduplicatesAcrossEngines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, resultsPage)
	}))
	defer srv.Close()

	c := NewClient(Config{
		Engines: []string{
			srv.URL + "/a?q={query}",
			srv.URL + "/b?q={query}",
			srv.URL + "/c?q={query}",
		},
		Timeout: 5 * time.Second,
	})

	results, err := c.Search(context.Background(), "ransomware", 50, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 deduplicated results, got %d", len(results))
	}
}

func TestSearchSkipsFailingEngines(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1)%2 == 0 {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, resultsPage)
	}))
	defer srv.Close()

	engines := make([]string, 6)
	for i := range engines {
		engines[i] = fmt.Sprintf("%s/e%d?q={query}", srv.URL, i)
	}

	c := NewClient(Config{Engines: engines, Timeout: 5 * time.Second})
	results, err := c.Search(context.Background(), "leak", 50, 4)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results from the healthy engines")
	}
}

func TestSearchCapsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sb strings.Builder
		sb.WriteString("<html><body>")
		for i := 0; i < 20; i++ {
			fmt.Fprintf(&sb, `<a href="http://engine%sgenaddr%s.onion/">hit %d</a>`,
				strings.Trim(r.URL.Path, "/"), strings.Repeat("z", i+2), i)
		}
		sb.WriteString("</body></html>")
		fmt.Fprint(w, sb.String())
	}))
	defer srv.Close()

	c := NewClient(Config{
		Engines: []string{srv.URL + "/x?q={query}", srv.URL + "/y?q={query}"},
		Timeout: 5 * time.Second,
	})
	results, err := c.Search(context.Background(), "dump", 10, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 10 {
		t.Fatalf("expected cap of 10, got %d", len(results))
	}
}

func TestFetchAndScrape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><script>var x=1;</script></head><body><h1>Leak   Site</h1><p>index of dumps</p></body></html>`)
	}))
	defer srv.Close()

	c := NewClient(Config{Timeout: 5 * time.Second})

	resp, err := c.Fetch(context.Background(), FetchRequest{URL: srv.URL})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("status = %d", resp.Status)
	}
	if !strings.Contains(resp.Body, "Leak") {
		t.Errorf("body missing content: %q", resp.Body)
	}

	text, err := c.Scrape(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if strings.Contains(text, "var x=1") {
		t.Errorf("script content not stripped: %q", text)
	}
	if text != "Leak Site index of dumps" {
		t.Errorf("text = %q", text)
	}
}

func TestHTMLToTextCollapsesWhitespace(t *testing.T) {
	text, err := HTMLToText("<p>a\n\n  b</p><p>c</p>")
	if err != nil {
		t.Fatalf("HTMLToText: %v", err)
	}
	if text != "a b c" {
		t.Errorf("text = %q", text)
	}
}
