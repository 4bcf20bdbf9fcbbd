package mes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"
)

func pageJSON(last bool, rows ...map[string]any) []byte {
	b, _ := json.Marshal(map[string]any{"content": rows, "last": last})
	return b
}

func TestFetchAll_SinglePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(pageJSON(true, map[string]any{"id": float64(1), "name": "a"}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "")
	got, err := c.FetchAll(context.Background(), "/items", nil)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if got.Len() != 1 {
		t.Fatalf("rows = %d, want 1", got.Len())
	}
	if got.Rows[0]["id"] != "1" || got.Rows[0]["name"] != "a" {
		t.Errorf("row = %v", got.Rows[0])
	}
}

func TestFetchAll_WalksAllPages(t *testing.T) {
	var pagesServed []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("currentPage"))
		pagesServed = append(pagesServed, page)
		if r.URL.Query().Get("itemsPerPage") != "1000" {
			t.Errorf("itemsPerPage = %q, want 1000", r.URL.Query().Get("itemsPerPage"))
		}
		last := page == 2
		w.Write(pageJSON(last, map[string]any{"n": float64(page)}))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "")
	got, err := c.FetchAll(context.Background(), "/items", url.Values{"q": {"x"}})
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if got.Len() != 3 {
		t.Fatalf("rows = %d, want 3", got.Len())
	}
	if len(pagesServed) != 3 || pagesServed[0] != 0 || pagesServed[2] != 2 {
		t.Errorf("pages served = %v, want [0 1 2]", pagesServed)
	}
}

func TestFetchAll_PageResultShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"pageResult":{"content":[{"lotNumber":"L-1"}]},"last":true}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "")
	got, err := c.FetchAll(context.Background(), "/batch", nil)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if got.Len() != 1 || got.Rows[0]["lotNumber"] != "L-1" {
		t.Errorf("rows = %v", got.Rows)
	}
}

func TestFetchAll_NeitherShapeTerminates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"unexpected":[]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "")
	got, err := c.FetchAll(context.Background(), "/weird", nil)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if !got.Empty() {
		t.Errorf("rows = %d, want 0", got.Len())
	}
}

func TestFetchAll_FailedPageFailsWholeFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("currentPage") == "0" {
			w.Write(pageJSON(false, map[string]any{"n": float64(0)}))
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	var delays []time.Duration
	c := NewClient(srv.URL, "", "", noSleep(&delays))
	_, err := c.FetchAll(context.Background(), "/items", nil)
	if err == nil {
		t.Fatal("FetchAll succeeded, want error when a page fails")
	}
}
