package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolveSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			t.Errorf("missing/incorrect basic auth: user=%s pass=%s ok=%v", user, pass, ok)
		}
		w.Write([]byte(`[{"x":1.5,"y":2.5,"z":0.5}]`))
	}))
	defer srv.Close()

	res := New(srv.URL+"/dongles?macAddress={}", "admin", "secret")
	coord, err := res.Resolve(context.Background(), "aa:bb:cc")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if coord.X != 1.5 || coord.Y != 2.5 || coord.Z != 0.5 {
		t.Fatalf("unexpected coord: %+v", coord)
	}
}

func TestResolveNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	res := New(srv.URL+"/{}", "", "")
	if _, err := res.Resolve(context.Background(), "x"); err == nil {
		t.Fatalf("expected error on 404")
	}
}

func TestResolveEmptyArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	res := New(srv.URL+"/{}", "", "")
	if _, err := res.Resolve(context.Background(), "x"); err == nil {
		t.Fatalf("expected error on empty array")
	}
}

func TestResolveURLTemplating(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RawQuery
		w.Write([]byte(`[{"x":0,"y":0,"z":0}]`))
	}))
	defer srv.Close()

	res := New(srv.URL+"/dongles?macAddress={}", "", "")
	if _, err := res.Resolve(context.Background(), "de:ad:be:ef"); err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if gotPath != "macAddress=de:ad:be:ef" {
		t.Fatalf("unexpected query: %s", gotPath)
	}
}
