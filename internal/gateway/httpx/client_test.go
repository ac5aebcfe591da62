package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	xerrors "Superio-Chain/internal/errors"
)

func TestDoJSONRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	if err := New(2*time.Second, 1).GetJSON(context.Background(), srv.URL, nil, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if !out.OK || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected retry to succeed, calls=%d out=%+v", calls, out)
	}
}

func TestDoJSONMapsStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		code   xerrors.Code
	}{
		{http.StatusTooManyRequests, xerrors.CodeRateLimited},
		{http.StatusUnauthorized, xerrors.CodeUnauthorized},
		{http.StatusServiceUnavailable, xerrors.CodeUpstreamUnavailable},
		{http.StatusNotFound, xerrors.CodeUpstreamUnavailable},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		err := New(time.Second, 0).GetJSON(context.Background(), srv.URL, nil, &struct{}{})
		srv.Close()
		if xerrors.CodeOf(err) != tc.code {
			t.Fatalf("status %d: expected %s, got %v", tc.status, tc.code, err)
		}
	}
}

func TestDoBodyJSONSendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "secret" || r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := DoBodyJSON(context.Background(), New(time.Second, 0), http.MethodPost, srv.URL, []byte(`{"a":1}`),
		map[string]string{"x-api-key": "secret"}, &map[string]any{})
	if err != nil {
		t.Fatalf("DoBodyJSON: %v", err)
	}
}

func TestEmptyBodyIsUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	err := New(time.Second, 0).GetJSON(context.Background(), srv.URL, nil, &struct{}{})
	if xerrors.CodeOf(err) != xerrors.CodeUpstreamUnavailable {
		t.Fatalf("expected upstream failure, got %v", err)
	}
}
