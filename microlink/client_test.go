package microlink

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantErr    bool
		checkValue func(t *testing.T, r *Result)
	}{
		{
			name: "full payload",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("prerender") != "true" {
					t.Error("expected prerender=true query parameter")
				}
				if r.URL.Query().Get("url") == "" {
					t.Error("expected url query parameter")
				}
				w.Write([]byte(`{"status":"success","data":{"title":"Jane (@jane)","description":"live now","author":"@jane","image":{"url":"https://img.example/x.jpg"}}}`))
			},
			checkValue: func(t *testing.T, r *Result) {
				if r.Title == nil || *r.Title != "Jane (@jane)" {
					t.Errorf("unexpected title: %v", r.Title)
				}
				if r.ImageURL == nil || *r.ImageURL != "https://img.example/x.jpg" {
					t.Errorf("unexpected image URL: %v", r.ImageURL)
				}
				if r.Author == nil || *r.Author != "@jane" {
					t.Errorf("unexpected author: %v", r.Author)
				}
			},
		},
		{
			name: "missing fields are nil",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status":"success","data":{"title":"only a title"}}`))
			},
			checkValue: func(t *testing.T, r *Result) {
				if r.Title == nil {
					t.Error("expected title")
				}
				if r.Description != nil || r.ImageURL != nil || r.Author != nil {
					t.Error("expected absent fields to be nil")
				}
			},
		},
		{
			name: "unsuccessful API status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status":"fail","data":{}}`))
			},
			wantErr: true,
		},
		{
			name: "non-2xx response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			wantErr: true,
		},
		{
			name: "malformed payload",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`not json`))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			client := NewClient(srv.URL, time.Second)
			result, err := client.Lookup(context.Background(), "https://x.com/i/broadcasts/abc")

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Lookup failed: %v", err)
			}
			tt.checkValue(t, result)
		})
	}
}

func TestLookupTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"status":"success","data":{}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 20*time.Millisecond)
	if _, err := client.Lookup(context.Background(), "https://x.com/i/broadcasts/abc"); err == nil {
		t.Fatal("expected timeout error, got nil")
	}
}
