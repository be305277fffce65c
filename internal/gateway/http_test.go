package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/ledger"
)

func newTestServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var posted []string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tx", func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if raw["data"] != "" {
			http.Error(w, "data must not be inlined", http.StatusBadRequest)
			return
		}
		posted = append(posted, raw["id"].(string))
	})
	mux.HandleFunc("POST /chunk", func(w http.ResponseWriter, r *http.Request) {
		var c ledger.Chunk
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			http.Error(w, "bad chunk", http.StatusBadRequest)
			return
		}
		if err := ledger.VerifyChunk(&c); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	})
	mux.HandleFunc("GET /tx/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "mined":
			io.WriteString(w, `{"block_height":1200,"number_of_confirmations":7}`)
		case "pending":
			w.WriteHeader(http.StatusAccepted)
			io.WriteString(w, "Pending")
		case "broken":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("GET /info", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"network":"test","height":1234}`)
	})
	mux.HandleFunc("GET /{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "known" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, "payload")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &posted
}

func TestHTTPGateway_PostTransactionAndChunks(t *testing.T) {
	srv, posted := newTestServer(t)
	g := NewHTTPGateway(srv.URL+"/", 5*time.Second, nil)

	w, err := ledger.NewWallet(make([]byte, 32))
	if err != nil {
		t.Fatalf("NewWallet() error = %v", err)
	}
	data := make([]byte, ledger.ChunkSize+100)
	for i := range data {
		data[i] = byte(i)
	}
	tx := ledger.NewTransaction(data, ledger.Tags{{Name: "Content-Type", Value: "application/octet-stream"}})
	tx.Sign(w)

	ctx := context.Background()
	if err := g.PostTransaction(ctx, tx); err != nil {
		t.Fatalf("PostTransaction() error = %v", err)
	}
	if len(*posted) != 1 || (*posted)[0] != tx.ID {
		t.Errorf("posted = %v, want [%s]", *posted, tx.ID)
	}

	chunks, err := tx.Chunks()
	if err != nil {
		t.Fatalf("Chunks() error = %v", err)
	}
	for _, c := range chunks {
		if err := g.PostChunk(ctx, c); err != nil {
			t.Errorf("PostChunk(%d) error = %v", c.Index, err)
		}
	}
}

func TestHTTPGateway_GetTransactionStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	g := NewHTTPGateway(srv.URL, 5*time.Second, nil)

	tests := []struct {
		txID      string
		code      int
		confirmed bool
		pending   bool
		wantErr   bool
	}{
		{txID: "mined", code: 200, confirmed: true},
		{txID: "pending", code: 202, pending: true},
		{txID: "unknown", code: 404},
		{txID: "broken", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.txID, func(t *testing.T) {
			s, err := g.GetTransactionStatus(context.Background(), tt.txID)
			if tt.wantErr {
				if err == nil {
					t.Fatal("GetTransactionStatus() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("GetTransactionStatus() error = %v", err)
			}
			if s.Code != tt.code || s.Confirmed() != tt.confirmed || s.Pending() != tt.pending {
				t.Errorf("status = %+v", s)
			}
			if tt.confirmed && (s.BlockHeight != 1200 || s.Confirmations != 7) {
				t.Errorf("status = %+v, want height 1200 and 7 confirmations", s)
			}
		})
	}
}

func TestHTTPGateway_GetData(t *testing.T) {
	srv, _ := newTestServer(t)
	g := NewHTTPGateway(srv.URL, 5*time.Second, nil)

	data, err := g.GetData(context.Background(), "known")
	if err != nil {
		t.Fatalf("GetData() error = %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("GetData() = %q, want %q", data, "payload")
	}

	_, err = g.GetData(context.Background(), "missing")
	if !errors.Is(err, ardrive.ErrNotFound) {
		t.Errorf("GetData(missing) error = %v, want ErrNotFound", err)
	}
}

func TestHTTPGateway_BlockHeight(t *testing.T) {
	srv, _ := newTestServer(t)
	g := NewHTTPGateway(srv.URL, 5*time.Second, nil)

	h, err := g.BlockHeight(context.Background())
	if err != nil {
		t.Fatalf("BlockHeight() error = %v", err)
	}
	if h != 1234 {
		t.Errorf("BlockHeight() = %d, want 1234", h)
	}
}

func TestHTTPGateway_Cancelled(t *testing.T) {
	srv, _ := newTestServer(t)
	g := NewHTTPGateway(srv.URL, 5*time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.BlockHeight(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("BlockHeight() error = %v, want context.Canceled", err)
	}
}
