package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/atmx/auction-engine/internal/auction"
	"github.com/atmx/auction-engine/internal/store"
)

func TestStartJournal_PersistsEventsAfterShutdownSignal(t *testing.T) {
	p := auction.DefaultParams()
	p.MinDeposit = decimal.NewFromInt(100)
	e, err := auction.New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ms := store.NewMemoryStore()
	j := store.NewJournal(ms)
	e.Subscribe(j.Record)

	stop := startJournal(j)

	// The process context is cancelled while a request is still draining;
	// the commit it acknowledges must still be journaled.
	sigCtx, cancel := context.WithCancel(context.Background())
	cancel()
	<-sigCtx.Done()

	trader := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	c, err := e.Commit(context.Background(), trader, common.HexToHash("0xc0ffee"), decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	got, err := ms.GetCommitment(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("commitment acknowledged during shutdown was not persisted: %v", err)
	}
	if got.Depositor != trader {
		t.Errorf("depositor = %s, want %s", got.Depositor.Hex(), trader.Hex())
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	h := corsMiddleware([]string{"https://app.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		origin string
		want   string
	}{
		{"allowed origin", "https://app.example", "https://app.example"},
		{"other origin", "https://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("OPTIONS", "/api/v1/commitments", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", "POST")
			req.Header.Set("Access-Control-Request-Headers", "content-type,x-caller-address,x-caller-signature,x-caller-timestamp")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLogLevel(t *testing.T) {
	tests := map[string]string{"debug": "DEBUG", "WARN": "WARN", "error": "ERROR", "": "INFO", "bogus": "INFO"}
	for in, want := range tests {
		if got := logLevel(in).String(); got != want {
			t.Errorf("logLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
