package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spinhouse/coinledger/internal/circuitbreaker"
)

func TestNotifyTransferRejected(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, nil, slog.Default())

	err := svc.NotifyTransferRejected(context.Background(), "usr_1", "transfer rejected after review")
	require.NoError(t, err)

	list, err := svc.ListByUser(context.Background(), "usr_1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "transaction_rejected", list[0].Type)
	assert.Equal(t, "transfer rejected after review", list[0].Message)
	assert.False(t, list[0].Read)
}

func TestMarkRead(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, nil, slog.Default())

	require.NoError(t, svc.NotifyTransferRejected(context.Background(), "usr_1", "msg"))
	list, err := svc.ListByUser(context.Background(), "usr_1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, svc.MarkRead(context.Background(), list[0].ID))
	list, err = svc.ListByUser(context.Background(), "usr_1", 10)
	require.NoError(t, err)
	assert.True(t, list[0].Read)

	assert.ErrorIs(t, svc.MarkRead(context.Background(), "missing"), ErrNotFound)
}

func TestDispatcher_SignsAndDelivers(t *testing.T) {
	received := make(chan *http.Request, 1)
	bodies := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- r
		bodies <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher([]Endpoint{{URL: srv.URL, Secret: "hunter2"}}, slog.Default())
	d.Dispatch(&Notification{
		ID: "n1", UserID: "usr_1", Type: "transaction_rejected",
		Title: "Transfer rejected", Message: "msg", CreatedAt: time.Now().UTC(),
	})

	select {
	case r := <-received:
		body := <-bodies
		assert.Equal(t, "transaction_rejected", r.Header.Get("X-Coinledger-Event"))

		mac := hmac.New(sha256.New, []byte("hunter2"))
		mac.Write(body)
		want := hex.EncodeToString(mac.Sum(nil))
		assert.Equal(t, want, r.Header.Get("X-Coinledger-Signature"))
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was never delivered")
	}
}

func TestDispatcher_ClientErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	d := NewDispatcher([]Endpoint{{URL: srv.URL}}, slog.Default())
	d.send(Endpoint{URL: srv.URL}, &Notification{
		ID: "n1", UserID: "usr_1", Type: "transaction_rejected",
		Title: "t", Message: "m", CreatedAt: time.Now().UTC(),
	})

	assert.Equal(t, int32(1), hits.Load())
}

func TestDispatcher_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDispatcher([]Endpoint{{URL: srv.URL}}, slog.Default())
	d.breaker = circuitbreaker.New(2, time.Minute)

	n := &Notification{ID: "n1", UserID: "usr_1", Type: "x", Title: "t", Message: "m", CreatedAt: time.Now().UTC()}
	d.send(Endpoint{URL: srv.URL}, n) // failure 1, after retries
	d.send(Endpoint{URL: srv.URL}, n) // failure 2, trips the circuit

	before := hits.Load()
	d.send(Endpoint{URL: srv.URL}, n) // skipped
	assert.Equal(t, before, hits.Load())
	assert.Equal(t, circuitbreaker.StateOpen, d.breaker.State(srv.URL))
}
