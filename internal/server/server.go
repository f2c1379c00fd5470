// Package server is the thin HTTP ingress. Inbound webhook events are
// decoded, acknowledged immediately, and handed to the assist pipeline in
// their own goroutines.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sendloop/sendloop/internal/assist"
	"github.com/sendloop/sendloop/internal/dispatch"
)

// Handler processes one inbound message event.
type Handler interface {
	HandleInbound(ctx context.Context, in assist.InboundMessage)
}

// Server is the ingress HTTP server.
type Server struct {
	handler Handler
	account dispatch.AccountCreds
	http    *http.Server
}

// Event is the wire shape of one inbound message on POST /events.
type Event struct {
	UserID     string `json:"user_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	SenderName string `json:"sender_name,omitempty"`
	Kind       string `json:"kind,omitempty"`
	Text       string `json:"text,omitempty"`
	MediaURL   string `json:"media_url,omitempty"`
	Caption    string `json:"caption,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
}

type eventBatch struct {
	Events []Event `json:"events"`
}

func New(host string, port int, handler Handler, account dispatch.AccountCreds) *Server {
	s := &Server{handler: handler, account: account}

	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleEvents(w, r)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	s.http = &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	slog.Info("ingress listening", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// handleEvents accepts a single event or a batch. Each event runs in its
// own goroutine; the webhook caller is acked before processing finishes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := decodeEvents(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	accepted := 0
	for _, ev := range events {
		if ev.UserID == "" || ev.From == "" {
			slog.Warn("ingress: event missing user_id or from, dropped")
			continue
		}
		accepted++
		go s.handler.HandleInbound(context.Background(), assist.InboundMessage{
			UserID:     ev.UserID,
			Account:    s.account,
			From:       ev.From,
			To:         ev.To,
			SenderName: ev.SenderName,
			Kind:       ev.Kind,
			Text:       ev.Text,
			MediaURL:   ev.MediaURL,
			Caption:    ev.Caption,
			ExternalID: ev.ExternalID,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]int{"accepted": accepted})
}

func decodeEvents(r *http.Request) ([]Event, error) {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))

	var batch eventBatch
	raw := json.RawMessage{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid event payload: %w", err)
	}
	if err := json.Unmarshal(raw, &batch); err == nil && len(batch.Events) > 0 {
		return batch.Events, nil
	}
	var single Event
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("invalid event payload: %w", err)
	}
	return []Event{single}, nil
}
