// Package server is the HTTP/WebSocket front door: it keeps one
// pkg/collab.Document actor alive per open document, serves GetDocument
// and the document metadata/stats handlers over plain HTTP, serves
// SubmitDocumentChangeSet and the revision history (sent on connect,
// then pushed as revisions commit) over a WebSocket connection, and
// periodically evicts documents nobody has touched in a while.
//
// The live set used to hold a sync.Map of bare document structs keyed
// by ID directly under the HTTP handlers; here it holds *collab.Document
// actors instead, and loading one means reading a snapshot plus
// trailing revisions from pkg/storage/sqlite rather than deserializing
// a single text blob.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/quillsync/quill/pkg/broadcast"
	"github.com/quillsync/quill/pkg/collab"
	"github.com/quillsync/quill/pkg/document"
	"github.com/quillsync/quill/pkg/quilllog"
	"github.com/quillsync/quill/pkg/revlog"
	"github.com/quillsync/quill/pkg/storage/sqlite"
)

// liveDocument is a document actor plus bookkeeping for the idle cleaner.
type liveDocument struct {
	actor        *collab.Document
	lastAccessed time.Time
}

// Hub owns the set of currently-open document actors and the storage /
// pub-sub backends they're wired to.
type Hub struct {
	mu    sync.Mutex
	live  map[string]*liveDocument
	store *sqlite.Store
	pub   broadcast.PubSub
}

// NewHub creates an empty hub backed by the given storage and pub-sub
// implementations.
func NewHub(store *sqlite.Store, pub broadcast.PubSub) *Hub {
	return &Hub{
		live:  make(map[string]*liveDocument),
		store: store,
		pub:   pub,
	}
}

// open returns the live actor for docID, loading it from storage (most
// recent snapshot plus every revision since) the first time it's asked
// for.
func (h *Hub) open(ctx context.Context, docID string) (*collab.Document, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ld, ok := h.live[docID]; ok {
		ld.lastAccessed = time.Now()
		return ld.actor, nil
	}

	if _, err := h.store.GetDocument(ctx, docID); err != nil {
		return nil, err
	}

	text, snapRev, _, err := h.store.LoadSnapshot(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("server: load snapshot: %w", err)
	}

	revs, _, _, err := h.store.Range(ctx, docID, snapRev)
	if err != nil {
		return nil, fmt.Errorf("server: load trailing revisions: %w", err)
	}

	revision := snapRev
	for _, r := range revs {
		text, err = document.ApplyChangeSet(text, r.ChangeSet)
		if err != nil {
			return nil, fmt.Errorf("server: replay revision %d: %w", r.Number, err)
		}
		revision = r.Number
	}

	state := document.New(text, revision)
	actor := collab.NewDocument(docID, state, h.store, h.pub)

	h.live[docID] = &liveDocument{actor: actor, lastAccessed: time.Now()}
	quilllog.Info("server: opened document=%s at revision=%d", docID, revision)
	return actor, nil
}

// evictIdle drops every document actor untouched for longer than ttl.
// The actor itself holds no resources beyond memory (the durable state
// already lives in storage), so eviction is just removing the map entry;
// the next open reloads from storage.
func (h *Hub) evictIdle(ttl time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	var evicted []string
	for id, ld := range h.live {
		if now.Sub(ld.lastAccessed) > ttl {
			delete(h.live, id)
			evicted = append(evicted, id)
		}
	}
	if len(evicted) > 0 {
		quilllog.Info("server: evicted idle documents: %v", evicted)
	}
}

// RunIdleCleaner evicts idle document actors on a fixed tick until ctx is
// canceled. Call it in its own goroutine.
func (h *Hub) RunIdleCleaner(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.evictIdle(ttl)
		}
	}
}

// Stats summarizes the server's current activity.
type Stats struct {
	StartTime     int64 `json:"start_time"`
	OpenDocuments int   `json:"open_documents"`
}

// Server is the HTTP entrypoint: it serves the WebSocket collaboration
// endpoint plus the thin CRUD/stats handlers over document metadata.
type Server struct {
	hub       *Hub
	mux       *http.ServeMux
	startTime time.Time
}

// NewServer builds a Server around the given hub.
func NewServer(hub *Hub) *Server {
	s := &Server{hub: hub, mux: http.NewServeMux(), startTime: time.Now()}
	s.mux.HandleFunc("/api/socket/", s.handleSocket)
	s.mux.HandleFunc("/api/documents", s.handleCreateDocument)
	s.mux.HandleFunc("/api/documents/", s.handleDocument)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleSocket upgrades to a WebSocket and runs the per-session
// connection loop for a document. Route: /api/socket/{doc_id}.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	docID := strings.TrimPrefix(r.URL.Path, "/api/socket/")
	if docID == "" {
		http.Error(w, "document ID required", http.StatusBadRequest)
		return
	}

	actor, err := s.hub.open(r.Context(), docID)
	if err != nil {
		if errors.Is(err, revlog.ErrDocumentNotFound) {
			http.Error(w, "document not found", http.StatusNotFound)
			return
		}
		quilllog.Error("server: open document=%s: %v", docID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		quilllog.Error("server: websocket accept: %v", err)
		return
	}

	connHandler := NewConnection(docID, sessionIDFromRequest(r), actor, s.hub.pub, conn)
	if err := connHandler.Handle(r.Context()); err != nil {
		quilllog.Debug("server: connection closed doc=%s session=%s: %v", docID, connHandler.sessionID, err)
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// handleCreateDocument implements document creation. Route: POST
// /api/documents.
func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ID      string `json:"id"`
		OrgID   string `json:"org_id"`
		Title   string `json:"title"`
		OwnerID string `json:"owner_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if req.OwnerID == "" {
		http.Error(w, "owner_id is required", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		req.ID = generateDocumentID()
	}
	if req.Title == "" {
		req.Title = "Untitled"
	}

	now := time.Now()
	doc := sqlite.Document{
		ID:        req.ID,
		OrgID:     req.OrgID,
		Title:     req.Title,
		OwnerID:   req.OwnerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.hub.store.CreateDocument(r.Context(), doc); err != nil {
		quilllog.Error("server: create document: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

// handleDocument implements GetDocument and document title updates.
// Route: GET/PATCH /api/documents/{doc_id}.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	docID := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	if docID == "" {
		http.Error(w, "document ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		doc, err := s.hub.store.GetDocument(r.Context(), docID)
		if errors.Is(err, revlog.ErrDocumentNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err != nil {
			quilllog.Error("server: get document: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(doc)

	case http.MethodPatch:
		var req struct {
			Title string `json:"title"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		if err := s.hub.store.UpdateDocumentTitle(r.Context(), docID, req.Title); err != nil {
			if errors.Is(err, revlog.ErrDocumentNotFound) {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			quilllog.Error("server: update title: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleStats reports how many documents are currently resident in
// memory. Route: /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.hub.mu.Lock()
	open := len(s.hub.live)
	s.hub.mu.Unlock()

	stats := Stats{StartTime: s.startTime.Unix(), OpenDocuments: open}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	quilllog.Info("server: listening on %s", addr)
	return http.ListenAndServe(addr, s)
}

// sessionIDFromRequest derives this connection's author ID. Production
// deployments put an authenticated user ID here, populated upstream by
// an identity provider this package doesn't own; absent that header a
// random per-connection ID still keeps anonymous sessions
// distinguishable from one another in the revision log.
func sessionIDFromRequest(r *http.Request) string {
	if id := r.Header.Get("X-Quill-Author-Id"); id != "" {
		return id
	}
	return randomSessionID()
}

func randomSessionID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "anon"
	}
	return "anon-" + hex.EncodeToString(buf[:])
}
