package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	ss "github.com/atom/superstring"
	"github.com/atom/superstring/buffer"
	"github.com/atom/superstring/internal/persist"
	"github.com/atom/superstring/patch"
)

var validate = validator.New()

// clientMessage is the inbound wire shape a connected editor sends when it
// wants to apply an edit to the shared document.
type clientMessage struct {
	Action   string `json:"action" validate:"required,oneof=edit"`
	StartRow uint32 `json:"start_row"`
	StartCol uint32 `json:"start_col"`
	EndRow   uint32 `json:"end_row"`
	EndCol   uint32 `json:"end_col"`
	NewText  string `json:"new_text" validate:"max=1048576"`
}

// serverMessage is the outbound wire shape broadcast to every connected
// client after an edit is applied.
type serverMessage struct {
	Action     string `json:"action"`
	PatchBytes string `json:"patch_bytes,omitempty"`
	Text       string `json:"text,omitempty"`
	Error      string `json:"error,omitempty"`
}

// document is one collaboratively edited text, with its set of connected
// clients.
type document struct {
	mu      sync.Mutex
	buf     *buffer.TextBuffer
	clients map[*websocket.Conn]bool
}

// Hub holds every live document session and the persistence store backing
// it, fanning each document out to every client connected to it.
type Hub struct {
	mu        sync.Mutex
	documents map[string]*document
	store     *persist.Store
}

// NewHub returns an empty Hub backed by store.
func NewHub(store *persist.Store) *Hub {
	return &Hub{documents: make(map[string]*document), store: store}
}

// documentFor returns the document for id, loading its most recent
// snapshot from the store or creating an empty one if none exists.
func (h *Hub) documentFor(id string) *document {
	h.mu.Lock()
	defer h.mu.Unlock()

	if doc, ok := h.documents[id]; ok {
		return doc
	}

	// The restored text goes in as an edit over an empty base, so later
	// snapshots of this document are still recorded against an empty base.
	buf := buffer.NewFromString("")
	if p, _, err := h.store.LoadSnapshot(id); err == nil {
		_ = buf.SetText(reconstructFromPatch(p))
	}

	doc := &document{buf: buf, clients: make(map[*websocket.Conn]bool)}
	h.documents[id] = doc
	return doc
}

// reconstructFromPatch rebuilds the document text a patch represents,
// given that it was recorded against an empty base (the only case the
// persisted-snapshot path needs, since collabserver documents always
// start empty). Every saved change's new-side text is concatenated in
// order; gaps between changes are empty since the base itself is empty.
func reconstructFromPatch(p *patch.Patch) *ss.Text {
	changes := p.Changes()
	if len(changes) == 0 {
		return ss.NewTextFromString("")
	}
	slices := make([]ss.TextSlice, 0, len(changes))
	for _, c := range changes {
		if c.NewText != nil {
			slices = append(slices, *c.NewText)
		}
	}
	if len(slices) == 0 {
		return ss.NewTextFromString("")
	}
	return ss.ConcatTextSlices(slices...)
}

// join registers conn as a listener on the document named id and sends it
// the document's current content.
func (h *Hub) join(id string, conn *websocket.Conn) (*document, error) {
	doc := h.documentFor(id)

	doc.mu.Lock()
	defer doc.mu.Unlock()
	doc.clients[conn] = true

	msg := serverMessage{Action: "init", Text: doc.buf.Text().String()}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("collabserver: marshal init message: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return nil, fmt.Errorf("collabserver: send init message: %w", err)
	}
	return doc, nil
}

// leave removes conn from doc's listener set.
func (h *Hub) leave(doc *document, conn *websocket.Conn) {
	doc.mu.Lock()
	defer doc.mu.Unlock()
	delete(doc.clients, conn)
}

// applyEdit applies msg to doc, persists a snapshot under the next
// sequence number, and broadcasts the resulting patch to every connected
// client, including the one that sent the edit.
func (h *Hub) applyEdit(documentID string, doc *document, msg clientMessage) error {
	if err := validate.Struct(msg); err != nil {
		return fmt.Errorf("collabserver: invalid edit message: %w", err)
	}

	doc.mu.Lock()
	defer doc.mu.Unlock()

	oldRange := ss.Range{
		Start: ss.Point{Row: msg.StartRow, Column: msg.StartCol},
		End:   ss.Point{Row: msg.EndRow, Column: msg.EndCol},
	}
	if err := doc.buf.SetTextInRange(oldRange, ss.NewTextFromString(msg.NewText)); err != nil {
		return fmt.Errorf("collabserver: apply edit: %w", err)
	}

	p := doc.buf.Patch()
	sequence := 1
	if _, last, err := h.store.LoadSnapshot(documentID); err == nil {
		sequence = last + 1
	}
	if err := h.store.SaveSnapshot(documentID, sequence, p); err != nil {
		log.Printf("collabserver: failed to persist snapshot for %s: %v", documentID, err)
	}

	out := serverMessage{
		Action:     "update",
		PatchBytes: base64.StdEncoding.EncodeToString(p.Serialize()),
		Text:       doc.buf.Text().String(),
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("collabserver: marshal update message: %w", err)
	}

	for client := range doc.clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("collabserver: broadcast to client failed: %v", err)
		}
	}
	return nil
}
