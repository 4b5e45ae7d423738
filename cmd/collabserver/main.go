// Command collabserver is a realtime collaborative text editing demo: it
// serves WebSocket connections that each fan edits in and serialized
// patches out for one named document, authorized by session tokens and
// durably snapshotted to SQLite. A single broadcast hub is generalized
// to an arbitrary number of concurrently edited documents instead of
// just one.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atom/superstring/internal/persist"
	"github.com/atom/superstring/internal/sessiontoken"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type server struct {
	hub    *Hub
	tokens *sessiontoken.Service
}

// handleToken issues a session token for the document named by the
// "document" query parameter, to be presented by the WebSocket client.
func (s *server) handleToken(w http.ResponseWriter, r *http.Request) {
	documentID := r.URL.Query().Get("document")
	clientID := r.URL.Query().Get("client")
	if documentID == "" || clientID == "" {
		http.Error(w, "document and client query parameters are required", http.StatusBadRequest)
		return
	}

	tok, err := s.tokens.Generate(documentID, clientID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"token": tok})
}

// handleWebSocket verifies the request's session token, upgrades the
// connection, and joins the client to the document the token names.
func (s *server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	claims, err := s.tokens.Verify(tokenString)
	if err != nil {
		http.Error(w, "invalid session token: "+err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("collabserver: upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	defer s.tokens.Revoke(claims.DocumentID, claims.Nonce)

	doc, err := s.hub.join(claims.DocumentID, conn)
	if err != nil {
		log.Printf("collabserver: join failed: %v", err)
		return
	}
	defer s.hub.leave(doc, conn)

	log.Printf("collabserver: client %s joined document %s", claims.ClientID, claims.DocumentID)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("collabserver: read error: %v", err)
			}
			break
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("collabserver: malformed message: %v", err)
			continue
		}
		if msg.Action != "edit" {
			continue
		}

		if err := s.hub.applyEdit(claims.DocumentID, doc, msg); err != nil {
			log.Printf("collabserver: apply edit failed: %v", err)
		}
	}

	log.Printf("collabserver: client %s left document %s", claims.ClientID, claims.DocumentID)
}

func main() {
	configPath := flag.String("config", "collabserver.yaml", "path to a YAML config file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("collabserver: %v", err)
	}

	store, err := persist.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("collabserver: open store: %v", err)
	}
	defer store.Close()

	tokenCfg := sessiontoken.DefaultConfig()
	tokenCfg.TTL = time.Duration(cfg.TokenTTLHours) * time.Hour
	tokens, err := sessiontoken.New(tokenCfg)
	if err != nil {
		log.Fatalf("collabserver: init token service: %v", err)
	}

	srv := &server{hub: NewHub(store), tokens: tokens}

	go func() {
		ticker := time.NewTicker(tokenCfg.NonceWindow)
		defer ticker.Stop()
		for range ticker.C {
			if n := tokens.CleanupExpiredNonces(); n > 0 {
				log.Printf("collabserver: cleaned up %d stale nonces", n)
			}
		}
	}()

	http.HandleFunc("/token", srv.handleToken)
	http.HandleFunc("/ws", srv.handleWebSocket)

	log.Printf("collabserver listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, nil); err != nil {
		log.Fatalf("collabserver: server failed: %v", err)
	}
}
