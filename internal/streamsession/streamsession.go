// Package streamsession implements the persistent bidirectional protocol
// (C11) over a WebSocket upgrade: each inbound text frame is a JSON Project
// message, processed strictly in arrival order, answered with a
// compile_success or compile_error frame carrying newly-ingested blob
// handles so the peer can reference them by hash in later deltas.
//
// gorilla/websocket is used because it appears directly across the example
// pack (AleutianAI-AleutianFOSS, das7pad-overleaf-go) as the transport for
// exactly this kind of long-lived JSON-frame protocol.
package streamsession

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tachyontex/tachyon-tex/internal/blobstore"
	"github.com/tachyontex/tachyon-tex/internal/ingestion"
	"github.com/tachyontex/tachyon-tex/internal/orchestrator"
	"github.com/tachyontex/tachyon-tex/internal/project"
	"github.com/tachyontex/tachyon-tex/pkg/logger"
)

// sessionBlobStoreCap is the per-session BlobStore cap (64 MiB), distinct
// from the process-wide store's 512 MiB default.
const sessionBlobStoreCap = 64 * 1024 * 1024

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// outboundSuccess is the compile_success response frame.
type outboundSuccess struct {
	Type      string            `json:"type"`
	CompileMs int64             `json:"compile_time_ms"`
	PDF       string            `json:"pdf"`
	Blobs     map[string]string `json:"blobs"`
}

type outboundError struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Logs    string `json:"logs,omitempty"`
	Details string `json:"details,omitempty"`
}

// Session is one streaming connection's state: a per-session BlobStore and
// the set of hashes the peer has already been told about. Destroyed on
// disconnect; holds no other state between messages.
type Session struct {
	ID    string
	blobs *blobstore.Store

	mu        sync.Mutex
	knownHash map[string]uint64 // filename -> hash, for blob reporting only
}

// NewSession allocates a fresh per-session BlobStore.
func NewSession() *Session {
	return &Session{
		ID:        uuid.New().String(),
		blobs:     blobstore.New(sessionBlobStoreCap),
		knownHash: make(map[string]uint64),
	}
}

// Get implements fingerprint.Resolver against this session's BlobStore.
func (s *Session) Get(hash uint64) ([]byte, bool) { return s.blobs.Get(hash) }

// Handle upgrades r to a WebSocket and processes messages for the
// connection's lifetime, feeding each through orch.Compile strictly in
// arrival order (a single goroutine reading and replying per connection
// enforces this; no message is read before the previous one's response is
// written).
func Handle(w http.ResponseWriter, r *http.Request, orch *orchestrator.Orchestrator) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("streamsession: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sess := NewSession()
	logger.Infof("streamsession: %s opened", sess.ID)
	defer logger.Infof("streamsession: %s closed", sess.ID)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		resp := sess.processMessage(r.Context(), orch, raw)

		encoded, err := json.Marshal(resp)
		if err != nil {
			logger.Errorf("streamsession: %s marshal response: %v", sess.ID, err)
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, encoded); err != nil {
			return
		}
	}
}

// processMessage ingests one frame, records its binary files in the session
// BlobStore (before compiling, whatever the outcome) so later deltas may
// reference them by hash, runs the orchestrator pipeline with HashRef values
// resolved against the session BlobStore, and on success reports those
// binary files' hashes in the response.
func (s *Session) processMessage(ctx context.Context, orch *orchestrator.Orchestrator, raw []byte) any {
	p, err := ingestion.FromJSON(raw)
	if err != nil {
		return outboundError{Type: "compile_error", Error: err.Error()}
	}

	newBlobs := make(map[string]string)
	for name, fc := range p.Files {
		if fc.Kind == project.KindBinary {
			hash := s.blobs.Put(fc.Bytes)
			s.recordKnownHash(name, hash)
			newBlobs[name] = strconv.FormatUint(hash, 16)
		}
	}

	outcome, err := orch.Compile(ctx, p, s)
	if err != nil {
		return outboundError{
			Type:  "compile_error",
			Error: err.Error(),
		}
	}

	return outboundSuccess{
		Type:      "compile_success",
		CompileMs: outcome.CompileMs,
		PDF:       base64.StdEncoding.EncodeToString(outcome.PDF),
		Blobs:     newBlobs,
	}
}

func (s *Session) recordKnownHash(name string, hash uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.knownHash[name] = hash
}
