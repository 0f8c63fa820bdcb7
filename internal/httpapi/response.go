package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/relaysync/relaysync-api/internal/protocol"
)

// writeResponse builds and writes the canonical protocol envelope. Every
// protocol-level outcome — success or error — replies 200 OK; errors are
// carried in the JSON body's error code, not the HTTP status line.
func writeResponse(w http.ResponseWriter, code protocol.ErrorCode, objects []map[string]any, committedSyncCount *int64) {
	resp := protocol.Response{
		Error:              code,
		Objects:            objects,
		CommittedSyncCount: committedSyncCount,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode protocol response")
	}
}

// writeError is writeResponse with no objects/watermark — the common case
// for every client-fault, conflict, and server-fault code.
func writeError(w http.ResponseWriter, code protocol.ErrorCode) {
	writeResponse(w, code, nil, nil)
}

// writeSuccess replies SUCCESS with no payload (the "test" handler's shape).
func writeSuccess(w http.ResponseWriter) {
	writeResponse(w, protocol.Success, nil, nil)
}

// writeMethodNotAllowed is the one transport-level-status exception this
// protocol carries: non-POST verbs get a real HTTP 405 with Allow: POST,
// outside the JSON envelope entirely.
func writeMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", http.MethodPost)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}
