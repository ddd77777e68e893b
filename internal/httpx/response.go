// Package httpx holds the small JSON response helpers shared by every
// HTTP handler.
package httpx

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/nicktill/tinyquery/internal/result"
)

// RespondJSON writes data as a JSON body with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("❌ httpx: failed to encode JSON response: %v", err)
	}
}

// RespondResult writes v in the standard success envelope.
func RespondResult(w http.ResponseWriter, v *result.Value) {
	RespondJSON(w, http.StatusOK, result.Encode(v))
}

// RespondError writes err in the error envelope: 400 for lex/parse/type/
// validation errors, 500 for index/eval/storage errors. Callers choose
// status; this just shapes the body.
func RespondError(w http.ResponseWriter, status int, err error) {
	RespondJSON(w, status, result.EncodeError(err))
}
