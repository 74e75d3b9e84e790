// internal/httpapi/encode.go
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/tamzrod/benchlab-telemetry/internal/gateway"
)

const (
	contentJSON = "application/json"
	contentCBOR = "application/cbor"
)

// encMode uses Core Deterministic Encoding: the same reading always
// encodes to the same bytes. Health and other TextMarshalers encode as text.
var encMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.TextMarshaler = cbor.TextMarshalerTextString
	opts.Time = cbor.TimeRFC3339Nano

	var err error
	encMode, err = opts.EncMode()
	if err != nil {
		panic("httpapi: CBOR encoder initialization failed: " + err.Error())
	}
}

// wantsCBOR reports whether the client prefers CBOR over JSON.
func wantsCBOR(r *http.Request) bool {
	if strings.EqualFold(r.URL.Query().Get("format"), "cbor") {
		return true
	}
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(mt, contentCBOR) {
			return true
		}
	}
	return false
}

func marshal(v any, asCBOR bool) ([]byte, string, error) {
	if asCBOR {
		b, err := encMode.Marshal(v)
		return b, contentCBOR, err
	}
	b, err := json.Marshal(v)
	return b, contentJSON, err
}

func (s *server) write(w http.ResponseWriter, r *http.Request, code int, v any) {
	b, ct, err := marshal(v, wantsCBOR(r))
	if err != nil {
		s.log.Error("encode response", "path", r.URL.Path, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

type errorBody struct {
	Error string `json:"error" cbor:"error"`
}

// fail maps gateway errors onto status codes. Only NotFound carries its
// message; anything else is logged and answered generically.
func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		s.write(w, r, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, gateway.ErrShuttingDown):
		s.write(w, r, http.StatusServiceUnavailable, errorBody{Error: "shutting down"})
	default:
		s.log.Error("request failed", "path", r.URL.Path, "error", err)
		s.write(w, r, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func (s *server) badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	s.log.Debug("bad request", "path", r.URL.Path, "reason", msg)
	s.write(w, r, http.StatusBadRequest, errorBody{Error: msg})
}
