package ws

import (
	"net/http"
	"slices"

	"github.com/google/uuid"

	"chat-realtime/internal/auth"
)

func newConnID() string {
	return uuid.NewString()
}

// handshakeToken reads the token a client may attach to the upgrade request:
// header, then cookies, then the token query parameter.
func handshakeToken(r *http.Request) string {
	if token := auth.TokenFromRequest(r); token != "" {
		return token
	}
	return auth.StripBearer(r.URL.Query().Get("token"))
}

// connectToken reads the token carried by a CONNECT frame: the token field,
// then the exact Authorization header, then any other spelling of it in
// sorted key order.
func connectToken(token string, headers map[string]string) string {
	if t := auth.StripBearer(token); t != "" {
		return t
	}
	if t := auth.StripBearer(headers["Authorization"]); t != "" {
		return t
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		if k != "Authorization" && http.CanonicalHeaderKey(k) == "Authorization" {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		if t := auth.StripBearer(headers[k]); t != "" {
			return t
		}
	}
	return ""
}
