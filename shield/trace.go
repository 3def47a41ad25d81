package shield

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
)

// TraceID generates a random ID for each request, stores it in the
// context, and echoes it in the X-Trace-ID response header so clients
// can quote it when reporting problems.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 4)
		rand.Read(buf)
		id := hex.EncodeToString(buf)

		ctx := context.WithValue(r.Context(), traceIDKey, id)
		w.Header().Set("X-Trace-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
