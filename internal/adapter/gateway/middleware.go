package gateway

import (
	"net/http"

	"github.com/aegisreview/aegis/internal/platform/logging"
)

// recoverMiddleware turns a panicking handler into a 500 instead of
// taking down the whole gateway process, mirroring the
// defer/recover discipline the review pipeline's worker goroutines use.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logError("gateway: handler panicked", nil, logging.Fields{
					"path":  r.URL.Path,
					"panic": rec,
				})
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
