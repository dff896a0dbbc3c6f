package middleware

import "net/http"

// Leader returns middleware that rejects the request with 403 unless
// isLeader reports true at request time, for endpoints that perform
// cluster-side-effecting work (service restart, singleton cleanups).
func Leader(isLeader func() bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isLeader() {
				writeForbidden(w, "not leader")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
