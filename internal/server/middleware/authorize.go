package middleware

import "net/http"

// Authorize returns middleware that requires a validated Identity on the
// request context (attached by Auth on success). It is a separate gate from
// Auth so the 401-vs-403 distinction in the coordinator's route ordering
// (auth 401 > authz 403 > ...) stays explicit in the handler chain rather
// than collapsed into one check.
func Authorize() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := IdentityFromContext(r.Context()); !ok {
				writeForbidden(w, "not authorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeForbidden(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
