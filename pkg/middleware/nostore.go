package middleware

import "net/http"

// NoStore marks responses as uncacheable. Portal responses embed the
// signed-in user, so neither the browser nor a shared proxy may keep them.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Cache-Control", "no-store")
		h.Set("Pragma", "no-cache")
		h.Add("Vary", "Cookie")
		next.ServeHTTP(w, r)
	})
}
