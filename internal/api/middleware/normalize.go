package middleware

import (
	"context"
	"net/http"
	"strings"

	"Prism/internal/core/directives"
)

type identityKey struct{}

// Normalize rewrites requests under prefix into their canonical identity: the path
// becomes prefix + {original-path}/{key}, the query string is dropped and the
// Identity is stored in the request context.
func Normalize(prefix string, n directives.Normalizer) func(http.Handler) http.Handler {
	prefix = "/" + strings.Trim(prefix, "/")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			originalPath := strings.TrimPrefix(r.URL.Path, prefix)
			id := n.Normalize(originalPath, r.URL.Query(), r.Header.Get("Accept"))

			r2 := r.Clone(context.WithValue(r.Context(), identityKey{}, id))
			r2.URL.Path = prefix + "/" + id.Path()
			r2.URL.RawPath = ""
			r2.URL.RawQuery = ""
			r2.RequestURI = r2.URL.RequestURI()
			next.ServeHTTP(w, r2)
		})
	}
}

// IdentityFromContext returns the identity stored by Normalize.
func IdentityFromContext(ctx context.Context) (directives.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(directives.Identity)
	return id, ok
}
