package middleware

import (
	"crypto/subtle"
	"net/http"
)

// GatewayTokenHeader содержит общий секрет адаптера чата.
const GatewayTokenHeader = "X-Gateway-Token"

// GatewayOnly пропускает только запросы адаптера чата с верным общим секретом.
// При пустом секрете все запросы отклоняются.
func GatewayOnly(token string) func(http.Handler) http.Handler {
	expected := []byte(token)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(GatewayTokenHeader))
			if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
