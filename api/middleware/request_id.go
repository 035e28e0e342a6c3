package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// Inbound ids from the load balancer are reused only when they cannot
// forge log lines.
var requestIDRe = regexp.MustCompile(`^[A-Za-z0-9._:-]{8,128}$`)

// RequestID tags each request with an id echoed in the response header and
// carried by every log line of the request.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestIDHeader)
			if !requestIDRe.MatchString(reqID) {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
