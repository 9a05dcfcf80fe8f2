package testutil

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"accolade/pkg/requestcontext"
)

// WithCaller adds an authenticated caller to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithCaller(req *http.Request, caller common.Address) *http.Request {
	return req.WithContext(requestcontext.WithCaller(req.Context(), caller))
}

// WithRequestID adds a request ID to the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
