// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding/decoding, and request parsing.
//
// # Response Helpers
//
//	httputil.WriteSuccess(w, role)
//	httputil.WriteCreated(w, role)
//	httputil.WriteMappedError(w, err, []httputil.ErrorStatus{
//		{Target: rbac.ErrDuplicateKey, Status: http.StatusConflict, Code: "duplicate"},
//	})
//
// # Request Parsing
//
//	var req createRoleRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//	code, ok := httputil.ParsePathStringOrError(w, r, "code")
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
package httputil
