// Package middleware provides request rate limiting for the administration
// API.
//
// Requests are keyed by the identity authz.Middleware attached to the
// request, or by client address when there is none. RateLimiter keeps token
// buckets in process; DistributedRateLimiter keeps fixed-window counters in
// Redis so that all instances share the limit:
//
//	limiter := middleware.NewDistributedRateLimiter(client, middleware.PerMinute(600, 50), "")
//	router.Use(middleware.NewRateLimitMiddleware(limiter, true, logger).Handler)
package middleware
