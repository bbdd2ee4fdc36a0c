// Package middleware contains HTTP middleware for the Fiber application.
//
// It provides the cross-cutting concerns that sit between a request and the
// sync API handlers.
//
// # Components
//
//   - Auth: API key validation protecting the admin endpoints.
//   - RayID: generates a unique Request ID (RayID) for every incoming request,
//     injecting it into the context and response headers so sync job logs can
//     be correlated with the request that triggered them.
//
// Both are registered globally by the serve command.
package middleware
