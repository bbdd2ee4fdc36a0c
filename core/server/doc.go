// Package server holds the HTTP server configuration.
//
// While the serve command handles the server startup, this package defines the
// configuration structure for server settings.
//
// # Configuration
//
// The Config struct defines the HTTP port, API key, and request read timeout.
//
// # Usage
//
// This package is primarily used by the core/config package to embed server
// settings and by the serve command when constructing the Fiber app.
package server
