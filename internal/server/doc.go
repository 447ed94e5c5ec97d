// Package server hosts the Fiber HTTP service that the thumbnail grid talks
// to. It bootstraps Fiber, attaches panic recovery and request-ID middleware,
// parses image requests (?url=<key>&wait=1) and hands them to an injected
// ImageHandler. Diagnostics live under /-/ and are registered by the routes
// subpackage, so keep exports narrow and accept explicit dependencies.
package server
