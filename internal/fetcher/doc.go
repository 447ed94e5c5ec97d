// Package fetcher retrieves raw image bytes over HTTP on behalf of the cache
// coordinator. It owns the shared upstream http.Client (connection reuse,
// timeouts) and maps transport failures, non-2xx statuses, and oversize
// bodies to *NetworkError so the presentation layer can decide what to show.
package fetcher
