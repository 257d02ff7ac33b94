// Package uri parses the absolute URIs a client is asked to fetch.
//
// Reference:
//
// - https://datatracker.ietf.org/doc/html/rfc3986
package uri
