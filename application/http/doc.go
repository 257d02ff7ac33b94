// Package http implements the HTTP/1.1 message layer of the client:
// the request model and its wire encoding, and a push-driven response parser.
//
// Reference:
//
// - https://datatracker.ietf.org/doc/html/rfc9110
//
// - https://datatracker.ietf.org/doc/html/rfc9112
package http
