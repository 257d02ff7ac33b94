package client

import (
	"time"

	"minihttp/application/http"
)

type Options struct {
	Decode  http.DecodeOptions
	Timeout TimeoutOptions

	// DefaultHeaders are added to every request that does not carry a field of the same name.
	DefaultHeaders []http.Field
	UserAgent      string

	// ReadBufferSize is the size of the buffer handed to each read.
	ReadBufferSize uint

	// UseReceivedReasonPhrase uses reason phrase from response.
	// If false, an empty reason phrase will instead be filled with default value for the status code.
	// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-4-9
	UseReceivedReasonPhrase bool
}

// TimeoutOptions bound each phase of an exchange. Zero means no limit.
type TimeoutOptions struct {
	Connect time.Duration
	Read    time.Duration
	Write   time.Duration
}

const DefaultUserAgent = "minihttp/1.0"

var DefaultOptions = Options{
	Decode: http.DefaultDecodeOptions,
	Timeout: TimeoutOptions{
		Connect: 10 * time.Second,
		Read:    30 * time.Second,
		Write:   30 * time.Second,
	},
	UserAgent:               DefaultUserAgent,
	ReadBufferSize:          4096,
	UseReceivedReasonPhrase: true,
}
