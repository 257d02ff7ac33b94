// Package status lists the HTTP status codes this client knows a reason phrase for.
package status

import "strconv"

type Status struct {
	Code         int
	ReasonPhrase string
}

func (s Status) String() string {
	if s.ReasonPhrase == "" {
		return strconv.Itoa(s.Code)
	}
	return strconv.Itoa(s.Code) + " " + s.ReasonPhrase
}

// Class is the first digit of the status code.
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-15-4
type Class int

const (
	ClassUnknown       Class = 0
	ClassInformational Class = 1
	ClassSuccessful    Class = 2
	ClassRedirection   Class = 3
	ClassClientError   Class = 4
	ClassServerError   Class = 5
)

func (s Status) Class() Class {
	if s.Code < 100 || s.Code > 599 {
		return ClassUnknown
	}
	return Class(s.Code / 100)
}

func (s Status) IsInformational() bool { return s.Class() == ClassInformational }
func (s Status) IsSuccess() bool       { return s.Class() == ClassSuccessful }
func (s Status) IsRedirection() bool   { return s.Class() == ClassRedirection }
func (s Status) IsClientError() bool   { return s.Class() == ClassClientError }
func (s Status) IsServerError() bool   { return s.Class() == ClassServerError }

// Informational 1XX
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-15.2
var (
	Continue           = add(Status{100, "Continue"})
	SwitchingProtocols = add(Status{101, "Switching Protocols"})
	Processing         = add(Status{102, "Processing"})
	EarlyHints         = add(Status{103, "Early Hints"})
)

// Successful 2XX
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-15.3
var (
	OK                   = add(Status{200, "OK"})
	Created              = add(Status{201, "Created"})
	Accepted             = add(Status{202, "Accepted"})
	NonAuthoritativeInfo = add(Status{203, "Non-Authoritative Information"})
	NoContent            = add(Status{204, "No Content"})
	ResetContent         = add(Status{205, "Reset Content"})
	PartialContent       = add(Status{206, "Partial Content"})
	MultiStatus          = add(Status{207, "Multi-Status"})
	AlreadyReported      = add(Status{208, "Already Reported"})
	IMUsed               = add(Status{226, "IM Used"})
)

// Redirection 3xx
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-15.4
var (
	MultipleChoices   = add(Status{300, "Multiple Choices"})
	MovedPermanently  = add(Status{301, "Moved Permanently"})
	Found             = add(Status{302, "Found"})
	SeeOther          = add(Status{303, "See Other"})
	NotModified       = add(Status{304, "Not Modified"})
	UseProxy          = add(Status{305, "Use Proxy"})
	TemporaryRedirect = add(Status{307, "Temporary Redirect"})
	PermanentRedirect = add(Status{308, "Permanent Redirect"})
)

// Client Error 4xx
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-15.5
var (
	BadRequest                  = add(Status{400, "Bad Request"})
	Unauthorized                = add(Status{401, "Unauthorized"})
	PaymentRequired             = add(Status{402, "Payment Required"})
	Forbidden                   = add(Status{403, "Forbidden"})
	NotFound                    = add(Status{404, "Not Found"})
	MethodNotAllowed            = add(Status{405, "Method Not Allowed"})
	NotAcceptable               = add(Status{406, "Not Acceptable"})
	ProxyAuthRequired           = add(Status{407, "Proxy Authentication Required"})
	RequestTimeout              = add(Status{408, "Request Timeout"})
	Conflict                    = add(Status{409, "Conflict"})
	Gone                        = add(Status{410, "Gone"})
	LengthRequired              = add(Status{411, "Length Required"})
	PreconditionFailed          = add(Status{412, "Precondition Failed"})
	ContentTooLarge             = add(Status{413, "Content Too Large"})
	URITooLong                  = add(Status{414, "URI Too Long"})
	UnsupportedMediaType        = add(Status{415, "Unsupported Media Type"})
	RangeNotSatisfiable         = add(Status{416, "Range Not Satisfiable"})
	ExpectationFailed           = add(Status{417, "Expectation Failed"})
	ImATeapot                   = add(Status{418, "I'm a teapot"})
	MisdirectedRequest          = add(Status{421, "Misdirected Request"})
	UnprocessableContent        = add(Status{422, "Unprocessable Content"})
	Locked                      = add(Status{423, "Locked"})
	FailedDependency            = add(Status{424, "Failed Dependency"})
	TooEarly                    = add(Status{425, "Too Early"})
	UpgradeRequired             = add(Status{426, "Upgrade Required"})
	PreconditionRequired        = add(Status{428, "Precondition Required"})
	TooManyRequests             = add(Status{429, "Too Many Requests"})
	RequestHeaderFieldsTooLarge = add(Status{431, "Request Header Fields Too Large"})
	UnavailableForLegalReasons  = add(Status{451, "Unavailable For Legal Reasons"})
)

// Server Error 5xx
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-15.6
var (
	InternalServerError           = add(Status{500, "Internal Server Error"})
	NotImplemented                = add(Status{501, "Not Implemented"})
	BadGateway                    = add(Status{502, "Bad Gateway"})
	ServiceUnavailable            = add(Status{503, "Service Unavailable"})
	GatewayTimeout                = add(Status{504, "Gateway Timeout"})
	HTTPVersionNotSupported       = add(Status{505, "HTTP Version Not Supported"})
	VariantAlsoNegotiates         = add(Status{506, "Variant Also Negotiates"})
	InsufficientStorage           = add(Status{507, "Insufficient Storage"})
	LoopDetected                  = add(Status{508, "Loop Detected"})
	NotExtended                   = add(Status{510, "Not Extended"})
	NetworkAuthenticationRequired = add(Status{511, "Network Authentication Required"})
)

var sm = make(map[int]*Status)

func add(status Status) Status {
	sm[status.Code] = &status
	return status
}

// FromCode looks code up in the table.
// Unknown codes come back with an empty reason phrase and ok == false.
func FromCode(code int) (status Status, ok bool) {
	s, ok := sm[code]
	if !ok {
		return Status{Code: code, ReasonPhrase: ""}, false
	}

	return *s, true
}
