package h2stream

import "fmt"

// ErrorCode is one of the HTTP/2 error codes from RFC 7540 section 11.4.
type ErrorCode uint32

const (
	NoError              ErrorCode = 0x0
	ProtocolError        ErrorCode = 0x1
	InternalError        ErrorCode = 0x2
	FlowControlError     ErrorCode = 0x3
	SettingsTimeoutError ErrorCode = 0x4
	StreamClosedError    ErrorCode = 0x5
	FrameSizeError       ErrorCode = 0x6
	RefusedStreamError   ErrorCode = 0x7
	CancelError          ErrorCode = 0x8
	CompressionError     ErrorCode = 0x9
	ConnectError         ErrorCode = 0xa
	EnhanceYourCalmError ErrorCode = 0xb
	InadequateSecurity   ErrorCode = 0xc
	HTTP11Required       ErrorCode = 0xd
)

var codeNames = [...]string{
	NoError:              "NO_ERROR",
	ProtocolError:        "PROTOCOL_ERROR",
	InternalError:        "INTERNAL_ERROR",
	FlowControlError:     "FLOW_CONTROL_ERROR",
	SettingsTimeoutError: "SETTINGS_TIMEOUT",
	StreamClosedError:    "STREAM_CLOSED",
	FrameSizeError:       "FRAME_SIZE_ERROR",
	RefusedStreamError:   "REFUSED_STREAM",
	CancelError:          "CANCEL",
	CompressionError:     "COMPRESSION_ERROR",
	ConnectError:         "CONNECT_ERROR",
	EnhanceYourCalmError: "ENHANCE_YOUR_CALM",
	InadequateSecurity:   "INADEQUATE_SECURITY",
	HTTP11Required:       "HTTP_1_1_REQUIRED",
}

func (c ErrorCode) String() string {
	if int(c) < len(codeNames) && codeNames[c] != "" {
		return codeNames[c]
	}
	return fmt.Sprintf("ERROR_CODE(%#x)", uint32(c))
}

// Scope tells a connection collaborator whether an Error should close the
// whole connection (GOAWAY) or only reset the offending stream.
type Scope int

const (
	// ScopeStream: reset the single stream that produced the error.
	ScopeStream Scope = iota
	// ScopeConnection: the error is connection-wide; send GOAWAY.
	ScopeConnection
)

// Error is the protocol-error registry spec.md section 9 calls for: a value
// that can be returned by inbound handlers (the normal path) or raised with
// panic by outbound writers guarding programmer-bug preconditions (e.g.
// RST_STREAM on an idle stream). It is never thrown across the inbound
// dispatcher; handlers always return it as a value so the connection layer
// can decide between GOAWAY and RST_STREAM.
type Error struct {
	Code    ErrorCode
	Scope   Scope
	Message string
}

// NewError constructs a connection-scoped Error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Scope: ScopeConnection, Message: message}
}

// NewStreamError constructs a stream-scoped Error (RST_STREAM, not GOAWAY).
func NewStreamError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Scope: ScopeStream, Message: message}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// I/O and timing errors returned from blocking application-facing calls
// without mutating stream state (spec.md section 7, kind 2).
var (
	// ErrClosedPipe is returned by GetNextChunk/GetHeaders when the stream
	// ended cleanly (END_STREAM) and there is nothing left to deliver.
	ErrClosedPipe = fmt.Errorf("h2stream: closed pipe")
	// ErrTimeout is returned by any blocking call whose deadline elapsed.
	ErrTimeout = fmt.Errorf("h2stream: i/o timeout")
	// ErrPushNotImplemented's text is the message of the stream-scoped
	// REFUSED_STREAM Error the PUSH_PROMISE receive handler returns; see
	// SPEC_FULL.md section 9.
	ErrPushNotImplemented = fmt.Errorf("h2stream: push promise is not implemented")
)
