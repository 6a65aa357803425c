package h2stream

import (
	"log"
	"os"
)

// Logger is the diagnostic sink Conn reports protocol errors and connection
// lifecycle events to. It matches github.com/valyala/fasthttp.Logger so a
// caller already running fasthttp can pass its existing logger straight
// through.
type Logger interface {
	Printf(format string, args ...interface{})
}

var defaultLogger Logger = log.New(os.Stderr, "h2stream: ", log.LstdFlags)
