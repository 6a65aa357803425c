// Command h2get issues a single GET over a raw HTTP/2 connection and prints
// the response status, headers and body. It exists to exercise the public
// Conn/Stream API end to end against a real server, the way the teacher's
// examples/client used a fasthttp.HostClient to hit a live API.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	h2stream "github.com/cloudpeek/h2stream"
	"github.com/valyala/fasthttp"
)

func main() {
	addr := flag.String("addr", "", "target URL, e.g. https://example.com/path")
	timeout := flag.Duration("timeout", 10*time.Second, "per-call timeout")
	flag.Parse()

	if *addr == "" {
		fmt.Fprintln(os.Stderr, "usage: h2get -addr https://host[:port]/path")
		os.Exit(2)
	}

	u := &fasthttp.URI{}
	if err := u.Parse(nil, []byte(*addr)); err != nil {
		log.Fatalf("parse url: %v", err)
	}
	if string(u.Scheme()) != "https" {
		log.Fatalf("h2get only dials TLS+ALPN h2, got scheme %q", u.Scheme())
	}

	host := string(u.Host())
	if !hasPort(host) {
		host += ":443"
	}

	dialer := &h2stream.Dialer{Addr: host}
	conn, err := dialer.Dial(h2stream.ConnOpts{})
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	stream, err := conn.OpenStream()
	if err != nil {
		log.Fatalf("open stream: %v", err)
	}

	path := u.RequestURI()
	if len(path) == 0 {
		path = []byte("/")
	}

	headers := []*h2stream.HeaderField{
		newHeader(h2stream.PseudoHeaderMethod, []byte("GET")),
		newHeader(h2stream.PseudoHeaderScheme, []byte("https")),
		newHeader(h2stream.PseudoHeaderAuthority, u.Host()),
		newHeader(h2stream.PseudoHeaderPath, path),
	}

	if err := stream.WriteHeaders(headers, true, *timeout); err != nil {
		log.Fatalf("write headers: %v", err)
	}

	respHeaders, err := stream.GetHeaders(*timeout)
	if err != nil {
		log.Fatalf("get headers: %v", err)
	}

	for _, hf := range respHeaders {
		fmt.Printf("%s: %s\n", hf.Key(), hf.Value())
	}
	fmt.Println()

	var body []byte
	for {
		chunk, err := stream.GetNextChunk(*timeout)
		if err == h2stream.ErrClosedPipe {
			break
		}
		if err != nil {
			log.Fatalf("get chunk: %v", err)
		}
		body = append(body, chunk.Data()...)
	}

	fmt.Printf("%s\n", body)
}

func newHeader(key, value []byte) *h2stream.HeaderField {
	hf := h2stream.AcquireHeaderField()
	hf.SetBytes(key, value)
	return hf
}

func hasPort(host string) bool {
	for i := len(host) - 1; i >= 0 && host[i] != ']'; i-- {
		if host[i] == ':' {
			return true
		}
	}
	return false
}
