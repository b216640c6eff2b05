package inject

import (
	"bytes"
	"mime"
	"net/http"
	"strconv"
)

var headClose = []byte("</head>")

// InsertHead places snippet before the first </head>, matched without regard
// to case. Documents without a head get the snippet appended.
func InsertHead(body []byte, snippet string) []byte {
	if snippet == "" {
		return body
	}
	idx := bytes.Index(bytes.ToLower(body), headClose)
	if idx < 0 {
		out := make([]byte, 0, len(body)+len(snippet))
		out = append(out, body...)
		return append(out, snippet...)
	}
	out := make([]byte, 0, len(body)+len(snippet))
	out = append(out, body[:idx]...)
	out = append(out, snippet...)
	return append(out, body[idx:]...)
}

// RewriteFunc transforms a buffered HTML response body.
type RewriteFunc func(r *http.Request, status int, body []byte) []byte

// RewriteHTML buffers text/html responses from next and passes them through
// rewrite before they are sent. Other responses stream through untouched, as
// do encoded bodies.
func RewriteHTML(next http.Handler, rewrite RewriteFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		bw := &bufferedWriter{w: w}
		next.ServeHTTP(bw, r)
		if !bw.buffering() {
			return
		}
		body := rewrite(r, bw.status, bw.buf.Bytes())
		h := w.Header()
		h.Del("Content-Length")
		h.Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(bw.status)
		_, _ = w.Write(body)
	})
}

type bufferedWriter struct {
	w           http.ResponseWriter
	status      int
	wroteHeader bool
	passthrough bool
	buf         bytes.Buffer
}

func (b *bufferedWriter) Header() http.Header {
	return b.w.Header()
}

func (b *bufferedWriter) WriteHeader(code int) {
	if b.wroteHeader {
		return
	}
	// Informational responses precede the final one and are sent as they come.
	if code >= 100 && code < 200 && code != http.StatusSwitchingProtocols {
		b.w.WriteHeader(code)
		return
	}
	b.wroteHeader = true
	b.status = code
	h := b.w.Header()
	if !bodyAllowed(code) || h.Get("Content-Encoding") != "" || !isHTML(h.Get("Content-Type")) {
		b.passthrough = true
		b.w.WriteHeader(code)
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		if b.w.Header().Get("Content-Type") == "" {
			b.w.Header().Set("Content-Type", http.DetectContentType(p))
		}
		b.WriteHeader(http.StatusOK)
	}
	if b.passthrough {
		return b.w.Write(p) //nolint:wrapcheck // pass-through writer
	}
	return b.buf.Write(p) //nolint:wrapcheck // in-memory buffer
}

// Flush forwards flushes for streamed responses only.
func (b *bufferedWriter) Flush() {
	if !b.passthrough {
		return
	}
	if f, ok := b.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (b *bufferedWriter) buffering() bool {
	return b.wroteHeader && !b.passthrough
}

func bodyAllowed(code int) bool {
	return code >= 200 && code != http.StatusNoContent && code != http.StatusNotModified
}

func isHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "text/html"
}
