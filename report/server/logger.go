package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/vova616/xxhash"
	"go.uber.org/zap"
)

// Logger creates a middleware wrapper around a zap Sugared logger that logs
// HTTP requests.
func Logger(l *zap.SugaredLogger) func(next http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			lw := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			t1 := time.Now()
			h.ServeHTTP(lw, r)
			if lw.Status() == 0 {
				lw.WriteHeader(http.StatusOK)
			}
			line := requestLine(r.Method, r.URL.RequestURI(), lw.Status(), time.Since(t1))
			if lw.Status() < 500 {
				l.Info(line)
			} else {
				l.Warn(line)
			}
		}
		return http.HandlerFunc(fn)
	}
}

// requestLine renders "GET /path?<hash> 200 in 1.23ms". Query strings are
// hashed so report filters never end up in logs verbatim.
func requestLine(method, uri string, status int, d time.Duration) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s ", method)

	path, query, hasQuery := strings.Cut(uri, "?")
	if path == "" {
		path = "/"
	}
	buf.WriteString(path)
	if hasQuery {
		fmt.Fprintf(&buf, "?%#x", xxhash.Checksum32([]byte(query)))
	}
	fmt.Fprintf(&buf, " %03d in %.2fms", status, d.Seconds()*1000)
	return buf.String()
}
