package accesslog

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

const clfTime = "02/Jan/2006:15:04:05 -0700"

type recordingWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *recordingWriter) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Middleware appends one Combined Log Format line per request to out.
// Write errors are reported to l and never fail the request.
func Middleware(out io.Writer, l *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &recordingWriter{ResponseWriter: w}
			next.ServeHTTP(rw, r)
			if rw.status == 0 {
				rw.status = http.StatusOK
			}
			if _, err := io.WriteString(out, formatLine(r, rw.status, rw.size, start)); err != nil && l != nil {
				l.WithContext(r.Context()).WithError(err).Warn("accesslog: write failed")
			}
		})
	}
}

func formatLine(r *http.Request, status, size int, at time.Time) string {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	user := "-"
	if u, _, ok := r.BasicAuth(); ok && u != "" {
		user = u
	}
	bytes := "-"
	if size > 0 {
		bytes = strconv.Itoa(size)
	}
	return fmt.Sprintf("%s - %s [%s] \"%s %s %s\" %d %s %q %q\n",
		orDash(host), user, at.Format(clfTime),
		r.Method, r.URL.RequestURI(), r.Proto,
		status, bytes, orDash(r.Referer()), orDash(r.UserAgent()))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
