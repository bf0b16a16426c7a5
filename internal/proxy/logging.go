package proxy

import (
	"log"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Flush keeps streaming upstream responses working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func withLogging(logger *logrus.Logger, clock func() time.Time, next http.Handler) http.Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if clock == nil {
		clock = time.Now
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := clock()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		fields := logrus.Fields{
			"method":  r.Method,
			"url":     r.URL.String(),
			"host":    r.Host,
			"ua":      r.UserAgent(),
			"from":    r.RemoteAddr,
			"status":  rec.status,
			"bytes":   rec.bytes,
			"elapsed": clock().Sub(start).Round(time.Microsecond),
		}
		if v := r.Header.Get("X-Forwarded-For"); v != "" {
			fields["xff"] = v
		}
		logger.WithFields(fields).Info("request")
	})
}

// newErrorLog routes net/http internal errors into logger.
func newErrorLog(logger *logrus.Logger) *log.Logger {
	return log.New(logger.WriterLevel(logrus.ErrorLevel), "", 0)
}
