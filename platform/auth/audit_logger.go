package auth

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// AuditLogger records one json line per authenticated api request plus
// account lifecycle events, so access to a team's data can be traced after
// the fact.
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(stream io.Writer) AuditLogger {
	logger := slog.New(slog.NewJSONHandler(stream, nil))
	return AuditLogger{logger: logger}
}

// Event records a non-request audit event, such as a login or signup.
func (log *AuditLogger) Event(name string, attrs ...interface{}) {
	log.logger.Info(name, attrs...)
}

var forwardedIpHeaders = []string{"X-Real-Ip", "X-Forwarded-For"}

func clientIp(r *http.Request) string {
	for _, header := range forwardedIpHeaders {
		if ip := r.Header.Get(header); ip != "" {
			return ip
		}
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// routeAttrs splits the matched route parameters into the team id, which
// every team-scoped route carries and which gets a top level field, and the
// remaining parameters.
func routeAttrs(r *http.Request) (string, []interface{}) {
	params := make([]interface{}, 0)

	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "", params
	}

	teamId := ""
	for i, key := range rctx.URLParams.Keys {
		switch key {
		case "*":
		case "team_id":
			teamId = rctx.URLParams.Values[i]
		default:
			params = append(params, slog.String(key, rctx.URLParams.Values[i]))
		}
	}
	return teamId, params
}

func queryAttrs(r *http.Request) []interface{} {
	params := make([]interface{}, 0)
	for k, v := range r.URL.Query() {
		params = append(params, slog.String(k, strings.Join(v, ";")))
	}
	return params
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Middleware logs each request after it completes, so the entry carries the
// response status and the fully matched route parameters.
func (log *AuditLogger) Middleware(next http.Handler) http.Handler {
	handler := func(w http.ResponseWriter, r *http.Request) {
		user, err := UserFromContext(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		teamId, pathParams := routeAttrs(r)
		log.logger.Info("api_request",
			"username", user.Username,
			"user_id", user.Id,
			"team_id", teamId,
			"client_ip", clientIp(r),
			"method", r.Method,
			"url", r.URL.Path,
			"status", recorder.status,
			slog.Group("path_params", pathParams...),
			slog.Group("query_params", queryAttrs(r)...),
		)
	}
	return http.HandlerFunc(handler)
}
