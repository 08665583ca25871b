// Package api serves the wildwatch HTTP API on a goa muxer
package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	goahttp "goa.design/goa/v3/http"
	goa "goa.design/goa/v3/pkg"

	"github.com/NarenCandy/wild-animal-detection/internal/middleware"
	"github.com/NarenCandy/wild-animal-detection/internal/services"
)

// Accounts is the account half of the API
type Accounts interface {
	Register(ctx context.Context, p *services.RegisterPayload) (*services.RegisterResult, error)
	Login(ctx context.Context, p *services.LoginPayload) (*services.TokenResult, error)
	Me(ctx context.Context) (*services.UserView, error)
	RegisterPlayer(ctx context.Context, p *services.PlayerPayload) (*services.OKResult, error)
}

// Alerts stores and lists alerts
type Alerts interface {
	Create(ctx context.Context, p *services.CreateAlertPayload) (*services.AlertView, error)
	List(ctx context.Context, p *services.ListAlertsPayload) (*services.AlertList, error)
	Delete(ctx context.Context, id string) (*services.DeleteResult, error)
}

// Monitor starts and stops camera monitoring
type Monitor interface {
	Start(ctx context.Context) (*services.MonitorStatusResult, error)
	Stop(ctx context.Context) (*services.MonitorStatusResult, error)
	Status(ctx context.Context) (*services.MonitorStatus, error)
}

// Health reports liveness and readiness
type Health interface {
	Healthz(ctx context.Context) (*services.HealthResult, error)
	Readyz(ctx context.Context) (*services.HealthResult, error)
}

// Services groups everything the server exposes. Nil members are not
// mounted, except Accounts, Alerts and Auth which are required.
type Services struct {
	Accounts Accounts
	Alerts   Alerts
	Monitor  Monitor
	Health   Health
	Auth     middleware.TokenValidator

	Metrics   http.Handler
	VideoFeed http.Handler
	Snapshot  http.Handler
	AlertFeed http.Handler
}

// MountPoint holds information about the mounted endpoints
type MountPoint struct {
	// Method is the name of the service method served by the mounted HTTP handler.
	Method string
	// Verb is the HTTP method used to match requests to the mounted handler.
	Verb string
	// Pattern is the HTTP request path pattern used to match requests to the
	// mounted handler.
	Pattern string
}

type route struct {
	MountPoint
	handler http.Handler
}

// Server lists the API endpoint HTTP handlers
type Server struct {
	Mounts []*MountPoint

	routes []*route
	svc    Services
	mux    goahttp.Muxer
	dec    func(*http.Request) goahttp.Decoder
	enc    func(context.Context, http.ResponseWriter) goahttp.Encoder
	eh     func(context.Context, http.ResponseWriter, error)
}

// New instantiates HTTP handlers for all the API endpoints
func New(
	svc Services,
	mux goahttp.Muxer,
	decoder func(*http.Request) goahttp.Decoder,
	encoder func(context.Context, http.ResponseWriter) goahttp.Encoder,
	errhandler func(context.Context, http.ResponseWriter, error),
) *Server {
	s := &Server{svc: svc, mux: mux, dec: decoder, enc: encoder, eh: errhandler}

	s.add("Root", "GET", "/", http.HandlerFunc(s.root), false)
	s.add("Register", "POST", "/auth/register", http.HandlerFunc(s.register), false)
	s.add("Login", "POST", "/auth/token", http.HandlerFunc(s.login), false)
	s.add("Me", "GET", "/users/me", http.HandlerFunc(s.me), true)
	s.add("RegisterPlayer", "POST", "/users/player", http.HandlerFunc(s.registerPlayer), true)
	s.add("CreateAlert", "POST", "/alerts", http.HandlerFunc(s.createAlert), true)
	s.add("ListAlerts", "GET", "/alerts/me", http.HandlerFunc(s.listAlerts), true)
	s.add("DeleteAlert", "DELETE", "/alerts/{id}", http.HandlerFunc(s.deleteAlert), true)

	if svc.Monitor != nil {
		s.add("StartMonitor", "POST", "/server/start", http.HandlerFunc(s.startMonitor), true)
		s.add("StopMonitor", "POST", "/server/stop", http.HandlerFunc(s.stopMonitor), true)
		s.add("MonitorStatus", "GET", "/server/status", http.HandlerFunc(s.monitorStatus), true)
	}
	if svc.Health != nil {
		s.add("Healthz", "GET", "/healthz", http.HandlerFunc(s.healthz), false)
		s.add("Readyz", "GET", "/readyz", http.HandlerFunc(s.readyz), false)
	}
	if svc.Metrics != nil {
		s.add("Metrics", "GET", "/metrics", svc.Metrics, false)
	}
	if svc.VideoFeed != nil {
		s.add("VideoFeed", "GET", "/video_feed", svc.VideoFeed, false)
	}
	if svc.Snapshot != nil {
		s.add("Snapshot", "GET", "/snapshot", svc.Snapshot, false)
	}
	if svc.AlertFeed != nil {
		// Browsers cannot set headers on websocket upgrades
		s.add("AlertFeed", "GET", "/ws/alerts", middleware.StreamAuthMiddleware(svc.Auth)(svc.AlertFeed), false)
	}
	return s
}

func (s *Server) add(method, verb, pattern string, h http.Handler, protected bool) {
	if protected {
		h = middleware.AuthMiddleware(s.svc.Auth)(h)
	}
	s.routes = append(s.routes, &route{MountPoint: MountPoint{Method: method, Verb: verb, Pattern: pattern}, handler: h})
	s.Mounts = append(s.Mounts, &MountPoint{Method: method, Verb: verb, Pattern: pattern})
}

// Service returns the name of the service served
func (s *Server) Service() string { return "wildwatch" }

// Use wraps the server handlers with the given middleware
func (s *Server) Use(m func(http.Handler) http.Handler) {
	for _, r := range s.routes {
		r.handler = m(r.handler)
	}
}

// MethodNames returns the methods served
func (s *Server) MethodNames() []string {
	names := make([]string, len(s.Mounts))
	for i, m := range s.Mounts {
		names[i] = m.Method
	}
	return names
}

// Mount configures the mux to serve the API endpoints
func Mount(mux goahttp.Muxer, s *Server) {
	for _, r := range s.routes {
		mux.Handle(r.Verb, r.Pattern, r.handler.ServeHTTP)
	}
}

// Streaming reports whether pattern serves a long-lived response that must
// not go through response capturing middleware
func Streaming(pattern string) bool {
	return pattern == "/video_feed" || pattern == "/ws/alerts"
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, map[string]string{"message": "Animal Alert Backend running"}, nil)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var p services.RegisterPayload
	if !s.decode(w, r, &p) {
		return
	}
	res, err := s.svc.Accounts.Register(r.Context(), &p)
	s.respond(w, r, res, err)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var p services.LoginPayload
	if !s.decode(w, r, &p) {
		return
	}
	res, err := s.svc.Accounts.Login(r.Context(), &p)
	s.respond(w, r, res, err)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Accounts.Me(r.Context())
	s.respond(w, r, res, err)
}

func (s *Server) registerPlayer(w http.ResponseWriter, r *http.Request) {
	var p services.PlayerPayload
	if !s.decode(w, r, &p) {
		return
	}
	res, err := s.svc.Accounts.RegisterPlayer(r.Context(), &p)
	s.respond(w, r, res, err)
}

func (s *Server) createAlert(w http.ResponseWriter, r *http.Request) {
	var p services.CreateAlertPayload
	if !s.decode(w, r, &p) {
		return
	}
	res, err := s.svc.Alerts.Create(r.Context(), &p)
	s.respond(w, r, res, err)
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	p, err := decodeListAlerts(r)
	if err != nil {
		s.respond(w, r, nil, err)
		return
	}
	res, err := s.svc.Alerts.List(r.Context(), p)
	s.respond(w, r, res, err)
}

func (s *Server) deleteAlert(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Alerts.Delete(r.Context(), s.mux.Vars(r)["id"])
	s.respond(w, r, res, err)
}

func (s *Server) startMonitor(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Monitor.Start(r.Context())
	s.respond(w, r, res, err)
}

func (s *Server) stopMonitor(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Monitor.Stop(r.Context())
	s.respond(w, r, res, err)
}

func (s *Server) monitorStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Monitor.Status(r.Context())
	s.respond(w, r, res, err)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Health.Healthz(r.Context())
	s.respond(w, r, res, err)
}

// readyz reports the failing checks in the body of its 503
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Health.Readyz(r.Context())
	if err != nil && res != nil {
		s.write(w, r, http.StatusServiceUnavailable, res)
		return
	}
	s.respond(w, r, res, err)
}

// decodeListAlerts reads the optional limit and since query parameters
func decodeListAlerts(r *http.Request) (*services.ListAlertsPayload, error) {
	p := &services.ListAlertsPayload{}
	q := r.URL.Query()

	var err error
	if v := q.Get("limit"); v != "" {
		limit, perr := strconv.Atoi(v)
		if perr != nil {
			err = goa.MergeErrors(err, goa.InvalidFieldTypeError("limit", v, "integer"))
		}
		p.Limit = limit
	}
	if v := q.Get("since"); v != "" {
		since, perr := time.Parse(time.RFC3339, v)
		if perr != nil {
			err = goa.MergeErrors(err, goa.InvalidFieldTypeError("since", v, "RFC3339 timestamp"))
		}
		p.Since = &since
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// decode reads a JSON body into v, writing a 400 when it cannot
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := s.dec(r).Decode(v)
	if err == nil {
		return true
	}
	if err == io.EOF {
		err = goa.MissingPayloadError()
	} else {
		err = goa.DecodePayloadError(err.Error())
	}
	s.respond(w, r, nil, err)
	return false
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, res any, err error) {
	if err != nil {
		encodeError(r.Context(), w, s.enc, s.eh, err)
		return
	}
	s.write(w, r, http.StatusOK, res)
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, status int, res any) {
	ctx := r.Context()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := s.enc(ctx, w).Encode(res); err != nil {
		s.eh(ctx, w, err)
	}
}
