package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AaronLay10/questgraph/internal/container"
	"github.com/AaronLay10/questgraph/internal/events"
	"github.com/AaronLay10/questgraph/internal/orchestrator"
	"github.com/AaronLay10/questgraph/internal/world"
)

// Dispatcher runs fn on the goroutine that owns the graph and waits for it.
type Dispatcher interface {
	Call(ctx context.Context, fn func()) error
}

// Server exposes a graph over HTTP. Every graph access goes through the
// dispatcher.
type Server struct {
	graph    *orchestrator.Graph
	dispatch Dispatcher
	log      *slog.Logger
	mux      *http.ServeMux

	// Timeout bounds how long a request waits for the graph loop.
	Timeout time.Duration
}

// NewServer creates a server and registers its routes.
func NewServer(g *orchestrator.Graph, d Dispatcher, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		graph:    g,
		dispatch: d,
		log:      log.With("component", "api"),
		mux:      http.NewServeMux(),
		Timeout:  5 * time.Second,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", healthHandler)
	s.mux.HandleFunc("GET /ready", readyHandler)
	s.mux.HandleFunc("GET /events", eventsHandler)
	s.mux.HandleFunc("GET /ws/events", s.wsEventsHandler)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.HandleFunc("GET /graph/tasks", s.tasksHandler)
	s.mux.HandleFunc("POST /graph/start", RequireAnyRole(s.startHandler))
	s.mux.HandleFunc("POST /graph/stop", RequireAnyRole(s.stopHandler))
	s.mux.HandleFunc("POST /graph/reset", RequireAdmin(s.resetHandler))

	s.mux.HandleFunc("POST /operator/task", RequireAnyRole(s.operatorTaskHandler))
	s.mux.HandleFunc("POST /operator/condition", RequireAnyRole(s.operatorConditionHandler))

	s.mux.HandleFunc("GET /containers/{name}", s.containerHandler)
	s.mux.HandleFunc("POST /containers/{name}/modify", RequireAnyRole(s.containerModifyHandler))

	s.mux.HandleFunc("GET /objects", s.objectsHandler)
	s.mux.HandleFunc("GET /objects/{id}", s.objectHandler)
	s.mux.HandleFunc("POST /objects/spawned", RequireAnyRole(s.objectSpawnedHandler))
	s.mux.HandleFunc("POST /objects/entered", RequireAnyRole(s.objectEnteredHandler))
	s.mux.HandleFunc("POST /objects/destroyed", RequireAnyRole(s.objectDestroyedHandler))
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.mux }

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "questgraph",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func eventsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, events.Snapshot())
}

type OperatorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ConditionView is one condition in a task listing.
type ConditionView struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	State   string `json:"state"`
	Trigger bool   `json:"trigger"`
}

// TaskView is one task in GET /graph/tasks.
type TaskView struct {
	ID          orchestrator.TaskID `json:"id"`
	Name        string              `json:"name"`
	Kind        string              `json:"kind"`
	State       string              `json:"state"`
	Category    int                 `json:"category,omitempty"`
	Activations int                 `json:"activations"`
	Conditions  []ConditionView     `json:"conditions,omitempty"`
}

// GraphView is the body of GET /graph/tasks.
type GraphView struct {
	Name       string     `json:"name"`
	Session    string     `json:"session,omitempty"`
	Simulating bool       `json:"simulating"`
	Tasks      []TaskView `json:"tasks"`
}

func taskView(t *orchestrator.Task) TaskView {
	v := TaskView{
		ID:          t.ID,
		Name:        t.Name,
		Kind:        t.Kind.String(),
		State:       t.Result().String(),
		Category:    t.Category,
		Activations: t.Activations(),
	}
	for _, c := range t.Conditions() {
		v.Conditions = append(v.Conditions, ConditionView{
			Name:    c.Name(),
			Kind:    c.Kind(),
			State:   c.Result().String(),
			Trigger: c.Trigger(),
		})
	}
	return v
}

// tasksHandler lists the tasks in task order followed by the operators and
// end nodes. Hidden tasks are left out.
func (s *Server) tasksHandler(w http.ResponseWriter, r *http.Request) {
	var view GraphView
	err := s.call(r.Context(), func() {
		view = GraphView{
			Name:       s.graph.Name(),
			Session:    s.graph.Session(),
			Simulating: s.graph.Simulating(),
			Tasks:      []TaskView{},
		}
		listed := make(map[orchestrator.TaskID]bool)
		for _, id := range s.graph.CreateTaskOrder() {
			t, err := s.graph.Task(id)
			if err != nil || t.Hidden {
				continue
			}
			listed[id] = true
			view.Tasks = append(view.Tasks, taskView(t))
		}
		for _, t := range s.graph.Tasks() {
			if !listed[t.ID] && !t.Hidden && t.Kind != orchestrator.KindTask {
				view.Tasks = append(view.Tasks, taskView(t))
			}
		}
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) startHandler(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, "graph.started", nil, s.graph.Start)
}

func (s *Server) stopHandler(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, "", nil, func() error {
		s.graph.Stop()
		return nil
	})
}

func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, "graph.reset", nil, func() error {
		s.graph.Reset()
		return nil
	})
}

func (s *Server) operatorTaskHandler(w http.ResponseWriter, r *http.Request) {
	var cmd orchestrator.TaskCommand
	if !decode(w, r, &cmd) {
		return
	}
	if cmd.Task == "" || cmd.State == "" {
		writeJSON(w, http.StatusBadRequest, OperatorResponse{Error: "task and state required"})
		return
	}
	s.apply(w, r, "operator.set_state", map[string]interface{}{
		"task":   cmd.Task,
		"state":  cmd.State,
		"source": "api",
	}, func() error { return s.graph.ApplyTask(cmd) })
}

func (s *Server) operatorConditionHandler(w http.ResponseWriter, r *http.Request) {
	var cmd orchestrator.ConditionCommand
	if !decode(w, r, &cmd) {
		return
	}
	if cmd.Task == "" || cmd.Condition == "" || cmd.Action == "" {
		writeJSON(w, http.StatusBadRequest, OperatorResponse{Error: "task, condition and action required"})
		return
	}
	s.apply(w, r, "operator.condition", map[string]interface{}{
		"task":      cmd.Task,
		"condition": cmd.Condition,
		"action":    cmd.Action,
		"source":    "api",
	}, func() error { return s.graph.ApplyCondition(cmd) })
}

// ContainerView is the body of GET /containers/{name}.
type ContainerView struct {
	Name  string         `json:"name"`
	Kind  string         `json:"kind"`
	Items map[string]int `json:"items"`
}

func (s *Server) containerHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var (
		view ContainerView
		err  error
	)
	callErr := s.call(r.Context(), func() {
		var p container.Pool
		p, err = s.graph.Pools().Lookup(name)
		if err != nil {
			return
		}
		view = ContainerView{Name: p.Name(), Kind: "container", Items: make(map[string]int)}
		if _, ok := p.(*container.Manager); ok {
			view.Kind = "manager"
		}
		for _, item := range p.ItemNames() {
			view.Items[item] = p.ItemValue(item)
		}
	})
	if callErr != nil {
		err = callErr
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ModifyRequest is the body of POST /containers/{name}/modify.
type ModifyRequest struct {
	Item    string `json:"item"`
	Delta   int    `json:"delta"`
	Divider int    `json:"divider,omitempty"`
	DryRun  bool   `json:"dry_run,omitempty"`
}

// ModifyResponse reports the part of the change that did not fit.
type ModifyResponse struct {
	OK        bool `json:"ok"`
	Remainder int  `json:"remainder"`
}

func (s *Server) containerModifyHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req ModifyRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Item == "" {
		writeJSON(w, http.StatusBadRequest, OperatorResponse{Error: "item required"})
		return
	}
	if req.Divider == 0 {
		req.Divider = 1
	}
	if req.Divider < 0 {
		writeJSON(w, http.StatusBadRequest, OperatorResponse{Error: "divider must be positive"})
		return
	}

	var (
		left int
		err  error
	)
	callErr := s.call(r.Context(), func() {
		left, err = s.graph.Pools().Modify(name, req.Item, req.Delta, req.Divider, req.DryRun)
	})
	if callErr != nil {
		err = callErr
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	if !req.DryRun {
		events.Emit("info", "operator.container", "", map[string]interface{}{
			"pool":      name,
			"item":      req.Item,
			"delta":     req.Delta,
			"remainder": left,
			"source":    "api",
		})
	}
	writeJSON(w, http.StatusOK, ModifyResponse{OK: true, Remainder: left})
}

// ObjectRequest is the body of the /objects endpoints.
type ObjectRequest struct {
	ID     string   `json:"id"`
	Kind   string   `json:"kind,omitempty"`
	Region string   `json:"region,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

func (s *Server) objectRequest(w http.ResponseWriter, r *http.Request, needRegion bool) (ObjectRequest, bool) {
	var req ObjectRequest
	if !decode(w, r, &req) {
		return req, false
	}
	if req.ID == "" || (needRegion && req.Region == "") {
		writeJSON(w, http.StatusBadRequest, OperatorResponse{Error: "id and region required"})
		return req, false
	}
	return req, true
}

func (s *Server) objectsHandler(w http.ResponseWriter, r *http.Request) {
	var objects []*world.Object
	if err := s.call(r.Context(), func() { objects = s.graph.World().All() }); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, objects)
}

func (s *Server) objectHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var obj *world.Object
	if err := s.call(r.Context(), func() { obj = s.graph.World().Get(id) }); err != nil {
		s.fail(w, err)
		return
	}
	if obj == nil {
		s.fail(w, fmt.Errorf("%w: %s", errUnknownObject, id))
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

func (s *Server) objectSpawnedHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := s.objectRequest(w, r, false)
	if !ok {
		return
	}
	s.apply(w, r, "object.spawned", map[string]interface{}{"object": req.ID}, func() error {
		return s.graph.SpawnObject(world.Object{ID: req.ID, Kind: req.Kind, Region: req.Region, Tags: req.Tags})
	})
}

func (s *Server) objectEnteredHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := s.objectRequest(w, r, true)
	if !ok {
		return
	}
	s.apply(w, r, "object.entered", map[string]interface{}{"object": req.ID, "region": req.Region}, func() error {
		s.graph.ObjectEntered(req.ID, req.Region)
		return nil
	})
}

func (s *Server) objectDestroyedHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := s.objectRequest(w, r, false)
	if !ok {
		return
	}
	s.apply(w, r, "object.destroyed", map[string]interface{}{"object": req.ID}, func() error {
		s.graph.ObjectDestroyed(req.ID)
		return nil
	})
}

// apply runs fn on the graph loop, emits event on success and writes the
// operator response.
func (s *Server) apply(w http.ResponseWriter, r *http.Request, event string, fields map[string]interface{}, fn func() error) {
	var err error
	if callErr := s.call(r.Context(), func() { err = fn() }); callErr != nil {
		err = callErr
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	if event != "" {
		events.Emit("info", event, "", fields)
	}
	writeJSON(w, http.StatusOK, OperatorResponse{OK: true})
}

func (s *Server) call(ctx context.Context, fn func()) error {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	if err := s.dispatch.Call(ctx, fn); err != nil {
		return fmt.Errorf("%w: %v", errUnavailable, err)
	}
	return nil
}

var (
	errUnavailable   = errors.New("graph unavailable")
	errUnknownObject = errors.New("unknown object")
)

// statusFor maps graph errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, orchestrator.ErrUnknownTask),
		errors.Is(err, orchestrator.ErrUnknownCondition),
		errors.Is(err, container.ErrUnknownPool),
		errors.Is(err, errUnknownObject):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrAlreadyRunning):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
	} else {
		s.log.Warn("request rejected", "error", err)
	}
	writeJSON(w, status, OperatorResponse{Error: err.Error()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, OperatorResponse{Error: "invalid JSON"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListenAndServe serves on port until ctx is cancelled, then shuts down
// gracefully. TLS is used when configured through InitTLS.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	tlsCfg, err := LoadTLSConfig()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.mux,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening", "addr", srv.Addr, "tls", tlsCfg != nil)
		if tlsCfg != nil {
			errCh <- srv.ListenAndServeTLS("", "")
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	events.CloseAllSubscribers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
