package api

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"fctarget/app"
	"fctarget/domain/cluster"
	"fctarget/domain/core"
	"fctarget/internal"
	clusterx "fctarget/internal/cluster"
	"fctarget/internal/config"
	apperrors "fctarget/internal/errors"
	"fctarget/internal/metrics"
	"fctarget/ports"
)

// Runner executes a targeting run
type Runner interface {
	Run(ctx context.Context, req app.Request) (*app.Result, error)
}

// Live run states besides the terminal ports.RunStatus values
const (
	StateQueued  = "queued"
	StateRunning = "running"
)

// DefaultRetainedRuns bounds the finished runs kept in memory
const DefaultRetainedRuns = 256

// RunRequest is the POST /api/v1/runs body. Omitted parameters take the
// configured defaults.
type RunRequest struct {
	TimeSeries        string   `json:"time_series" binding:"required"`
	SeedMask          string   `json:"seed_mask" binding:"required"`
	TargetMask        string   `json:"target_mask" binding:"required"`
	OutputPrefix      string   `json:"output_prefix"`
	Permutations      *int     `json:"permutations"`
	Alpha             *float64 `json:"alpha"`
	MinClusterVoxels  *int     `json:"min_cluster_voxels"`
	Connectivity      *int     `json:"connectivity"`
	Bisided           *bool    `json:"bisided"`
	CenterMode        string   `json:"center_mode"`
	SelectionPolicy   string   `json:"selection_policy"`
	Seed              *int64   `json:"seed"`
	NativeCoordinates bool     `json:"native_coordinates"`
}

// RunState is the live view of a run held by the handler
type RunState struct {
	RunID       string        `json:"run_id"`
	State       string        `json:"state"`
	Error       string        `json:"error,omitempty"`
	ErrorCode   string        `json:"error_code,omitempty"`
	SubmittedAt time.Time     `json:"submitted_at"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
	Report      *ports.Report `json:"report,omitempty"`
	SinkErrors  []string      `json:"sink_errors,omitempty"`
}

// RunHandler serves the run endpoints
type RunHandler struct {
	runner   Runner
	reader   ports.ReportReader
	defaults config.TargetingConfig
	sem      *semaphore.Weighted
	hub      *SSEHub
	logger   *internal.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.RWMutex
	runs     map[string]*RunState
	finished []string // retained terminal runs, oldest first
	retain   int
}

// NewRunHandler creates the handler. At most maxActive runs execute at once;
// further submissions wait in the queued state.
func NewRunHandler(runner Runner, reader ports.ReportReader, defaults config.TargetingConfig, maxActive int, hub *SSEHub, logger *internal.Logger) *RunHandler {
	if maxActive < 1 {
		maxActive = 1
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RunHandler{
		runner:   runner,
		reader:   reader,
		defaults: defaults,
		sem:      semaphore.NewWeighted(int64(maxActive)),
		hub:      hub,
		logger:   logger.Component("api"),
		baseCtx:  ctx,
		cancel:   cancel,
		runs:     make(map[string]*RunState),
		retain:   DefaultRetainedRuns,
	}
}

// Shutdown cancels in-flight runs and waits for them to return
func (h *RunHandler) Shutdown() {
	h.cancel()
	h.wg.Wait()
}

// Wait blocks until every submitted run has finished
func (h *RunHandler) Wait() {
	h.wg.Wait()
}

// toRequest fills omitted parameters from the configured defaults
func (h *RunHandler) toRequest(body RunRequest) (app.Request, error) {
	d := h.defaults
	req := app.Request{
		RunID:             core.NewRunID(),
		TimeSeries:        body.TimeSeries,
		SeedMask:          body.SeedMask,
		TargetMask:        body.TargetMask,
		OutputPrefix:      body.OutputPrefix,
		Permutations:      d.Permutations,
		Alpha:             d.Alpha,
		NativeCoordinates: body.NativeCoordinates,
		Seed:              d.Seed,
		Cluster: clusterx.Options{
			MinVoxels:    d.MinClusterVoxels,
			Connectivity: cluster.Connectivity(d.Connectivity),
			Bisided:      d.Bisided,
		},
	}
	if body.Permutations != nil {
		req.Permutations = *body.Permutations
	}
	if body.Alpha != nil {
		req.Alpha = *body.Alpha
	}
	if body.MinClusterVoxels != nil {
		req.Cluster.MinVoxels = *body.MinClusterVoxels
	}
	if body.Connectivity != nil {
		req.Cluster.Connectivity = cluster.Connectivity(*body.Connectivity)
	}
	if body.Bisided != nil {
		req.Cluster.Bisided = *body.Bisided
	}
	if body.Seed != nil {
		req.Seed = *body.Seed
	}

	centerMode := d.CenterMode
	if body.CenterMode != "" {
		centerMode = body.CenterMode
	}
	mode, err := cluster.ParseCenterMode(centerMode)
	if err != nil {
		return req, core.NewValidationError("center_mode", err.Error())
	}
	req.Cluster.CenterMode = mode

	policyName := d.SelectionPolicy
	if body.SelectionPolicy != "" {
		policyName = body.SelectionPolicy
	}
	policy, err := cluster.ParseSelectionPolicy(policyName)
	if err != nil {
		return req, core.NewValidationError("selection_policy", err.Error())
	}
	req.SelectionPolicy = policy

	return req, req.Validate()
}

// CreateRun validates the request, queues the run and answers 202 with its id
func (h *RunHandler) CreateRun(c *gin.Context) {
	var body RunRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apperrors.ValidationError(err.Error()))
		return
	}
	req, err := h.toRequest(body)
	if err != nil {
		respondError(c, err)
		return
	}

	id := req.RunID.String()
	state := &RunState{RunID: id, State: StateQueued, SubmittedAt: time.Now().UTC()}
	h.mu.Lock()
	h.runs[id] = state
	h.mu.Unlock()
	h.hub.Broadcast(RunEvent{RunID: id, EventType: EventQueued, Status: StateQueued})

	h.wg.Add(1)
	go h.execute(req)

	c.Header("Location", "/api/v1/runs/"+id)
	c.JSON(http.StatusAccepted, gin.H{"run_id": id, "state": StateQueued})
}

func (h *RunHandler) execute(req app.Request) {
	defer h.wg.Done()
	id := req.RunID.String()

	if err := h.sem.Acquire(h.baseCtx, 1); err != nil {
		h.finish(id, nil, err)
		return
	}
	defer h.sem.Release(1)

	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	h.setState(id, StateRunning)
	h.hub.Broadcast(RunEvent{RunID: id, EventType: EventStarted, Status: StateRunning})
	h.logger.Info("[API] run %s started (%s, seed mask %s, target mask %s)", id, req.TimeSeries, req.SeedMask, req.TargetMask)

	res, err := h.runner.Run(h.baseCtx, req)
	h.finish(id, res, err)
}

func (h *RunHandler) setState(id, state string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.runs[id]; ok {
		s.State = state
	}
}

func (h *RunHandler) finish(id string, res *app.Result, err error) {
	now := time.Now().UTC()

	h.mu.Lock()
	s := h.runs[id]
	s.FinishedAt = &now
	if err != nil {
		s.State = string(ports.StatusFailed)
		s.Error = err.Error()
		s.ErrorCode = apperrors.GetCode(err)
	} else {
		s.State = string(res.Report.Status)
		s.Report = res.Report
		for _, se := range res.SinkErrors {
			s.SinkErrors = append(s.SinkErrors, se.Error())
		}
	}
	state := s.State
	h.release(id, err == nil && len(s.SinkErrors) == 0)
	h.mu.Unlock()

	if err != nil {
		h.logger.Warn("[API] run %s failed: %v", id, err)
		h.hub.Broadcast(RunEvent{RunID: id, EventType: EventFailed, Status: state, Data: map[string]interface{}{"error": err.Error()}})
		return
	}
	h.logger.Info("[API] run %s finished: %s", id, state)
	h.hub.Broadcast(RunEvent{RunID: id, EventType: EventCompleted, Status: state})
}

// release drops a terminal run from memory. A run the report store holds is
// dropped at once; the others are kept up to the retention limit.
// Callers hold h.mu.
func (h *RunHandler) release(id string, persisted bool) {
	if persisted && h.reader != nil {
		delete(h.runs, id)
		return
	}
	h.finished = append(h.finished, id)
	for len(h.finished) > h.retain {
		delete(h.runs, h.finished[0])
		h.finished = h.finished[1:]
	}
}

// GetRun answers the live state, falling back to the report store
func (h *RunHandler) GetRun(c *gin.Context) {
	id := c.Param("id")

	h.mu.RLock()
	s, ok := h.runs[id]
	var snapshot RunState
	if ok {
		snapshot = *s
	}
	h.mu.RUnlock()
	if ok {
		c.JSON(http.StatusOK, snapshot)
		return
	}

	if h.reader == nil {
		respondError(c, apperrors.NotFound("run "+id))
		return
	}
	rec, report, err := h.reader.GetRun(c.Request.Context(), core.RunID(id))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": rec.RunID, "state": rec.Status, "record": rec, "report": report})
}

// ListRuns returns stored runs, or the live runs when no store is configured
func (h *RunHandler) ListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		respondError(c, apperrors.ValidationError("limit must be a positive integer"))
		return
	}

	if h.reader != nil {
		records, err := h.reader.ListRuns(c.Request.Context(), limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": records})
		return
	}

	h.mu.RLock()
	live := make([]RunState, 0, len(h.runs))
	for _, s := range h.runs {
		snapshot := *s
		snapshot.Report = nil
		live = append(live, snapshot)
	}
	h.mu.RUnlock()
	sort.Slice(live, func(i, j int) bool { return live[i].SubmittedAt.After(live[j].SubmittedAt) })
	if len(live) > limit {
		live = live[:limit]
	}
	c.JSON(http.StatusOK, gin.H{"runs": live})
}

func respondError(c *gin.Context, err error) {
	c.JSON(apperrors.HTTPStatus(err), gin.H{"error": err.Error(), "code": apperrors.GetCode(err)})
}
