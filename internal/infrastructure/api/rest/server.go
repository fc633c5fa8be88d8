// Package rest is the thin HTTP surface the out-of-scope outer harness
// drives to trigger a solve() run, modeled on mbflow's
// internal/infrastructure/api/rest handler package layout (one handler
// file per resource, gin.Engine assembled in NewRouter).
package rest

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/smilemakc/mbflow-inference/internal/artifact"
	"github.com/smilemakc/mbflow-inference/internal/config"
	"github.com/smilemakc/mbflow-inference/internal/domain"
	"github.com/smilemakc/mbflow-inference/internal/execclient"
	"github.com/smilemakc/mbflow-inference/internal/infrastructure/audit"
	"github.com/smilemakc/mbflow-inference/internal/infrastructure/harnessauth"
	"github.com/smilemakc/mbflow-inference/internal/infrastructure/logger"
	"github.com/smilemakc/mbflow-inference/internal/llmclient"
	"github.com/smilemakc/mbflow-inference/internal/loop"
)

// Server wires the default capability clients into the control loop behind
// a single task-submission endpoint, plus a websocket stream dashboards can
// subscribe to for live round-by-round progress.
type Server struct {
	llm         llmclient.Client
	executor    execclient.Executor
	log         *logger.Logger
	artifactDir string
	authSecret  string
	notifier    *artifact.WSNotifier
	// bunDB is the optional durable Postgres backend; nil means FileRecorder
	// is the only persistence (fine for local/dev use).
	bunDB *bun.DB
}

// NewServer builds a Server from already-constructed capability clients.
func NewServer(llm llmclient.Client, executor execclient.Executor, log *logger.Logger, artifactDir, authSecret string) *Server {
	return &Server{
		llm:         llm,
		executor:    executor,
		log:         log,
		artifactDir: artifactDir,
		authSecret:  authSecret,
		notifier:    artifact.NewWSNotifier(),
	}
}

// WithBunDB attaches the optional Postgres-backed recorder; every task
// submitted afterward is recorded to both the file and bun backends.
func (s *Server) WithBunDB(db *bun.DB) *Server {
	s.bunDB = db
	return s
}

// multiRecorder fans a round/final write out to more than one backend,
// failing on the first error (spec.md doesn't require all-or-nothing
// durability across backends, but surfacing the first failure is simplest).
type multiRecorder struct {
	backends []artifact.Recorder
}

func (m multiRecorder) WriteRound(snapshot domain.RoundSnapshot) error {
	for _, b := range m.backends {
		if err := b.WriteRound(snapshot); err != nil {
			return fmt.Errorf("%T: %w", b, err)
		}
	}
	return nil
}

func (m multiRecorder) WriteFinal(record domain.FinalRecord) error {
	for _, b := range m.backends {
		if err := b.WriteFinal(record); err != nil {
			return fmt.Errorf("%T: %w", b, err)
		}
	}
	return nil
}

// NewRouter assembles the gin.Engine.
func (s *Server) NewRouter() *gin.Engine {
	r := gin.New()
	r.Use(NewRecoveryMiddleware(s.log).Recovery())
	r.Use(NewLoggingMiddleware(s.log).RequestLogger())
	r.Use(NewBodySizeMiddleware(s.log, 10<<20).LimitBodySize())

	v1 := r.Group("/v1")
	v1.Use(harnessauth.Middleware(s.authSecret))
	v1.POST("/tasks", s.handleCreateTask)
	v1.GET("/tasks/stream", s.handleStream)

	return r
}

// handleStream upgrades the connection and registers it to receive every
// RoundSnapshot broadcast by whichever task is currently running.
func (s *Server) handleStream(c *gin.Context) {
	if err := s.notifier.HandleUpgrade(c.Writer, c.Request); err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
	}
}

type createTaskRequest struct {
	Question       string         `json:"question" binding:"required"`
	DifficultyHint string         `json:"difficulty_hint"`
	Metadata       map[string]any `json:"metadata"`
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := bindJSON(c, &req); err != nil {
		return
	}

	taskID := uuid.New().String()
	fileRecorder, err := artifact.NewFileRecorder(s.artifactDir, taskID)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	var recorder artifact.Recorder = fileRecorder
	if s.bunDB != nil {
		recorder = multiRecorder{backends: []artifact.Recorder{fileRecorder, artifact.NewBunRecorder(s.bunDB, taskID)}}
	}

	bundle := domain.ContextBundle{
		Question:       req.Question,
		DifficultyHint: req.DifficultyHint,
		Metadata:       req.Metadata,
	}
	cfg := config.DefaultSolveConfig()

	ctx, cancel := c.Request.Context(), func() {}
	_ = cancel
	start := time.Now()

	record, err := loop.Solve(ctx, loop.Deps{
		LLM:      s.llm,
		Executor: s.executor,
		Recorder: recorder,
		Notifier: loop.NotifierFunc(func(e loop.RoundEvent) { s.notifier.Broadcast(e.Snapshot) }),
		Log:      s.log,
		Audit:    audit.New(nil, taskID),
	}, bundle, cfg)
	if err != nil {
		respondAPIError(c, err)
		return
	}

	s.log.Info("task completed", "task_id", taskID, "duration", time.Since(start), "termination_cause", record.TerminationCause)
	c.JSON(http.StatusOK, gin.H{
		"task_id": taskID,
		"result":  record,
	})
}
