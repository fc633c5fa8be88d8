package artifact

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/smilemakc/mbflow-inference/internal/domain"
)

// roundSnapshotRow is the bun model for a persisted RoundSnapshot, modeled
// on internal/infrastructure/storage/workflow_repository.go's
// transactional tx.NewInsert().Model(...).Exec(ctx) pattern.
type roundSnapshotRow struct {
	bun.BaseModel `bun:"table:inference_round_snapshots,alias:rs"`

	TaskID         string    `bun:"task_id,pk"`
	Round          int       `bun:"round,pk"`
	PlanStepIndex  int       `bun:"plan_step_index"`
	VerifierVerdict string   `bun:"verifier_verdict"`
	CriticScore    float64   `bun:"critic_score"`
	Admitted       bool      `bun:"admitted"`
	Belief         float64   `bun:"belief"`
	Entropy        float64   `bun:"entropy"`
	EIG            float64   `bun:"eig"`
	Temperature    float64   `bun:"temperature"`
	CreatedAt      time.Time `bun:"created_at"`
}

type finalRecordRow struct {
	bun.BaseModel `bun:"table:inference_final_records,alias:fr"`

	TaskID           string    `bun:"task_id,pk"`
	FinalAnswer      string    `bun:"final_answer"`
	TerminationCause string    `bun:"termination_cause"`
	FinalBelief      float64   `bun:"final_belief"`
	Rounds           int       `bun:"rounds"`
	EventsFired      int       `bun:"events_fired"`
	CreatedAt        time.Time `bun:"created_at"`
}

// BunRecorder persists RoundSnapshots and FinalRecords to Postgres via bun,
// as an optional additional backend alongside FileRecorder — the durable,
// queryable store a long-running deployment would point a dashboard at,
// where FileRecorder's per-task directory is the lowest-common-denominator
// default.
type BunRecorder struct {
	db     *bun.DB
	taskID string
}

// OpenBunDB opens a Postgres connection the way
// internal/infrastructure/storage wires bun+pgdialect+pgdriver.
func OpenBunDB(dsn string) (*bun.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return db, nil
}

// NewBunRecorder wraps an already-open bun.DB for one task.
func NewBunRecorder(db *bun.DB, taskID string) *BunRecorder {
	return &BunRecorder{db: db, taskID: taskID}
}

// WriteRound upserts the round row transactionally, keyed by (task_id,
// round) so re-recording a round is idempotent.
func (r *BunRecorder) WriteRound(snapshot domain.RoundSnapshot) error {
	ctx := context.Background()
	row := roundSnapshotRow{
		TaskID:          r.taskID,
		Round:           snapshot.Round,
		PlanStepIndex:   snapshot.PlanStepIndex,
		VerifierVerdict: string(snapshot.VerifierVerdict),
		CriticScore:     snapshot.CriticScore,
		Admitted:        snapshot.Admitted,
		Belief:          snapshot.Belief,
		Entropy:         snapshot.Entropy,
		EIG:             snapshot.EIG,
		Temperature:     snapshot.Temperature,
		CreatedAt:       snapshot.Timestamp,
	}
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&row).
			On("CONFLICT (task_id, round) DO UPDATE").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert round snapshot: %w", err)
		}
		return nil
	})
}

// WriteFinal upserts the task's final record.
func (r *BunRecorder) WriteFinal(record domain.FinalRecord) error {
	ctx := context.Background()
	row := finalRecordRow{
		TaskID:           r.taskID,
		FinalAnswer:      record.FinalAnswer,
		TerminationCause: string(record.TerminationCause),
		FinalBelief:      record.FinalBelief,
		Rounds:           record.Rounds,
		EventsFired:      record.EventsFired,
		CreatedAt:        time.Now(),
	}
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&row).
			On("CONFLICT (task_id) DO UPDATE").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert final record: %w", err)
		}
		return nil
	})
}
