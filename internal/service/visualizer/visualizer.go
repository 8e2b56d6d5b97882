// Package visualizer orchestrates one visualization request: parse, plan,
// simulate, assemble, all against the caller's session database.
package visualizer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"sqlflow/internal/domain"
	"sqlflow/internal/plan"
	"sqlflow/internal/simulate"
	"sqlflow/internal/sqlparse"
)

// Service runs visualizations and direct statements against sessions.
type Service struct {
	logger      *slog.Logger
	sessions    domain.Sessions
	timeout     time.Duration
	maxJoinRows int
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout sets the wall-clock budget for one visualization.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithMaxJoinRows caps the rows a join stage may materialize.
func WithMaxJoinRows(n int) Option {
	return func(s *Service) { s.maxJoinRows = n }
}

// New creates the visualizer service.
func New(logger *slog.Logger, sessions domain.Sessions, opts ...Option) *Service {
	s := &Service{
		logger:   logger,
		sessions: sessions,
		timeout:  10 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Visualize traces the execution of one SELECT statement through the logical
// clause order and returns the full trace.
func (s *Service) Visualize(ctx context.Context, sessionID, query string) (*domain.QueryVisualization, error) {
	if sessionID == "" {
		return nil, domain.ErrValidation("session id is required")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrValidation("query is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	q, err := sqlparse.Parse(query)
	if err != nil {
		return nil, domain.ErrParse("%v", err)
	}
	stages := plan.Build(q)

	eng, release, err := s.sessions.Acquire(ctx, sessionID, true)
	if err != nil {
		return nil, err
	}
	defer release()

	sim := simulate.New(eng, simulate.WithMaxJoinRows(s.maxJoinRows))
	flow, err := sim.Run(ctx, stages)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.ErrExecution("visualization exceeded the %s time budget", s.timeout)
		}
		return nil, err
	}

	viz := simulate.Assemble(q.Raw, stages, flow)

	// The simulated result should agree with the engine's own answer. A
	// mismatch is a simulator bug worth logging, not a user error.
	if res, qerr := eng.Query(ctx, q.Raw); qerr == nil {
		if len(res.Rows) != len(viz.FinalResult.Rows) {
			s.logger.Warn("simulated result diverges from engine result",
				"query", q.Raw,
				"simulated_rows", len(viz.FinalResult.Rows),
				"engine_rows", len(res.Rows))
		}
	}

	return viz, nil
}

// Execute runs an arbitrary SQL statement in a session. SELECT statements
// return their result set; DDL/DML takes an exclusive lease and reports the
// affected tables.
func (s *Service) Execute(ctx context.Context, sessionID, stmt string) (*domain.TableData, *domain.ExecResult, error) {
	if sessionID == "" {
		return nil, nil, domain.ErrValidation("session id is required")
	}
	stmt = strings.TrimSpace(stmt)
	if stmt == "" {
		return nil, nil, domain.ErrValidation("sql is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if isSelect(stmt) {
		eng, release, err := s.sessions.Acquire(ctx, sessionID, true)
		if err != nil {
			return nil, nil, err
		}
		defer release()

		td, err := eng.Query(ctx, stmt)
		if err != nil {
			return nil, nil, domain.ErrExecution("%v", err)
		}
		return td, nil, nil
	}

	eng, release, err := s.sessions.Acquire(ctx, sessionID, false)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	res, err := eng.Exec(ctx, stmt)
	if err != nil {
		return nil, nil, domain.ErrExecution("%v", err)
	}
	return nil, res, nil
}

// Schema lists the tables and columns in a session.
func (s *Service) Schema(ctx context.Context, sessionID string) ([]domain.TableSchema, error) {
	if sessionID == "" {
		return nil, domain.ErrValidation("session id is required")
	}

	eng, release, err := s.sessions.Acquire(ctx, sessionID, true)
	if err != nil {
		return nil, err
	}
	defer release()

	schemas, err := eng.Tables(ctx)
	if err != nil {
		return nil, domain.ErrExecution("%v", err)
	}
	return schemas, nil
}

// isSelect reports whether the statement starts a query rather than DDL/DML.
func isSelect(stmt string) bool {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH", "SHOW", "DESCRIBE", "EXPLAIN":
		return true
	}
	return false
}
