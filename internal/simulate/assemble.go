package simulate

import (
	"sqlflow/internal/domain"
	"sqlflow/internal/plan"
)

// Assemble combines the plan and the per-stage flow into the full
// visualization payload. The final result is the last stage's included rows
// projected onto its display columns.
func Assemble(query string, stages []plan.Stage, flow []domain.DataFlowStep) *domain.QueryVisualization {
	steps := make([]domain.ExecutionStep, len(stages))
	for i, st := range stages {
		steps[i] = domain.ExecutionStep{
			Order:       st.Order,
			Type:        st.Type,
			Clause:      st.Clause,
			Description: st.Description,
		}
	}

	viz := &domain.QueryVisualization{
		OriginalQuery:  query,
		ExecutionSteps: steps,
		DataFlow:       flow,
		FinalResult:    domain.TableData{Columns: []string{}, Rows: []domain.Row{}},
	}

	if len(flow) == 0 {
		return viz
	}

	last := flow[len(flow)-1]
	final := domain.TableData{Columns: last.Columns, Rows: []domain.Row{}}
	for _, r := range last.Rows {
		if !r.Included {
			continue
		}
		row := make(domain.Row, len(last.Columns))
		for _, c := range last.Columns {
			row[c] = r.Data[c]
		}
		final.Rows = append(final.Rows, row)
	}
	viz.FinalResult = final
	return viz
}
