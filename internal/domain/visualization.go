// Package domain defines core types, interfaces, and errors for the
// execution-flow simulator.
package domain

// StepType identifies one stage of the logical SQL execution order.
type StepType string

// StepFrom and friends enumerate the logical execution order. The order of
// these constants is the order a relational engine conceptually evaluates
// clauses, independent of their position in the SQL text.
const (
	StepFrom     StepType = "FROM"
	StepJoin     StepType = "JOIN"
	StepWhere    StepType = "WHERE"
	StepGroupBy  StepType = "GROUP BY"
	StepHaving   StepType = "HAVING"
	StepSelect   StepType = "SELECT"
	StepDistinct StepType = "DISTINCT"
	StepOrderBy  StepType = "ORDER BY"
	StepLimit    StepType = "LIMIT"
	StepOffset   StepType = "OFFSET"
)

// StepDescriptions holds the fixed human-readable text shown for each stage.
var StepDescriptions = map[StepType]string{
	StepFrom:     "Load rows from the source table",
	StepJoin:     "Combine rows from both tables matching the join condition",
	StepWhere:    "Filter rows by the WHERE condition",
	StepGroupBy:  "Group rows sharing the same values of the grouping columns",
	StepHaving:   "Filter groups by the HAVING condition",
	StepSelect:   "Project rows to the selected columns",
	StepDistinct: "Remove duplicate rows",
	StepOrderBy:  "Sort rows by the ORDER BY keys",
	StepLimit:    "Keep at most the first N remaining rows",
	StepOffset:   "Skip the first N rows",
}

// ExecutionStep is one entry of the logical execution plan shown to the user.
type ExecutionStep struct {
	Order       int      `json:"order"`
	Type        StepType `json:"type"`
	Clause      string   `json:"clause"` // verbatim source text of the clause
	Description string   `json:"description"`
}

// Row is one relation row keyed by column name.
type Row map[string]any

// RowState is one row's status at one stage of the simulation.
// ExcludedReason is set exactly once, at the stage that excluded the row.
type RowState struct {
	Data           Row    `json:"data"`
	Included       bool   `json:"included"`
	ExcludedReason string `json:"excludedReason,omitempty"`
}

// FlowStats summarizes row counts for one data-flow stage.
type FlowStats struct {
	TotalRows    int `json:"totalRows"`
	IncludedRows int `json:"includedRows"`
	ExcludedRows int `json:"excludedRows"`
}

// DataFlowStep is the full row snapshot flowing through one stage.
type DataFlowStep struct {
	StepOrder   int        `json:"stepOrder"`
	StepType    StepType   `json:"stepType"`
	Rows        []RowState `json:"rows"`
	Columns     []string   `json:"columns"`
	Description string     `json:"description"`
	Stats       FlowStats  `json:"stats"`
}

// TableData is a simple relation snapshot.
type TableData struct {
	TableName string   `json:"tableName"`
	Columns   []string `json:"columns"`
	Rows      []Row    `json:"rows"`
}

// QueryVisualization is the complete trace of one simulated query.
// It is immutable once returned.
type QueryVisualization struct {
	OriginalQuery  string          `json:"originalQuery"`
	ExecutionSteps []ExecutionStep `json:"executionSteps"`
	DataFlow       []DataFlowStep  `json:"dataFlow"`
	FinalResult    TableData       `json:"finalResult"`
}

// ExecResult is the outcome of a non-SELECT statement.
type ExecResult struct {
	Message        string   `json:"message"`
	AffectedTables []string `json:"affectedTables"`
}

// ComputeStats derives FlowStats from a row-state list.
func ComputeStats(rows []RowState) FlowStats {
	s := FlowStats{TotalRows: len(rows)}
	for _, r := range rows {
		if r.Included {
			s.IncludedRows++
		}
	}
	s.ExcludedRows = s.TotalRows - s.IncludedRows
	return s
}
