package output

import "time"

// ErrorResponse is the standard JSON error format
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// NewError creates a new error response
func NewError(msg string) ErrorResponse {
	return ErrorResponse{Error: msg}
}

// NewErrorWithDetails creates a new error response with details
func NewErrorWithDetails(msg, details string) ErrorResponse {
	return ErrorResponse{Error: msg, Details: details}
}

// TimestampedResponse adds a timestamp to any response
type TimestampedResponse struct {
	GeneratedAt time.Time `json:"generated_at"`
}

// NewTimestamped creates a timestamped response base
func NewTimestamped() TimestampedResponse {
	return TimestampedResponse{GeneratedAt: time.Now().UTC()}
}

// CheckIssue is one finding from document validation
type CheckIssue struct {
	Pos      string `json:"pos,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

// CheckResponse is the output format for the check command
type CheckResponse struct {
	TimestampedResponse
	Document string       `json:"document"`
	Version  string       `json:"version,omitempty"`
	OK       bool         `json:"ok"`
	Issues   []CheckIssue `json:"issues,omitempty"`
}

// InputEntry describes one available input of a run target
type InputEntry struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// InputsResponse is the output format for the inputs command
type InputsResponse struct {
	TimestampedResponse
	Document string       `json:"document"`
	Target   string       `json:"target"`
	Inputs   []InputEntry `json:"inputs"`
}

// RunResponse is the output format for a completed run
type RunResponse struct {
	Outputs map[string]any `json:"outputs"`
	Dir     string         `json:"dir"`
	RunID   string         `json:"run_id"`
}

// RunListItem is a single run in runs output
type RunListItem struct {
	ID         string     `json:"id"`
	Target     string     `json:"target"`
	Status     string     `json:"status"`
	Dir        string     `json:"dir"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// RunsResponse is the output format for the runs command
type RunsResponse struct {
	TimestampedResponse
	Runs  []RunListItem `json:"runs"`
	Count int           `json:"count"`
}

// VersionResponse is the output format for the version command
type VersionResponse struct {
	Version   string   `json:"version"`
	Commit    string   `json:"commit,omitempty"`
	Languages []string `json:"language_versions"`
}
