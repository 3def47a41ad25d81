package corpus

import "time"

// Source statuses recorded in sources.last_status and fetch_log.status.
const (
	StatusPending   = "pending"
	StatusOK        = "ok"
	StatusUnchanged = "unchanged"
	StatusSkipped   = "skipped"
	StatusError     = "error"
)

// Source formats and knowledge tags.
const (
	FormatHTML = "html"
	FormatPDF  = "pdf"

	TagCore   = "core"   // established legal knowledge
	TagUpdate = "update" // recently-sourced legislation updates
)

// Source is a registered legal document to ingest. Location is an http(s)
// URL or a local file path.
type Source struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Location      string `json:"location"`
	Format        string `json:"format"` // "html" | "pdf"
	Tag           string `json:"tag"`    // "core" | "update"
	FetchInterval int64  `json:"fetch_interval"` // ms
	Enabled       bool   `json:"enabled"`
	LastFetchedAt *int64 `json:"last_fetched_at,omitempty"`
	LastHash      string `json:"last_hash"`
	LastStatus    string `json:"last_status"`
	LastError     string `json:"last_error"`
	FailCount     int    `json:"fail_count"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

// FetchLogEntry is one fetch attempt record.
type FetchLogEntry struct {
	ID           string `json:"id"`
	SourceID     string `json:"source_id"`
	Status       string `json:"status"`
	StatusCode   int    `json:"status_code"`
	ContentHash  string `json:"content_hash"`
	ErrorMessage string `json:"error_message"`
	DurationMs   int64  `json:"duration_ms"`
	FetchedAt    int64  `json:"fetched_at"`
}

// Report summarises one ingestion run.
type Report struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	SourcesTotal  int       `json:"sources_total"`
	Succeeded     int       `json:"succeeded"`
	Failed        int       `json:"failed"`
	Skipped       int       `json:"skipped"`
	Unchanged     int       `json:"unchanged"`
	Chunks        int       `json:"chunks"`
	Duplicates    int       `json:"duplicates"`
	Batches       int       `json:"batches"`
	FailedBatches int       `json:"failed_batches"`
	Upserted      int       `json:"upserted"`
}

// Stats holds aggregate counters for the knowledge base.
type Stats struct {
	Sources        int     `json:"sources"`
	EnabledSources int     `json:"enabled_sources"`
	Documents      int     `json:"documents"`
	FetchLogs      int     `json:"fetch_logs"`
	LastRun        *Report `json:"last_run,omitempty"`
}
