package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// StyleGuide mirrors the derived visual context of a job.
type StyleGuide struct {
	ArtStyle   string `json:"artStyle"`
	Characters string `json:"characters"`
	Setting    string `json:"setting"`
	Title      string `json:"title,omitempty"`
	Author     string `json:"author,omitempty"`
}

// Job describes a pipeline job in a transport-friendly format.
type Job struct {
	ID                string      `json:"id"`
	OwnerID           string      `json:"ownerId"`
	Title             string      `json:"title"`
	Stage             string      `json:"stage"`
	Progress          int         `json:"progress"`
	TotalUnits        int         `json:"totalUnits"`
	StyleGuide        *StyleGuide `json:"styleGuide,omitempty"`
	CoverURL          string      `json:"coverUrl,omitempty"`
	CharacterSheetURL string      `json:"characterSheetUrl,omitempty"`
	ErrorMessage      string      `json:"errorMessage,omitempty"`
	CreatedAt         string      `json:"createdAt,omitempty"`
	UpdatedAt         string      `json:"updatedAt,omitempty"`
}

// Unit describes one page of a job.
type Unit struct {
	Ordinal      int    `json:"ordinal"`
	Status       string `json:"status"`
	Prompt       string `json:"prompt,omitempty"`
	Summary      string `json:"summary,omitempty"`
	ImageURL     string `json:"imageUrl,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// LibraryEntry is a job as listed in its owner's library.
type LibraryEntry struct {
	Job      Job    `json:"job"`
	AddedAt  string `json:"addedAt,omitempty"`
	Favorite bool   `json:"favorite"`
}

// JobListResponse wraps the caller's library.
type JobListResponse struct {
	Items []LibraryEntry `json:"items"`
}

// JobDetailResponse carries a job with its units.
type JobDetailResponse struct {
	Job   Job    `json:"job"`
	Units []Unit `json:"units"`
}

// ActiveResponse answers the active-session check. Job is nil when the
// caller has nothing running.
type ActiveResponse struct {
	Active bool `json:"active"`
	Job    *Job `json:"job,omitempty"`
}

// IntakeResponse reports the intake guard's decision.
type IntakeResponse struct {
	Outcome string `json:"outcome"`
	Message string `json:"message"`
	Job     Job    `json:"job"`
}

// FavoriteRequest toggles a library favorite.
type FavoriteRequest struct {
	Favorite bool `json:"favorite"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	ActiveJobs  []string       `json:"activeJobs"`
	StageCounts map[string]int `json:"stageCounts"`
	LastError   string         `json:"lastError,omitempty"`
	LastJob     *Job           `json:"lastJob,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// DatabaseHealth reports jobs database diagnostics.
type DatabaseHealth struct {
	Path           string   `json:"path"`
	SchemaVersion  int      `json:"schemaVersion"`
	IntegrityCheck bool     `json:"integrityCheck"`
	MissingTables  []string `json:"missingTables,omitempty"`
	TotalJobs      int      `json:"totalJobs"`
	TotalUnits     int      `json:"totalUnits"`
	Error          string   `json:"error,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	Bind         string         `json:"bind"`
	LockFilePath string         `json:"lockFilePath"`
	LogPath      string         `json:"logPath"`
	Broadcast    string         `json:"broadcast"`
	Database     DatabaseHealth `json:"database"`
	Workflow     WorkflowStatus `json:"workflow"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
