package api

// AcknowledgeRequest identifies who acknowledged an alert.
type AcknowledgeRequest struct {
	By string `json:"by"`
}

// HealthResponse represents health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse represents readiness check response.
type ReadyResponse struct {
	Ready      bool     `json:"ready"`
	SLOsLoaded int      `json:"slosLoaded"`
	Sources    []string `json:"sources,omitempty"`
	Reasons    []string `json:"reasons,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// OKResponse acknowledges a state-changing request.
type OKResponse struct {
	OK bool `json:"ok"`
}
