package models

// Health status values reported by the backend.
const (
	HealthStatusHealthy   = "healthy"
	HealthStatusUnhealthy = "unhealthy"
)

// HealthStatus is the backend health check payload.
type HealthStatus struct {
	Status        string `json:"status"`
	Database      string `json:"database"`
	Version       string `json:"version"`
	DatabaseError string `json:"database_error,omitempty"`
}

// IsHealthy returns true if the backend reports itself healthy.
func (h *HealthStatus) IsHealthy() bool {
	return h.Status == HealthStatusHealthy
}
