package api

// HealthResponse reports liveness and the registry implementation.
type HealthResponse struct {
	Status   string `json:"status"`
	Registry string `json:"registry"`
}

// ReadinessResponse reports readiness and how many pairs are being served.
type ReadinessResponse struct {
	Status string `json:"status"`
	Pairs  int    `json:"pairs"`
}

// VersionResponse is the build of the running server.
type VersionResponse struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Registry  string `json:"registry"`
}
