package models

type EmptyRequest struct{}

type HealthResponse struct {
	Status string `json:"status" description:"healthy or unhealthy"`
}

type StatsResponse struct {
	RunID          string  `json:"run_id,omitempty"`
	Format         string  `json:"format,omitempty"`
	RecordsEmitted int64   `json:"records_emitted"`
	RecordsFailed  int64   `json:"records_failed"`
	BytesEmitted   int64   `json:"bytes_emitted"`
	LastActivity   string  `json:"last_activity,omitempty"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
}

type FormatInfo struct {
	Name              string `json:"name"`
	DefaultCount      int    `json:"default_count"`
	PerRecordIdentity bool   `json:"per_record_identity"`
	Geolocated        bool   `json:"geolocated"`
}

type FormatsResponse struct {
	Formats []FormatInfo `json:"formats"`
}
