package check

import "time"

// Check is one immutable probe outcome. Rows are append-only.
type Check struct {
	ID                int64     `json:"id"`
	TargetID          int64     `json:"target_id"`
	Timestamp         time.Time `json:"timestamp"`
	TCPOk             bool      `json:"tcp_ok"`
	HTTPOk            bool      `json:"http_ok"`
	HTTPStatusCode    *int      `json:"http_status_code,omitempty"`
	TCPLatencyMS      int64     `json:"tcp_latency_ms"`
	HTTPLatencyMS     int64     `json:"http_latency_ms"`
	FinalURL          *string   `json:"final_url,omitempty"`
	UsedIP            *string   `json:"used_ip,omitempty"`
	DetectedLoginType *string   `json:"detected_login_type,omitempty"`
	LoginDetected     bool      `json:"login_detected"`
	Summary           string    `json:"summary"`
}

// ProbeResult is what one probe of one target yields, before persistence.
// HTTPStatusCode is nil when the transport never produced a response.
type ProbeResult struct {
	TargetID          int64
	Timestamp         time.Time
	TCPOk             bool
	TCPLatencyMS      int64
	UsedIP            *string
	HTTPOk            bool
	HTTPStatusCode    *int
	HTTPLatencyMS     int64
	FinalURL          *string
	LoginDetected     bool
	DetectedLoginType *string
	Summary           string
}

func (r *ProbeResult) Healthy() bool { return r.TCPOk && r.HTTPOk }

// Row converts the result into its append-only record.
func (r *ProbeResult) Row() *Check {
	return &Check{
		TargetID:          r.TargetID,
		Timestamp:         r.Timestamp,
		TCPOk:             r.TCPOk,
		HTTPOk:            r.HTTPOk,
		HTTPStatusCode:    r.HTTPStatusCode,
		TCPLatencyMS:      r.TCPLatencyMS,
		HTTPLatencyMS:     r.HTTPLatencyMS,
		FinalURL:          r.FinalURL,
		UsedIP:            r.UsedIP,
		DetectedLoginType: r.DetectedLoginType,
		LoginDetected:     r.LoginDetected,
		Summary:           r.Summary,
	}
}
