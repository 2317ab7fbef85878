package notify

import "time"

type SecurityMode string

const (
	SecurityNone     SecurityMode = "None"
	SecuritySSLTLS   SecurityMode = "SslTls"
	SecurityStartTLS SecurityMode = "StartTls"
)

// SMTPSettings is the per-instance outbound mail configuration. The password
// is stored protected and only decrypted at send time.
type SMTPSettings struct {
	InstanceID        string       `json:"instance_id"`
	Host              string       `json:"host"`
	Port              int          `json:"port"`
	Security          SecurityMode `json:"security"`
	Username          *string      `json:"username,omitempty"`
	PasswordProtected *string      `json:"-"`
	From              string       `json:"from"`
}

// Configured reports whether the settings are complete enough to attempt a
// send. At least one enabled recipient is required on top of this.
func (s *SMTPSettings) Configured() bool {
	return s != nil && s.Host != "" && s.Port > 0 && s.From != ""
}

type Recipient struct {
	InstanceID string `json:"instance_id"`
	Email      string `json:"email"`
	Enabled    bool   `json:"enabled"`
}

type WebhookEndpoint struct {
	InstanceID string `json:"instance_id"`
	URL        string `json:"url"`
	Enabled    bool   `json:"enabled"`
}

// Payload is the webhook notification body. Key names are part of the
// outbound contract; do not rename.
type Payload struct {
	EventType  string    `json:"eventType"`
	InstanceID string    `json:"instanceId"`
	TargetID   int64     `json:"targetId"`
	URL        string    `json:"url"`
	IsUp       bool      `json:"isUp"`
	StateSince time.Time `json:"stateSinceUtc"`
	Timestamp  time.Time `json:"timestampUtc"`
	Summary    string    `json:"summary"`
}

// Message is a rendered email, HTML with a plaintext fallback.
type Message struct {
	Subject string
	HTML    string
	Text    string
}
