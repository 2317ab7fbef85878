package alerter

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/event"
	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/instance"
	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/notify"
	"github.com/scottbadams/ITWebsiteMonitor/internal/domain/target"
	"github.com/scottbadams/ITWebsiteMonitor/internal/timezone"
)

const timeLayout = "2006-01-02 15:04:05"

var bodyTmpl = template.Must(template.New("alert").Parse(`<html>
<body style="font-family:sans-serif">
<h2>{{.Title}}</h2>
<table cellpadding="4">
<tr><td><b>Instance</b></td><td>{{.Instance}}</td></tr>
<tr><td><b>URL</b></td><td><a href="{{.URL}}">{{.URL}}</a></td></tr>
{{if .FinalURL}}<tr><td><b>Final URL</b></td><td>{{.FinalURL}}</td></tr>{{end}}
<tr><td><b>Status</b></td><td>{{.StateWord}} since {{.SinceLocal}} ({{.SinceUTC}} UTC)</td></tr>
<tr><td><b>Details</b></td><td>{{.Summary}}</td></tr>
{{if .UsedIP}}<tr><td><b>IP</b></td><td>{{.UsedIP}}</td></tr>{{end}}
<tr><td><b>Checked</b></td><td>{{.NowLocal}} ({{.NowUTC}} UTC)</td></tr>
</table>
{{if .Link}}<p><a href="{{.Link}}">Open in dashboard</a></p>{{end}}
</body>
</html>`))

type bodyData struct {
	Title      string
	Instance   string
	URL        string
	FinalURL   string
	StateWord  string
	SinceLocal string
	SinceUTC   string
	Summary    string
	UsedIP     string
	NowLocal   string
	NowUTC     string
	Link       string
}

func titleFor(kind event.Type, url string) string {
	switch kind {
	case event.TypeAlertDown:
		return "DOWN: " + url
	case event.TypeAlertDownRepeat:
		return "STILL DOWN: " + url
	case event.TypeAlertRecovered:
		return "RECOVERED: " + url
	}
	return string(kind) + ": " + url
}

// buildMessage renders the email for one notification: HTML plus a plain
// text fallback carrying the same facts.
func buildMessage(kind event.Type, inst *instance.Instance, tg *target.Target, st *target.State,
	now time.Time, loc *time.Location, subjPrefix, baseURL string) *notify.Message {

	d := bodyData{
		Title:      titleFor(kind, tg.URL),
		Instance:   inst.DisplayName,
		URL:        tg.URL,
		StateWord:  map[bool]string{true: "Up", false: "Down"}[st.IsUp],
		SinceLocal: timezone.ToLocal(st.StateSince, loc).Format(timeLayout),
		SinceUTC:   st.StateSince.UTC().Format(timeLayout),
		Summary:    st.LastSummary,
		NowLocal:   timezone.ToLocal(now, loc).Format(timeLayout),
		NowUTC:     now.UTC().Format(timeLayout),
	}
	if d.Instance == "" {
		d.Instance = inst.ID
	}
	if st.LastFinalURL != nil && *st.LastFinalURL != tg.URL {
		d.FinalURL = *st.LastFinalURL
	}
	if st.LastUsedIP != nil {
		d.UsedIP = *st.LastUsedIP
	}
	if baseURL != "" {
		d.Link = strings.TrimRight(baseURL, "/") + "/instances/" + inst.ID
	}

	var html strings.Builder
	// The template cannot fail on this data shape.
	_ = bodyTmpl.Execute(&html, d)

	var text strings.Builder
	fmt.Fprintf(&text, "%s\n\n", d.Title)
	fmt.Fprintf(&text, "Instance: %s\n", d.Instance)
	fmt.Fprintf(&text, "URL: %s\n", d.URL)
	if d.FinalURL != "" {
		fmt.Fprintf(&text, "Final URL: %s\n", d.FinalURL)
	}
	fmt.Fprintf(&text, "Status: %s since %s (%s UTC)\n", d.StateWord, d.SinceLocal, d.SinceUTC)
	fmt.Fprintf(&text, "Details: %s\n", d.Summary)
	if d.UsedIP != "" {
		fmt.Fprintf(&text, "IP: %s\n", d.UsedIP)
	}
	fmt.Fprintf(&text, "Checked: %s (%s UTC)\n", d.NowLocal, d.NowUTC)

	subject := strings.TrimSpace(subjPrefix + " " + d.Title)
	return &notify.Message{Subject: subject, HTML: html.String(), Text: text.String()}
}

func buildPayload(kind event.Type, inst *instance.Instance, tg *target.Target, st *target.State, now time.Time) *notify.Payload {
	return &notify.Payload{
		EventType:  string(kind),
		InstanceID: inst.ID,
		TargetID:   tg.ID,
		URL:        tg.URL,
		IsUp:       st.IsUp,
		StateSince: st.StateSince.UTC(),
		Timestamp:  now.UTC(),
		Summary:    st.LastSummary,
	}
}
