package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/light-scheduler/internal/control"
	"github.com/sweeney/light-scheduler/internal/logic"
	"github.com/sweeney/light-scheduler/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	// formHour renders an unset boundary as -1, the value the form accepts back.
	"formHour": func(h logic.Hour) int {
		if v, ok := h.Get(); ok {
			return v
		}
		return control.ClearHour
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Light Scheduler</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
form { margin: 0.5em 0; }
input[type=number] { width: 4em; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.unsynced { color: orange; }
</style>
</head>
<body>
<h1>Light Scheduler</h1>

<h2>Light</h2>
<table>
<tr><th>Current</th><td id="light-state" class="{{if .View.Light.IsOn}}on{{else}}off{{end}}">{{.View.Light}}</td></tr>
<tr><th>{{.Zone}}</th><td id="clock"{{if not .View.Synced}} class="unsynced" title="not synchronized"{{end}}>{{.View.Now.Format "15:04:05"}}</td></tr>
<tr><th>Next</th><td>{{if .View.HasNext}}{{.View.Next.State}} at {{.View.Next.At.Format "15:04"}}{{else}}none{{end}}</td></tr>
</table>
<form method="post" action="/">
<input type="hidden" name="toggle" value="1">
<button type="submit">Toggle</button>
</form>

<h2>Schedule</h2>
<form method="post" action="/">
<label>On hour <input type="number" name="schedule_on" min="-1" max="23" value="{{formHour .View.Schedule.On}}"></label>
<button type="submit">Set</button>
</form>
<form method="post" action="/">
<label>Off hour <input type="number" name="schedule_off" min="-1" max="23" value="{{formHour .View.Schedule.Off}}"></label>
<button type="submit">Set</button>
</form>
<p>-1 disables a boundary.</p>

<h2>System</h2>
<table>
<tr><th>MQTT</th><td class="{{if .Status.MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .Status.MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
{{if .Status.Network}}<tr><th>Network</th><td>{{.Status.Network.Status}} ({{.Status.Network.Type}}{{if .Status.Network.SSID}} {{.Status.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Status.Network.IP}}</td></tr>{{end}}
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.Status.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Transitions</th><td>schedule {{.Status.Counts.ScheduleOn}}/{{.Status.Counts.ScheduleOff}}, manual {{.Status.Counts.ManualOn}}/{{.Status.Counts.ManualOff}}</td></tr>
{{if .Status.StorageErrors}}<tr><th>Storage errors</th><td class="disconnected">{{.Status.StorageErrors}}</td></tr>{{end}}
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

type pageData struct {
	View   control.View
	Status status.Snapshot
	Zone   string
	Uptime time.Duration
}

func (s *Server) pageData(view control.View) pageData {
	var snap status.Snapshot
	if s.tracker != nil {
		snap = s.tracker.Snapshot()
	}
	zone, _ := view.Now.Zone()
	if loc := view.Now.Location().String(); loc != "Local" && loc != "" {
		zone = loc
	}
	return pageData{
		View:   view,
		Status: snap,
		Zone:   zone,
		Uptime: snap.Uptime(),
	}
}

func renderHTML(w io.Writer, data pageData) error {
	return indexTmpl.Execute(w, data)
}
