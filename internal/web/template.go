package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/status"
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
	"ml": func(v int) string {
		return humanize.Comma(int64(v)) + " ml"
	},
	"modeNum": func(i int) int { return i + 1 },
	"modeName": func(m logic.Mode) string {
		if !m.Valid() {
			return "none"
		}
		return m.String()
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Irrigation Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
pre.lcd { background: #234; color: #9f9; padding: 6px 10px; display: inline-block; }
.running { color: green; font-weight: bold; }
.idle { color: #888; }
.selected { font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
form { display: inline; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Irrigation Controller{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<pre class="lcd" id="lcd">{{index .Display 0}}
{{index .Display 1}}</pre>

<h2>Pump</h2>
<table>
<tr><th>State</th><td id="pump-state" class="{{if eq .PumpState "RUNNING"}}running{{else}}idle{{end}}">{{.PumpState}}</td></tr>
{{if eq .PumpState "RUNNING"}}<tr><th>Running</th><td>{{modeName .Controller.PumpMode}}, {{ml .Controller.PumpVolume}}, {{.Remaining}} left</td></tr>{{end}}
<tr><th>Last run</th><td>{{if .LastRun}}{{.LastRun}}{{else}}never{{end}}</td></tr>
<tr><th>Runs</th><td>{{.Controller.Counts.PumpRuns}}</td></tr>
</table>
<form method="post" action="/activate"><button type="submit">Start selected mode</button></form>

<h2>Modes</h2>
<table>
{{range $i, $v := .Controller.Volumes}}<tr{{if eq (modeNum $i) $.Selected}} class="selected"{{end}}>
<th>Mode {{modeNum $i}}{{if eq (modeNum $i) $.EditMode}} (editing){{end}}</th>
<td>{{ml $v}}</td>
<td>
<form method="post" action="/select?mode={{modeNum $i}}"><button type="submit">select</button></form>
<form method="post" action="/decrease?mode={{modeNum $i}}"><button type="submit">-</button></form>
<form method="post" action="/increase?mode={{modeNum $i}}"><button type="submit">+</button></form>
</td>
</tr>
{{end}}</table>
<p>Selected: {{modeName .Controller.Selected}}</p>

<h2>Connectivity</h2>
<table>
<tr><th>Network</th><td class="{{if .Online}}connected{{else}}disconnected{{end}}">{{if .Online}}online{{else}}offline{{end}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Interface</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Button presses</th><td>{{.Controller.Counts.Presses}}</td></tr>
<tr><th>Saves</th><td>{{.Controller.Counts.Saves}}</td></tr>
<tr><th>Save errors</th><td>{{.Controller.Counts.SaveErrors}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Long press</th><td>{{.Config.LongPressMs}}ms</td></tr>
<tr><th>Flow rate</th><td>{{.Config.FlowMlPerS}} ml/s</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
{{range .Config.Schedules}}<tr><th>Schedule</th><td>{{.}}</td></tr>
{{end}}</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
{{if .Config.WSBroker}}
<script src="/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = "irrigation/controller/events";
  var dot = document.getElementById("live-dot");
  var pumpEl = document.getElementById("pump-state");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(topic);
  });

  client.on("reconnect", function() {
    setDot("pending", "reconnecting");
  });

  client.on("offline", function() {
    setDot("err", "offline");
  });

  client.on("error", function() {
    setDot("err", "error");
  });

  client.on("message", function(t, payload) {
    try {
      var msg = JSON.parse(payload.toString());
      if (!msg.irrigation) return;
      if (msg.irrigation.event === "PUMP_STARTED") {
        pumpEl.textContent = "RUNNING";
        pumpEl.className = "running";
      } else if (msg.irrigation.event === "PUMP_FINISHED") {
        pumpEl.textContent = "IDLE";
        pumpEl.className = "idle";
      }
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	c := snap.Controller
	data := struct {
		status.Snapshot
		Uptime    time.Duration
		PumpState string
		Remaining string
		LastRun   string
		Selected  int
		EditMode  int
	}{
		Snapshot:  snap,
		Uptime:    snap.Uptime(),
		PumpState: string(c.Pump),
		Remaining: c.Remaining.Round(100 * time.Millisecond).String(),
		Selected:  c.Selected.Number(),
		EditMode:  c.EditMode.Number(),
	}
	if !c.LastRun.IsZero() {
		data.LastRun = humanize.RelTime(c.LastRun, snap.Now, "ago", "from now")
	}
	indexTmpl.Execute(w, data)
}
