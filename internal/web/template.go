package web

import (
	"html/template"
	"io"
	"log"

	"github.com/sweeney/gpio-monitor/internal/gpio"
	"github.com/sweeney/gpio-monitor/internal/monitor"
	"github.com/sweeney/gpio-monitor/internal/status"
)

// page is the data every template is rendered with.
type page struct {
	Pins    []monitor.Pin
	Message string
	Error   bool
	// Pin is the pin shown on the delete confirmation page.
	Pin *monitor.Pin
}

var funcs = template.FuncMap{
	"level":  status.Level,
	"pullUp": func(p gpio.Pull) bool { return p == gpio.PullUp },
}

var layout = template.Must(template.New("layout").Funcs(funcs).Parse(layoutHTML))

var (
	indexTmpl    = parsePage("index", indexHTML)
	settingsTmpl = parsePage("settings", settingsHTML)
	deleteTmpl   = parsePage("delete", deleteHTML)
	notFoundTmpl = parsePage("notfound", notFoundHTML)
)

func parsePage(name, body string) *template.Template {
	return template.Must(template.Must(layout.Clone()).New(name).Parse(body))
}

func render(w io.Writer, t *template.Template, data any) {
	if err := t.Execute(w, data); err != nil {
		log.Printf("web: render %s: %v", t.Name(), err)
	}
}

const layoutHTML = `{{define "head"}}<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.}}</title>
<style>
body { font-family: monospace; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
nav a { margin-right: 1em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.High { color: green; font-weight: bold; }
.Low { color: #888; }
.message { padding: 6px 8px; margin: 1em 0; }
.success { background: #e6f4e6; }
.error { background: #f8e0e0; }
form.pin { display: flex; flex-wrap: wrap; gap: 8px; align-items: center; padding: 6px 0; border-bottom: 1px solid #ddd; }
</style>
</head>
<body>
<h1>{{.}}</h1>
<nav><a href="/index.html">Pins</a><a href="/settings.html">Settings</a><a href="/metrics">Metrics</a><a href="/pins.json">JSON</a></nav>
{{end}}
{{define "message"}}{{if .Message}}<div class="message {{if .Error}}error{{else}}success{{end}}">{{.Message}}</div>{{end}}{{end}}
{{define "refresh"}}<script>
(function() {
  function update() {
    fetch("/pins.json", { cache: "no-store" })
      .then(function(res) { return res.json(); })
      .then(function(pins) {
        var rows = document.querySelectorAll("[data-pin]");
        if (rows.length !== Object.keys(pins).length) {
          window.location.reload();
          return;
        }
        rows.forEach(function(row) {
          var p = pins[row.dataset.pin];
          if (!p) {
            window.location.reload();
            return;
          }
          var state = row.querySelector(".state");
          state.textContent = p.state;
          state.className = "state " + p.state;
          row.querySelector(".changes").textContent = p.changes;
        });
      })
      .catch(function() {});
  }
  window.setInterval(update, 5000);
})();
</script>{{end}}`

const indexHTML = `{{template "head" "GPIO Monitor"}}
<table>
<tr><th>Pin</th><th>Name</th><th>Resistor</th><th>State</th><th>Changes</th></tr>
{{range .Pins}}<tr data-pin="{{.ID}}"><td>{{.ID}}</td><td>{{.Label}}</td><td>{{.Pull}}</td><td class="state {{level .State}}">{{level .State}}</td><td class="changes">{{.Changes}}</td></tr>
{{else}}<tr><td colspan="5">Currently no pin is registered to be watched.</td></tr>
{{end}}</table>
{{template "refresh"}}
</body>
</html>
`

const settingsHTML = `{{template "head" "GPIO Monitor Settings"}}
{{template "message" .}}
{{range .Pins}}<form class="pin" method="post" action="/settings.html" data-pin="{{.ID}}">
<input type="hidden" name="pin" value="{{.ID}}">
<span>Pin {{.ID}}</span>
<input type="text" name="name" value="{{.Label}}" minlength="3" maxlength="32">
<label><input type="radio" name="resistor" value="pull_up"{{if pullUp .Pull}} checked{{end}}> Pull Up</label>
<label><input type="radio" name="resistor" value="pull_down"{{if not (pullUp .Pull)}} checked{{end}}> Pull Down</label>
<span class="state {{level .State}}">{{level .State}}</span>
<span class="changes">{{.Changes}}</span>
<button type="submit" name="action" value="update">Update</button>
<button type="submit" formaction="/delete.html">Delete</button>
</form>
{{else}}<p>Currently no pin is registered to be watched.</p>
{{end}}
<h2>Add Pin</h2>
<form class="pin" method="post" action="/settings.html">
<input type="number" name="pin" min="0" max="255" required>
<input type="text" name="name" minlength="3" maxlength="32" required>
<label><input type="radio" name="resistor" value="pull_up" checked> Pull Up</label>
<label><input type="radio" name="resistor" value="pull_down"> Pull Down</label>
<button type="submit" name="action" value="add">Add</button>
</form>
{{template "refresh"}}
</body>
</html>
`

const deleteHTML = `{{template "head" "Delete Pin"}}
{{template "message" .}}
{{with .Pin}}<table>
<tr><th>Pin</th><td>{{.ID}}</td></tr>
<tr><th>Name</th><td>{{.Label}}</td></tr>
<tr><th>Resistor</th><td>{{.Pull}}</td></tr>
<tr><th>State</th><td class="{{level .State}}">{{level .State}}</td></tr>
<tr><th>Changes</th><td>{{.Changes}}</td></tr>
</table>{{end}}
{{if not .Error}}{{with .Pin}}<p>Do you really want to stop watching this pin?</p>
<form method="post" action="/settings.html">
<input type="hidden" name="pin" value="{{.ID}}">
<input type="hidden" name="name" value="{{.Label}}">
<input type="hidden" name="resistor" value="{{if pullUp .Pull}}pull_up{{else}}pull_down{{end}}">
<button type="submit" name="action" value="delete">Delete</button>
<button type="submit" name="action" value="cancel">Cancel</button>
</form>{{end}}{{end}}
<p><a href="/settings.html">Back to settings</a></p>
</body>
</html>
`

const notFoundHTML = `{{template "head" "Not Found"}}
<p>The requested page doesn't exist.</p>
</body>
</html>
`
