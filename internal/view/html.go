package view

import (
	"html/template"
	"io"
)

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>AirScan</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 640px; margin: 2em auto; }
        .frame { position: relative; border: 2px solid #ccc; border-radius: 8px; min-height: 300px; background: #000; }
        .frame.detecting { border: 4px solid #22c55e; }
        .overlay { position: absolute; inset: 0; display: flex; align-items: center; justify-content: center; background: rgba(34, 197, 94, 0.2); }
        .overlay span { background: #fff; padding: 12px 24px; border-radius: 8px; color: #15803d; font-weight: 600; }
        .status { margin-top: 1em; padding: 1em; background: #f3f4f6; border-radius: 8px; }
        .dot { display: inline-block; width: 12px; height: 12px; border-radius: 50%; background: #ef4444; }
        .dot.on { background: #22c55e; }
        .badge { margin-left: 8px; padding: 2px 8px; border-radius: 4px; background: #dbeafe; color: #1d4ed8; }
        .badge.found { background: #dcfce7; color: #15803d; }
        .error { color: #ef4444; margin-top: 0.5em; }
        .pulse { color: #16a34a; margin-top: 0.5em; font-weight: 500; }
        .result { font-family: monospace; background: #e5e7eb; padding: 0.5em; border-radius: 4px; word-break: break-all; color: #2563eb; }
        .meta { color: #6b7280; font-size: 0.85em; }
    </style>
</head>
<body>
<div id="scanner">
    <div class="frame{{if .Detecting}} detecting{{end}}">
        {{- if .Overlay}}
        <div class="overlay"><span>{{.Overlay}}</span></div>
        {{- end}}
    </div>
    <div class="status">
        <span class="dot{{if .Active}} on{{end}}"></span>
        <span class="indicator">{{.Indicator}}</span>
        {{- if .Badge}}
        <span class="badge{{if .Detecting}} found{{end}}">{{.Badge}}</span>
        {{- end}}
        {{- if .Error}}
        <div class="error">{{.Error}}</div>
        {{- end}}
        {{- if .Pulse}}
        <div class="pulse">{{.Pulse}}</div>
        {{- end}}
        {{- if .HasResult}}
        <div class="last">
            <h3>{{.ResultHeading}}</h3>
            <p class="result">{{.Result}}</p>
            <p class="meta">{{.Format}}{{if .ScannedAt}} &middot; {{.ScannedAt}}{{end}}</p>
        </div>
        {{- end}}
    </div>
</div>
<script>
(function () {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    function el(tag, cls, text) {
        var e = document.createElement(tag);
        if (cls) { e.className = cls; }
        if (text) { e.textContent = text; }
        return e;
    }
    ws.onmessage = function (ev) {
        var m = JSON.parse(ev.data);
        var root = document.getElementById("scanner");
        var frame = el("div", "frame" + (m.detecting ? " detecting" : ""));
        if (m.overlay) {
            var o = el("div", "overlay");
            o.appendChild(el("span", "", m.overlay));
            frame.appendChild(o);
        }
        var status = el("div", "status");
        status.appendChild(el("span", "dot" + (m.active ? " on" : "")));
        status.appendChild(el("span", "indicator", " " + m.indicator));
        if (m.badge) { status.appendChild(el("span", "badge" + (m.detecting ? " found" : ""), m.badge)); }
        if (m.error) { status.appendChild(el("div", "error", m.error)); }
        if (m.pulse) { status.appendChild(el("div", "pulse", m.pulse)); }
        if (m.hasResult) {
            var last = el("div", "last");
            last.appendChild(el("h3", "", m.resultHeading));
            last.appendChild(el("p", "result", m.result));
            last.appendChild(el("p", "meta", m.format + (m.scannedAt ? " \u00b7 " + m.scannedAt : "")));
            status.appendChild(last);
        }
        root.replaceChildren(frame, status);
    };
})();
</script>
</body>
</html>
`))

// Render writes the HTML page for m. The page follows later models over the
// /ws websocket.
func Render(w io.Writer, m Model) error {
	return pageTmpl.Execute(w, m)
}
