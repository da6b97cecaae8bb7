package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

const datastarScript = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.6/bundles/datastar.js"

// Dashboard is the single page of the app. The summary, chart and tables are
// rendered server side and patched in over SSE.
func Dashboard(title string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		page := `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>` + templ.EscapeString(title) + `</title>
<script type="module" src="` + datastarScript + `"></script>
<style>
body{font-family:system-ui,sans-serif;margin:2rem;color:#1f2933}
.modern-table{border-collapse:collapse;width:100%;font-size:.9rem}
.modern-table th,.modern-table td{padding:.4rem .6rem;border-bottom:1px solid #e4e7eb;text-align:left}
.row-Anomaly{background:#fde8e8}
.category-badge{background:#e0e8f9;border-radius:4px;padding:0 .3rem}
.status-error{color:#b91c1c}
.axis{stroke:#9aa5b1}
svg text{font-size:11px;fill:#52606d}
.dot-Normal{fill:#3b82f6;color:#3b82f6}
.dot-Anomaly{fill:#dc2626;color:#dc2626}
</style>
</head>
<body data-signals="{running: false}" data-init="@get('/sse/refresh-all')">
<h1>` + templ.EscapeString(title) + `</h1>
<div class="controls">
<button id="run-button" data-attr:disabled="$running" data-on:click="@get('/sse/run')">Run pipeline</button>
<button id="cancel-button" data-show="$running" data-on:click="@post('/sse/cancel')">Cancel</button>
</div>
<div id="run-status"></div>
<h2>Summary</h2>
<div id="summary-content"></div>
<h2>Anomaly Visualization</h2>
<div id="chart-content"></div>
<h2>Sales by Category</h2>
<div id="categories-content"></div>
<h2>Sales Data with Anomalies Highlighted</h2>
<div id="scored-content"></div>
<h2>Filtered Anomalies with Generated Explanations</h2>
<div id="anomalies-content"></div>
</body>
</html>`
		_, err := io.WriteString(w, page)
		return err
	})
}
