package handlers

import (
	"fmt"
	"html/template"
	"time"

	"anomaly-dashboard/internal/models"
	"anomaly-dashboard/internal/services"
)

const (
	chartWidth  = 720
	chartHeight = 300
	chartLeft   = 70
	chartRight  = 700
	chartTop    = 20
	chartBottom = 260
)

var chartTemplate = template.Must(template.New("chart").Parse(`
<div id="chart-content">
<svg viewBox="0 0 {{.Width}} {{.Height}}" width="100%" role="img" aria-label="Sales amount by date">
<line class="axis" x1="{{.Left}}" y1="{{.Bottom}}" x2="{{.Right}}" y2="{{.Bottom}}"></line>
<line class="axis" x1="{{.Left}}" y1="{{.Top}}" x2="{{.Left}}" y2="{{.Bottom}}"></line>
<text x="{{.Left}}" y="{{.Top}}" text-anchor="end" dx="-6">${{printf "%.0f" .MaxAmount}}</text>
<text x="{{.Left}}" y="{{.Bottom}}" text-anchor="end" dx="-6">$0</text>
<text x="{{.Left}}" y="{{.Bottom}}" dy="20">{{.FirstDate}}</text>
<text x="{{.Right}}" y="{{.Bottom}}" dy="20" text-anchor="end">{{.LastDate}}</text>
{{range .Normal}}<circle class="dot-Normal" cx="{{printf "%.1f" .X}}" cy="{{printf "%.1f" .Y}}" r="3"><title>{{.Label}}</title></circle>
{{end}}{{range .Anomalies}}<circle class="dot-Anomaly" cx="{{printf "%.1f" .X}}" cy="{{printf "%.1f" .Y}}" r="5"><title>{{.Label}}</title></circle>
{{end}}</svg>
<p class="chart-legend"><span class="dot-Normal">●</span> Normal <span class="dot-Anomaly">●</span> Anomaly</p>
</div>`))

var categoriesTemplate = template.Must(template.New("categories").Parse(`
<div id="categories-content">
<table class="modern-table">
<thead><tr><th>Category</th><th>Records</th><th>Anomalies</th><th>Total Sales</th><th>Quantity</th></tr></thead>
<tbody>
{{range .}}<tr>
<td><span class="category-badge">{{.Category}}</span></td>
<td>{{.Records}}</td>
<td>{{.Anomalies}}</td>
<td>${{printf "%.2f" .TotalSales}}</td>
<td>{{.QuantitySold}}</td>
</tr>{{end}}
</tbody>
</table>
</div>`))

type chartDot struct {
	X, Y  float64
	Label string
}

type chartView struct {
	Width, Height            int
	Left, Right, Top, Bottom int
	MaxAmount                float64
	FirstDate, LastDate      string
	Normal, Anomalies        []chartDot
}

// layoutChart places amount-vs-date points on the SVG canvas. The earliest
// date sits on the left axis and zero on the bottom axis.
func layoutChart(points []models.ChartPoint) (chartView, error) {
	view := chartView{
		Width: chartWidth, Height: chartHeight,
		Left: chartLeft, Right: chartRight, Top: chartTop, Bottom: chartBottom,
	}
	if len(points) == 0 {
		return view, nil
	}

	dates := make([]time.Time, len(points))
	for i, p := range points {
		d, err := time.Parse(models.DateLayout, p.Date)
		if err != nil {
			return chartView{}, fmt.Errorf("chart point %d: %w", i, err)
		}
		dates[i] = d
		view.MaxAmount = max(view.MaxAmount, p.SalesAmount)
	}

	first, last := dates[0], dates[0]
	for _, d := range dates[1:] {
		if d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}
	}
	view.FirstDate = first.Format(models.DateLayout)
	view.LastDate = last.Format(models.DateLayout)

	span := last.Sub(first).Hours()
	plotWidth := float64(chartRight - chartLeft)
	plotHeight := float64(chartBottom - chartTop)

	for i, p := range points {
		x := float64(chartLeft) + plotWidth/2
		if span > 0 {
			x = float64(chartLeft) + dates[i].Sub(first).Hours()/span*plotWidth
		}
		y := float64(chartBottom)
		if view.MaxAmount > 0 {
			y -= p.SalesAmount / view.MaxAmount * plotHeight
		}

		dot := chartDot{X: x, Y: y, Label: fmt.Sprintf("%s $%.2f (%s)", p.Date, p.SalesAmount, p.Classification)}
		if p.Classification == models.Anomaly {
			view.Anomalies = append(view.Anomalies, dot)
		} else {
			view.Normal = append(view.Normal, dot)
		}
	}
	return view, nil
}

func renderChart(scored []models.ScoredTransaction) (string, error) {
	view, err := layoutChart(services.ChartPoints(scored))
	if err != nil {
		return "", err
	}
	return render(chartTemplate, view)
}

func renderCategories(scored []models.ScoredTransaction) (string, error) {
	return render(categoriesTemplate, services.CategoryBreakdown(scored))
}
