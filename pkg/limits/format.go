package limits

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/goclaw/manifest/pkg/storage"
)

var printer = message.NewPrinter(language.English)

// FormatViolation renders a violation for API consumers: dollars with two
// decimals for cost, grouped integers for everything else.
func FormatViolation(v Violation) string {
	return printer.Sprintf("Usage limit exceeded: %s usage (%s) has reached the limit of %s per %s",
		v.Metric, FormatAmount(v.Metric, v.Current), FormatAmount(v.Metric, v.Threshold), v.Period)
}

// FormatAmount formats a metric value.
func FormatAmount(metric string, v float64) string {
	if metric == storage.MetricCost {
		return printer.Sprintf("$%.2f", v)
	}
	return printer.Sprintf("%d", int64(math.Round(v)))
}
