package goals

import "github.com/shopspring/decimal"

// QuarterlyDivisor is the fixed trailing-window length in months. The
// baseline is a simple mean over the window: inactive months count as
// zero, they are not excluded.
const QuarterlyDivisor = 3

var quarterlyDivisor = decimal.NewFromInt(QuarterlyDivisor)

// activityThreshold is the positivation cutoff. The strict "> 1" is a
// noise filter for zeroed and rounding-level amounts, not a business
// minimum; keep the behavior, don't read meaning into the constant.
var activityThreshold = decimal.NewFromInt(1)

// Baseline returns the trailing-quarter suggested revenue (or weight)
// target: window sum divided by the fixed window length.
func Baseline(windowSum decimal.Decimal) decimal.Decimal {
	return windowSum.Div(quarterlyDivisor)
}

// IsActive reports whether a revenue amount counts as client activity for
// positivation purposes.
func IsActive(revenue decimal.Decimal) bool {
	return revenue.GreaterThan(activityThreshold)
}
