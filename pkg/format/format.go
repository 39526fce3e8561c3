// Package format renders numbers the way the dashboards display them.
package format

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Grouped formats v with en-US thousands separators and between minFrac and
// maxFrac fraction digits, rounding half away from zero.
func Grouped(v float64, minFrac, maxFrac int) string {
	d := decimal.NewFromFloat(v).Round(int32(maxFrac))
	neg := d.IsNegative()
	s := d.Abs().StringFixed(int32(maxFrac))

	intPart, frac, _ := strings.Cut(s, ".")
	for len(frac) > minFrac && strings.HasSuffix(frac, "0") {
		frac = frac[:len(frac)-1]
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

// Price renders a headline price: "$43,750.25".
func Price(v float64) string {
	if v < 0 {
		return "-$" + Grouped(-v, 2, 3)
	}
	return "$" + Grouped(v, 2, 3)
}

// Fixed renders v with exactly places fraction digits and no grouping.
func Fixed(v float64, places int) string {
	return decimal.NewFromFloat(v).StringFixed(int32(places))
}

// Dollars renders "$1234.56", or "-$12.00" for negatives.
func Dollars(v float64) string {
	if v < 0 {
		return "-$" + Fixed(-v, 2)
	}
	return "$" + Fixed(v, 2)
}

// SignedDollars renders "+$12.50" for non-negative values.
func SignedDollars(v float64) string {
	if v >= 0 {
		return "+" + Dollars(v)
	}
	return Dollars(v)
}

// ChangePercent renders a 24h change. The plus sign appears only for
// strictly positive values: "+2.47%", "0.00%", "-1.10%".
func ChangePercent(v float64) string {
	s := Fixed(v, 2) + "%"
	if v > 0 {
		return "+" + s
	}
	return s
}

// SignedPercent renders "+1.25%" for non-negative values.
func SignedPercent(v float64) string {
	s := Fixed(v, 2) + "%"
	if v >= 0 {
		return "+" + s
	}
	return s
}

// Number renders v in its shortest form: 85, 85.5, 0.125.
func Number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Ratio renders a 0-1 confidence as a rounded percentage number: 0.784 -> "78".
func Ratio(v float64) string {
	return decimal.NewFromFloat(v * 100).Round(0).String()
}
