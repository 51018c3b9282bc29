package dashboard

import (
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

var (
	yi  = decimal.New(1, 8)
	wan = decimal.New(1, 4)
)

// FormatCompact renders a metric figure for a card: 亿 above 1e8, 万 above
// 1e4, grouped digits below
func FormatCompact(v float64) string {
	if v == 0 {
		return "0"
	}
	d := decimal.NewFromFloat(v)
	switch {
	case d.GreaterThanOrEqual(yi):
		return d.Div(yi).StringFixed(2) + "亿"
	case d.GreaterThanOrEqual(wan):
		return d.Div(wan).StringFixed(2) + "万"
	default:
		f, _ := d.Round(2).Float64()
		return humanize.CommafWithDigits(f, 2)
	}
}
