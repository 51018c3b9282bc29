package normalize

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

var (
	yi  = decimal.NewFromInt(100_000_000) // 亿
	wan = decimal.NewFromInt(10_000)      // 万
)

var numberNoise = strings.NewReplacer(",", "", "_", "", " ", "", "$", "", "%", "", "+", "")

// timeLayouts are tried in order for string timestamps without a zone, which are read as UTC
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006-01-02",
}

// present reports whether v exists and is not JSON null
func present(v gjson.Result) bool {
	return v.Exists() && v.Type != gjson.Null
}

// lookup returns the first of names that is present and non-null in obj
func lookup(obj map[string]gjson.Result, names []string) (string, gjson.Result, bool) {
	for _, name := range names {
		if v, ok := obj[name]; ok && present(v) {
			return name, v, true
		}
	}
	return "", gjson.Result{}, false
}

// toNumber is the tolerant numeric parse. ok is false for anything that is
// not a number, in which case the value is 0.
func toNumber(v gjson.Result) (float64, bool) {
	switch v.Type {
	case gjson.Number:
		return v.Num, true
	case gjson.String:
		return parseNumber(v.Str)
	default:
		return 0, false
	}
}

func parseNumber(s string) (float64, bool) {
	s = numberNoise.Replace(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}

	mult := decimal.NewFromInt(1)
	switch {
	case strings.HasSuffix(s, "亿"):
		mult = yi
		s = strings.TrimSuffix(s, "亿")
	case strings.HasSuffix(s, "万"):
		mult = wan
		s = strings.TrimSuffix(s, "万")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	f, _ := d.Mul(mult).Float64()
	return f, true
}

// toTime parses unix seconds, unix milliseconds or a formatted timestamp
func toTime(v gjson.Result) (time.Time, bool) {
	switch v.Type {
	case gjson.Number:
		return fromUnix(v.Num)
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromUnix(f)
		}
	}
	return time.Time{}, false
}

func fromUnix(f float64) (time.Time, bool) {
	if f <= 0 {
		return time.Time{}, false
	}
	if f >= 1e12 {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC(), true
}

// toAttr converts a record value into a string or float64 attribute
func toAttr(v gjson.Result) any {
	switch v.Type {
	case gjson.Number:
		return v.Num
	case gjson.String:
		if f, ok := parseNumber(v.Str); ok && looksNumeric(v.Str) {
			return f
		}
		return v.Str
	case gjson.True:
		return "true"
	case gjson.False:
		return "false"
	case gjson.JSON:
		return compact(v.Raw)
	default:
		return ""
	}
}

// looksNumeric keeps zero-padded codes such as "007" as text
func looksNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) > 1 && s[0] == '0' && s[1] != '.' {
		return false
	}
	return true
}

func compact(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	inString, escaped := false, false
	for _, r := range raw {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && inString:
			escaped = true
		case r == '"':
			inString = !inString
		case !inString && (r == ' ' || r == '\n' || r == '\t' || r == '\r'):
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// formatAttr renders an attribute for use inside a fingerprint
func formatAttr(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	default:
		return ""
	}
}
