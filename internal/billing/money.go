package billing

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// MoneyField is the typed counterpart of the {"amount": "..."} money-set
// objects, for callers that decode payloads into structs instead of maps.
type MoneyField struct {
	Amount string `json:"amount"`
}

// Amount coerces the heterogeneous money shapes the platform emits into a
// single non-negative float. Absent, null and unparseable values degrade to 0
// instead of failing: upstream payloads are inconsistently shaped across API
// versions and a missing optional amount must never abort an invoice.
func Amount(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return nonNegative(t)
	case float32:
		return nonNegative(float64(t))
	case int:
		return nonNegative(float64(t))
	case int32:
		return nonNegative(float64(t))
	case int64:
		return nonNegative(float64(t))
	case json.Number:
		return parseAmount(t.String())
	case string:
		return parseAmount(t)
	case *string:
		if t == nil {
			return 0
		}
		return parseAmount(*t)
	case map[string]any:
		if inner, ok := t["amount"]; ok {
			return Amount(inner)
		}
		return 0
	case map[string]string:
		return parseAmount(t["amount"])
	case MoneyField:
		return parseAmount(t.Amount)
	case *MoneyField:
		if t == nil {
			return 0
		}
		return parseAmount(t.Amount)
	default:
		return 0
	}
}

func parseAmount(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return nonNegative(f)
}

func nonNegative(f float64) float64 {
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Round2 rounds to cents.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round3 rounds to the 3-decimal precision the invoicing API expects for
// unit prices.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// Round4 rounds to the 4-decimal precision used for discount percentages.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
