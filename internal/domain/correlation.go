package domain

import (
	"strings"
	"time"
)

// CorrelationGroup buckets instruments that share exposure for the
// auto-trader's correlation gate (spec.md §4.6 step 6).
func CorrelationGroup(instrument string) string {
	u := strings.ToUpper(instrument)
	switch {
	case strings.Contains(u, "XAU"), strings.Contains(u, "GOLD"):
		return "GOLD"
	case strings.Contains(u, "XAG"), strings.Contains(u, "SILVER"):
		return "SILVER"
	case strings.Contains(u, "BTC"), strings.Contains(u, "ETH"), strings.Contains(u, "CRYPTO"):
		return "CRYPTO"
	case strings.HasPrefix(u, "EUR"), strings.HasSuffix(u, "EUR"):
		return "EUR"
	case strings.HasPrefix(u, "GBP"), strings.HasSuffix(u, "GBP"):
		return "GBP"
	case strings.HasPrefix(u, "JPY"), strings.HasSuffix(u, "JPY"):
		return "JPY"
	case strings.HasPrefix(u, "AUD"), strings.HasSuffix(u, "AUD"):
		return "AUD"
	case strings.HasPrefix(u, "CHF"), strings.HasSuffix(u, "CHF"):
		return "CHF"
	case strings.HasPrefix(u, "NZD"), strings.HasSuffix(u, "NZD"):
		return "NZD"
	case strings.HasPrefix(u, "CAD"), strings.HasSuffix(u, "CAD"):
		return "CAD"
	default:
		return "OTHER"
	}
}

// AssetClass is the broad instrument category used to pick ATR multipliers.
type AssetClass string

const (
	AssetForexMajor AssetClass = "forex_major"
	AssetForexMinor AssetClass = "forex_minor"
	AssetMetals     AssetClass = "metals"
	AssetIndices    AssetClass = "indices"
	AssetCrypto     AssetClass = "crypto"
)

var majors = map[string]bool{
	"EURUSD": true, "GBPUSD": true, "USDJPY": true, "USDCHF": true,
	"AUDUSD": true, "USDCAD": true, "NZDUSD": true,
}

// ClassifyAsset maps an instrument code to its asset class.
func ClassifyAsset(instrument string) AssetClass {
	u := strings.ToUpper(instrument)
	switch {
	case strings.Contains(u, "XAU"), strings.Contains(u, "XAG"), strings.Contains(u, "GOLD"), strings.Contains(u, "SILVER"):
		return AssetMetals
	case strings.Contains(u, "BTC"), strings.Contains(u, "ETH"):
		return AssetCrypto
	case strings.Contains(u, "US30"), strings.Contains(u, "NAS"), strings.Contains(u, "SPX"), strings.Contains(u, "GER"):
		return AssetIndices
	case majors[u]:
		return AssetForexMajor
	default:
		return AssetForexMinor
	}
}

// Tradeable reports whether an instrument is in a tradeable session at the
// given UTC moment, per spec.md §4.5's market-hours filter.
func Tradeable(instrument string, now time.Time) bool {
	class := ClassifyAsset(instrument)
	if class == AssetCrypto {
		return true
	}
	now = now.UTC()
	wd := now.Weekday()
	hour := now.Hour()
	// Forex/metals/indices closed Friday 22:00 UTC through Sunday 22:00 UTC.
	switch {
	case wd == time.Friday && hour >= 22:
		return false
	case wd == time.Saturday:
		return false
	case wd == time.Sunday && hour < 22:
		return false
	default:
		return true
	}
}
