package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const fingerprintSeparator = "||"

var digitsPattern = regexp.MustCompile(`\d+`)

// Fingerprint digests the content fields of r in a fixed order.
// Identity and attribution fields are not part of it.
func Fingerprint(r Row) string {
	s := strings.Join([]string{
		r.Brand,
		r.Discount,
		r.MRP,
		r.Name,
		r.OfferPrice,
		r.SKU,
		r.StorePrice,
	}, fingerprintSeparator)
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ComputePercent returns round((mrp-offer)/mrp*100). ok is false when either
// price is missing, unparsable or not finite, mrp is not positive, or offer exceeds mrp.
func ComputePercent(mrp, offer string) (int, bool) {
	m, err := strconv.ParseFloat(strings.TrimSpace(mrp), 64)
	if err != nil {
		return 0, false
	}
	o, err := strconv.ParseFloat(strings.TrimSpace(offer), 64)
	if err != nil {
		return 0, false
	}
	if math.IsNaN(m) || math.IsNaN(o) || math.IsInf(m, 0) || math.IsInf(o, 0) {
		return 0, false
	}
	if m <= 0 || o > m {
		return 0, false
	}
	return int(math.RoundToEven((m - o) / m * 100)), true
}

// ResolveDiscountString keeps an explicit discount tag, otherwise derives
// one like "60%" from the prices. It returns "" when neither is possible.
func ResolveDiscountString(mrp, offer, existing string) string {
	if existing != "" {
		return existing
	}
	if pct, ok := ComputePercent(mrp, offer); ok {
		return strconv.Itoa(pct) + "%"
	}
	return ""
}

// ParsePercent reads the first run of digits from a discount tag
func ParsePercent(s string) (int, bool) {
	m := digitsPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// PercentOff prefers the explicit discount tag and falls back to the prices
func PercentOff(r Row) (int, bool) {
	if pct, ok := ParsePercent(r.Discount); ok {
		return pct, true
	}
	return ComputePercent(r.MRP, r.OfferPrice)
}
