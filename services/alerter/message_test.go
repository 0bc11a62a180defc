package alerter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vishalnemlekar/instabot/internal/catalog"
)

func TestFormatMoney(t *testing.T) {
	tests := map[string]string{
		"":        "-",
		"  ":      "-",
		"49":      "₹49",
		"49.00":   "₹49",
		"49.5":    "₹49.50",
		"1234":    "₹1,234",
		"1234.56": "₹1,234.56",
		"1000000": "₹1,000,000",
		"n/a":     "n/a",
	}

	for in, want := range tests {
		assert.Equal(t, want, FormatMoney(in), "input %q", in)
	}
}

func TestFormatMessage(t *testing.T) {
	at := time.Date(2024, 3, 1, 6, 30, 0, 0, time.UTC)
	r := catalog.PersistedRow{Row: catalog.Row{
		Name:       "Bread & <Butter>",
		MRP:        "1200",
		StorePrice: "300",
		ProductID:  "P1",
		Category:   "Dairy",
	}}

	got := FormatMessage(r, 75, at)
	assert.Equal(t, "🔥 <b>75% OFF</b>\n"+
		"<b>Bread &amp; &lt;Butter&gt;</b>\n"+
		"Tile: <i>Dairy</i>\n"+
		"MRP: ₹1,200 | Offer: ₹300\n"+
		"SKU: —\n"+
		"ID: P1 / default\n"+
		"⏱ 2024-03-01 12:00:00", got)
}

func TestFormatMessageFallbacks(t *testing.T) {
	got := FormatMessage(catalog.PersistedRow{}, 90, time.Unix(0, 0))
	assert.Contains(t, got, "<b>(no name)</b>")
	assert.Contains(t, got, "Tile: <i>—</i>")
	assert.Contains(t, got, "MRP: - | Offer: -")
	assert.Contains(t, got, "ID: — / default")
}

func TestStartupMessage(t *testing.T) {
	assert.Equal(t, "✅ Instamart discount bot up. Poll every 10m.", StartupMessage(10*time.Minute))
}
