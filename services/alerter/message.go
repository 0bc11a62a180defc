package alerter

import (
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vishalnemlekar/instabot/internal/catalog"
)

const placeholder = "—"

var ist = time.FixedZone("IST", 5*60*60+30*60)

// FormatMoney renders a price like ₹1,234.50, dropping a zero fraction.
// Empty prices render as "-" and unparsable ones verbatim.
func FormatMoney(v string) string {
	s := strings.TrimSpace(v)
	if s == "" {
		return "-"
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return v
	}
	out := "₹" + humanize.FormatFloat("#,###.##", n)
	return strings.TrimSuffix(out, ".00")
}

func orDefault(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// FormatMessage builds the HTML alert for r at pct percent off
func FormatMessage(r catalog.PersistedRow, pct int, at time.Time) string {
	name := orDefault(r.Name, "(no name)")
	tile := orDefault(r.TileName, r.Category, r.TileID, placeholder)
	offer := orDefault(r.OfferPrice, r.StorePrice)
	pid := orDefault(r.ProductID, placeholder)
	vid := orDefault(r.VarID, catalog.DefaultVarID)
	sku := orDefault(r.SKU, placeholder)

	var b strings.Builder
	fmt.Fprintf(&b, "🔥 <b>%d%% OFF</b>\n", pct)
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(name))
	fmt.Fprintf(&b, "Tile: <i>%s</i>\n", html.EscapeString(tile))
	fmt.Fprintf(&b, "MRP: %s | Offer: %s\n", FormatMoney(r.MRP), FormatMoney(offer))
	fmt.Fprintf(&b, "SKU: %s\n", html.EscapeString(sku))
	fmt.Fprintf(&b, "ID: %s / %s\n", pid, vid)
	fmt.Fprintf(&b, "⏱ %s", at.In(ist).Format(time.DateTime))
	return b.String()
}

// StartupMessage announces the bot and its polling interval
func StartupMessage(poll time.Duration) string {
	return fmt.Sprintf("✅ Instamart discount bot up. Poll every %dm.", int(poll/time.Minute))
}
