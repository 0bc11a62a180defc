package crawler

import "github.com/vishalnemlekar/instabot/internal/catalog"

// Dedupe keeps the first row seen for each (product_id, var_id), preserving order
func Dedupe(rows []catalog.Row) []catalog.Row {
	seen := make(map[catalog.Key]struct{}, len(rows))
	out := make([]catalog.Row, 0, len(rows))
	for _, r := range rows {
		k := r.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}
