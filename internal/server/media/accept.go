package media

import (
	"mime"
	"sort"
	"strconv"
	"strings"
)

// ParseAccept returns the media ranges of an Accept header, most
// preferred first. Ranges with equal quality keep their header order;
// q=0 ranges are dropped and all other parameters are ignored. A missing
// header accepts anything.
func ParseAccept(header string) []string {
	if strings.TrimSpace(header) == "" {
		return []string{Wildcard}
	}

	type entry struct {
		typ string
		q   float64
	}
	var entries []entry
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		typ, params, err := mime.ParseMediaType(part)
		if err != nil {
			// Keep the bare range when parameters are malformed.
			typ = strings.ToLower(strings.TrimSpace(strings.SplitN(part, ";", 2)[0]))
			params = nil
		}
		q := 1.0
		if v, ok := params["q"]; ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				q = f
			}
		}
		if q <= 0 || typ == "" {
			continue
		}
		entries = append(entries, entry{typ: typ, q: q})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].q > entries[j].q })

	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.typ
	}
	return out
}
