package bracket

import "sort"

// Classify groups approved registrations by category key. Categories come back sorted by their
// canonical key and each keeps the input order of its members, so a snapshot always produces the
// same grouping and visitation order.
func Classify(registrations []Registration) []Category {
	byKey := make(map[string]*Category)
	var keys []string

	for _, r := range registrations {
		if !r.IsApproved() {
			continue
		}
		k := r.Key().Normalize()
		ks := k.String()
		c, ok := byKey[ks]
		if !ok {
			c = &Category{Key: k}
			byKey[ks] = c
			keys = append(keys, ks)
		}
		c.Participants = append(c.Participants, r)
	}

	sort.Strings(keys)

	categories := make([]Category, 0, len(keys))
	for _, ks := range keys {
		categories = append(categories, *byKey[ks])
	}
	return categories
}
