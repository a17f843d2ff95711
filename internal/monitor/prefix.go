package monitor

import "sort"

// Prefix returns the leading run of uppercase ASCII letters when it is
// immediately followed by '-', e.g. "BRN-07" -> "BRN". Otherwise "".
func Prefix(user string) string {
	i := 0
	for i < len(user) && user[i] >= 'A' && user[i] <= 'Z' {
		i++
	}
	if i == 0 || i >= len(user) || user[i] != '-' {
		return ""
	}
	return user[:i]
}

// partition splits records into (router, prefix) groups of at least
// threshold members and everything else. Groups come out sorted by router
// then prefix; users keep their input order.
func partition(records []OfflineRecord, threshold int) ([]Group, []OfflineRecord) {
	if threshold <= 0 {
		threshold = DefaultGroupingThreshold
	}
	type gk struct{ router, prefix string }
	byKey := map[gk]*Group{}
	order := make([]gk, 0)
	var standalone []OfflineRecord

	for _, r := range records {
		p := Prefix(r.User)
		if p == "" {
			standalone = append(standalone, r)
			continue
		}
		k := gk{r.Router, p}
		g := byKey[k]
		if g == nil {
			g = &Group{Router: r.Router, Prefix: p}
			byKey[k] = g
			order = append(order, k)
		}
		g.Users = append(g.Users, r)
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].router != order[j].router {
			return order[i].router < order[j].router
		}
		return order[i].prefix < order[j].prefix
	})

	var grouped []Group
	var individual []OfflineRecord
	for _, k := range order {
		g := byKey[k]
		if len(g.Users) >= threshold {
			grouped = append(grouped, *g)
			continue
		}
		individual = append(individual, g.Users...)
	}
	individual = append(individual, standalone...)
	return grouped, individual
}
