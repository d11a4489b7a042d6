package subs

import (
	"log/slog"
)

// Resolve computes the dispatch items for event from the table:
//
//   - only users subscribed to the event are considered, in document order;
//   - an endpoint whose filter list excludes the event is skipped;
//   - the effective enable switch is the endpoint's status when set,
//     otherwise the user's; disabled targets are skipped;
//   - the effective coordinate format is the endpoint's latlon when set,
//     otherwise the user's;
//   - at most one item per (user, endpoint) pair survives, keeping the
//     first occurrence.
//
// Users named in the subscription list but absent from the users document
// are skipped with a warning.
func Resolve(t *Table, event EventKind, logger *slog.Logger) []Item {
	var items []Item
	seen := make(map[string]bool)

	for _, name := range t.Subscriptions[event] {
		u, ok := t.Users[name]
		if !ok {
			logger.Warn("subscribed user not in users document",
				slog.String("user", name),
				slog.String("event", string(event)))
			continue
		}
		for _, kind := range SinkKinds {
			for _, ep := range u.Endpoints[kind] {
				if !ep.Allows(event) {
					continue
				}

				enabled := u.Status
				if ep.Status != nil {
					enabled = *ep.Status
				}
				if !enabled {
					continue
				}

				dedup := name + "\x00" + ep.key()
				if seen[dedup] {
					continue
				}
				seen[dedup] = true

				latlon := u.LatLon
				if ep.LatLon != "" {
					latlon = ep.LatLon
				}

				items = append(items, Item{
					User:     name,
					Endpoint: ep,
					LatLon:   latlon,
					Event:    event,
				})
			}
		}
	}

	return items
}
