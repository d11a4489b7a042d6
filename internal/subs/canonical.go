package subs

import (
	"fmt"
	"log/slog"

	"github.com/seaglider-ops/commwatch/internal/comms"
)

// Canonicalize reduces a merged document to the canonical table form:
//
//   - subscription values lift from scalar to list, drop unknown event
//     kinds, and de-duplicate user names keeping first occurrence;
//   - endpoint values lift from a single mapping to a list of mappings;
//   - a user carrying an unrecognized sink kind is dropped entirely;
//   - unknown filter names are removed from endpoint filter lists;
//   - status values that are not booleans coerce to true;
//   - latlon values that are not recognized formats coerce to ddmm.
//
// Every irregularity is logged as a warning. Canonicalization is a fixed
// point: canonicalizing an already-canonical document changes nothing.
func Canonicalize(raw map[string]any, logger *slog.Logger) (*Table, error) {
	t := &Table{
		Subscriptions: make(map[EventKind][]string),
		Users:         make(map[string]User),
	}

	if subsDoc, ok := raw["subscriptions"].(map[string]any); ok {
		for key, val := range subsDoc {
			if !ValidEventKind(key) {
				logger.Warn("unknown event kind in subscriptions",
					slog.String("event", key))
				continue
			}
			t.Subscriptions[EventKind(key)] = canonNameList(val)
		}
	}

	if usersDoc, ok := raw["users"].(map[string]any); ok {
		for name, val := range usersDoc {
			userDoc, ok := val.(map[string]any)
			if !ok {
				logger.Warn("user entry is not a mapping, dropping user",
					slog.String("user", name))
				continue
			}
			u, ok := canonUser(name, userDoc, logger)
			if !ok {
				continue
			}
			t.Users[name] = u
		}
	}

	return t, nil
}

// canonNameList lifts a scalar to a one-element list and de-duplicates while
// preserving order.
func canonNameList(val any) []string {
	var names []string
	switch v := val.(type) {
	case string:
		names = []string{v}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				names = append(names, s)
			}
		}
	}

	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// canonUser canonicalizes one user mapping. The second return is false when
// the user must be dropped (an unrecognized sink kind).
func canonUser(name string, doc map[string]any, logger *slog.Logger) (User, bool) {
	u := User{
		Name:      name,
		Status:    true,
		LatLon:    comms.FormatDDMM,
		Endpoints: make(map[SinkKind][]Endpoint),
	}

	for key, val := range doc {
		switch key {
		case "status":
			u.Status = canonStatus(val, "user "+name, logger)
		case "latlon":
			u.LatLon = canonLatLon(val, "user "+name, logger)
		default:
			if !ValidSinkKind(key) {
				logger.Warn("unknown sink kind, dropping user",
					slog.String("user", name),
					slog.String("sink", key))
				return User{}, false
			}
			kind := SinkKind(key)
			for _, epDoc := range liftToList(val) {
				ep, ok := canonEndpoint(kind, epDoc, name, logger)
				if !ok {
					continue
				}
				u.Endpoints[kind] = append(u.Endpoints[kind], ep)
			}
		}
	}

	return u, true
}

// canonEndpoint canonicalizes one endpoint mapping.
func canonEndpoint(kind SinkKind, val any, user string, logger *slog.Logger) (Endpoint, bool) {
	doc, ok := val.(map[string]any)
	if !ok {
		logger.Warn("endpoint entry is not a mapping, dropping endpoint",
			slog.String("user", user),
			slog.String("sink", string(kind)))
		return Endpoint{}, false
	}

	ep := Endpoint{Kind: kind, Attrs: make(map[string]any, len(doc))}
	where := fmt.Sprintf("user %s %s endpoint", user, kind)

	for key, v := range doc {
		switch key {
		case "filters":
			for _, f := range canonNameList(v) {
				if !ValidEventKind(f) {
					logger.Warn("unknown event kind in endpoint filter",
						slog.String("user", user),
						slog.String("sink", string(kind)),
						slog.String("filter", f))
					continue
				}
				ep.Filters = append(ep.Filters, EventKind(f))
			}
		case "status":
			st := canonStatus(v, where, logger)
			ep.Status = &st
		case "latlon":
			ep.LatLon = canonLatLon(v, where, logger)
		default:
			ep.Attrs[key] = v
		}
	}

	return ep, true
}

func canonStatus(val any, where string, logger *slog.Logger) bool {
	b, ok := val.(bool)
	if !ok {
		logger.Warn("status is not a boolean, coercing to true",
			slog.String("where", where),
			slog.Any("value", val))
		return true
	}
	return b
}

func canonLatLon(val any, where string, logger *slog.Logger) comms.LatLonFormat {
	s, ok := val.(string)
	if ok && comms.ValidLatLonFormat(s) {
		return comms.LatLonFormat(s)
	}
	logger.Warn("unrecognized latlon format, coercing to ddmm",
		slog.String("where", where),
		slog.Any("value", val))
	return comms.FormatDDMM
}

// liftToList lifts a single mapping to a one-element list. Lists pass
// through unchanged.
func liftToList(val any) []any {
	if lst, ok := val.([]any); ok {
		return lst
	}
	return []any{val}
}
