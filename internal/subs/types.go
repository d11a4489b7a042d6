// Package subs implements the layered subscription table: loading and
// deep-merging the basestation, group and mission documents, canonicalizing
// the result, and resolving the dispatch items for an event.
package subs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/seaglider-ops/commwatch/internal/comms"
)

// -------------------------------------------------------------------------
// Event Kinds — closed set of notification triggers
// -------------------------------------------------------------------------

// EventKind names one notification trigger.
type EventKind string

// The closed set of event kinds.
const (
	EventLateGPS   EventKind = "lategps"
	EventGPS       EventKind = "gps"
	EventRecov     EventKind = "recov"
	EventCritical  EventKind = "critical"
	EventDrift     EventKind = "drift"
	EventDiveTar   EventKind = "divetar"
	EventComp      EventKind = "comp"
	EventAlerts    EventKind = "alerts"
	EventErrors    EventKind = "errors"
	EventUpload    EventKind = "upload"
	EventTraceback EventKind = "traceback"
)

// EventKinds lists every recognized event kind in a stable order.
var EventKinds = []EventKind{
	EventLateGPS, EventGPS, EventRecov, EventCritical, EventDrift,
	EventDiveTar, EventComp, EventAlerts, EventErrors, EventUpload,
	EventTraceback,
}

// ValidEventKind reports whether s names a recognized event kind.
func ValidEventKind(s string) bool {
	for _, k := range EventKinds {
		if string(k) == s {
			return true
		}
	}
	return false
}

// -------------------------------------------------------------------------
// Sink Kinds
// -------------------------------------------------------------------------

// SinkKind names one notification transport.
type SinkKind string

// The recognized sink kinds. Each maps to one adapter in internal/sink.
const (
	SinkEmail      SinkKind = "email"
	SinkSlack      SinkKind = "slack"
	SinkMattermost SinkKind = "mattermost"
	SinkRockblock  SinkKind = "rockblock"
	SinkPost       SinkKind = "post"
	SinkNtfy       SinkKind = "ntfy"
)

// SinkKinds lists every recognized sink kind in resolution order.
var SinkKinds = []SinkKind{
	SinkEmail, SinkSlack, SinkMattermost, SinkRockblock, SinkPost, SinkNtfy,
}

// ValidSinkKind reports whether s names a recognized sink kind.
func ValidSinkKind(s string) bool {
	for _, k := range SinkKinds {
		if string(k) == s {
			return true
		}
	}
	return false
}

// -------------------------------------------------------------------------
// Endpoint / User / Table
// -------------------------------------------------------------------------

// Endpoint is one concrete destination plus its formatting rules. The
// recognized attribute keys depend on the sink kind; the adapter validates
// its own shape at send time. Endpoints borrow from the table they were
// resolved from and must not outlive the dispatch call.
type Endpoint struct {
	// Kind is the owning sink kind.
	Kind SinkKind

	// Attrs holds the endpoint's sink-specific attributes (address, hook,
	// topic, …) as loaded from the document.
	Attrs map[string]any

	// Filters restricts the endpoint to the named event kinds. Nil means
	// no restriction.
	Filters []EventKind

	// Status is the per-endpoint enable switch. Nil inherits the user's.
	Status *bool

	// LatLon is the per-endpoint coordinate format. Empty inherits the
	// user's.
	LatLon comms.LatLonFormat
}

// Str returns the named attribute as a string, or "" when absent or not a
// string.
func (e Endpoint) Str(key string) string {
	s, _ := e.Attrs[key].(string)
	return s
}

// Int returns the named attribute as an int, tolerating the YAML number
// types, or 0 when absent.
func (e Endpoint) Int(key string) int {
	switch v := e.Attrs[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// StrList returns the named attribute as an ordered list of strings. A
// scalar string lifts to a single-element list.
func (e Endpoint) StrList(key string) []string {
	switch v := e.Attrs[key].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// PriorityFor returns the per-event priority override from the endpoint's
// priority mapping, or 0 when the endpoint carries none for this event.
func (e Endpoint) PriorityFor(event EventKind) int {
	m, ok := e.Attrs["priority"].(map[string]any)
	if !ok {
		return 0
	}
	switch v := m[string(event)].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Allows reports whether the endpoint's filter list admits the event.
func (e Endpoint) Allows(event EventKind) bool {
	if len(e.Filters) == 0 {
		return true
	}
	for _, f := range e.Filters {
		if f == event {
			return true
		}
	}
	return false
}

// key returns a stable identity for (user, endpoint) de-duplication: the
// sink kind plus the sorted attribute pairs.
func (e Endpoint) key() string {
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(string(e.Kind))
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%v", k, e.Attrs[k])
	}
	return b.String()
}

// User is one subscriber: per-sink-kind endpoint lists plus user-level
// defaults.
type User struct {
	// Name is the user's key in the users document.
	Name string

	// Status is the user-level enable switch (default true).
	Status bool

	// LatLon is the user-level coordinate format (default ddmm).
	LatLon comms.LatLonFormat

	// Endpoints maps sink kind to the user's ordered endpoint list.
	Endpoints map[SinkKind][]Endpoint
}

// Table is the canonicalized subscription table: which users are subscribed
// to each event kind, and each user's endpoints. It is loaded fresh at event
// time — the mission operator may edit the documents live — and never cached
// between events.
type Table struct {
	// Subscriptions maps event kind to the ordered subscribed user names.
	Subscriptions map[EventKind][]string

	// Users maps user name to the user record.
	Users map[string]User
}

// Raw converts the table back to the generic document form. Used by the
// canonicalization fixed-point tests and the debug dump.
func (t *Table) Raw() map[string]any {
	subsDoc := make(map[string]any, len(t.Subscriptions))
	for kind, names := range t.Subscriptions {
		lst := make([]any, len(names))
		for i, n := range names {
			lst[i] = n
		}
		subsDoc[string(kind)] = lst
	}

	usersDoc := make(map[string]any, len(t.Users))
	for name, u := range t.Users {
		userDoc := map[string]any{
			"status": u.Status,
			"latlon": string(u.LatLon),
		}
		for kind, eps := range u.Endpoints {
			lst := make([]any, len(eps))
			for i, ep := range eps {
				lst[i] = ep.rawDoc()
			}
			userDoc[string(kind)] = lst
		}
		usersDoc[name] = userDoc
	}

	return map[string]any{
		"subscriptions": subsDoc,
		"users":         usersDoc,
	}
}

// rawDoc converts the endpoint back to its document form.
func (e Endpoint) rawDoc() map[string]any {
	doc := make(map[string]any, len(e.Attrs)+3)
	for k, v := range e.Attrs {
		doc[k] = v
	}
	if len(e.Filters) > 0 {
		lst := make([]any, len(e.Filters))
		for i, f := range e.Filters {
			lst[i] = string(f)
		}
		doc["filters"] = lst
	}
	if e.Status != nil {
		doc["status"] = *e.Status
	}
	if e.LatLon != "" {
		doc["latlon"] = string(e.LatLon)
	}
	return doc
}

// -------------------------------------------------------------------------
// Resolved dispatch item
// -------------------------------------------------------------------------

// Item is one resolved dispatch target: built fresh per event, never cached.
type Item struct {
	// User is the subscriber's name.
	User string

	// Endpoint is the destination. It borrows from the table.
	Endpoint Endpoint

	// LatLon is the effective coordinate format (endpoint over user).
	LatLon comms.LatLonFormat

	// Event is the event kind being dispatched (after any elevation).
	Event EventKind
}
