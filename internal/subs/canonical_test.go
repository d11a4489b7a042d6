package subs_test

import (
	"log/slog"
	"reflect"
	"testing"

	"github.com/seaglider-ops/commwatch/internal/comms"
	"github.com/seaglider-ops/commwatch/internal/subs"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestCanonicalizeLiftsAndCoerces(t *testing.T) {
	t.Parallel()

	raw := map[string]any{
		"subscriptions": map[string]any{
			"gps":     "alice",                          // scalar lifts to list
			"recov":   []any{"alice", "bob", "alice"},   // duplicate dropped
			"launch":  []any{"alice"},                   // unknown event kind dropped
			"lategps": []any{"bob"},
		},
		"users": map[string]any{
			"alice": map[string]any{
				"status": "yes", // coerces to true
				"latlon": "degrees-of-arc", // coerces to ddmm
				"email": map[string]any{ // single endpoint lifts to list
					"address": "alice@example.org",
					"filters": "gps", // scalar filter lifts
				},
			},
			"bob": map[string]any{
				"ntfy": []any{
					map[string]any{
						"topic":   "sg-ops",
						"filters": []any{"gps", "bogus"}, // unknown filter removed
						"status":  false,
					},
				},
			},
			"carol": map[string]any{
				"pager": map[string]any{"number": "555"}, // unknown sink drops user
			},
		},
	}

	table, err := subs.Canonicalize(raw, testLogger())
	if err != nil {
		t.Fatalf("Canonicalize error: %v", err)
	}

	if got := table.Subscriptions[subs.EventGPS]; !reflect.DeepEqual(got, []string{"alice"}) {
		t.Errorf("gps subscribers = %v, want [alice]", got)
	}
	if got := table.Subscriptions[subs.EventRecov]; !reflect.DeepEqual(got, []string{"alice", "bob"}) {
		t.Errorf("recov subscribers = %v, want [alice bob]", got)
	}
	if _, ok := table.Subscriptions["launch"]; ok {
		t.Error("unknown event kind survived canonicalization")
	}

	alice, ok := table.Users["alice"]
	if !ok {
		t.Fatal("alice missing")
	}
	if !alice.Status {
		t.Error("alice.Status = false, want coerced true")
	}
	if alice.LatLon != comms.FormatDDMM {
		t.Errorf("alice.LatLon = %q, want ddmm", alice.LatLon)
	}
	eps := alice.Endpoints[subs.SinkEmail]
	if len(eps) != 1 {
		t.Fatalf("alice email endpoints = %d, want 1", len(eps))
	}
	if got := eps[0].Str("address"); got != "alice@example.org" {
		t.Errorf("address = %q", got)
	}
	if !reflect.DeepEqual(eps[0].Filters, []subs.EventKind{subs.EventGPS}) {
		t.Errorf("filters = %v, want [gps]", eps[0].Filters)
	}

	bob := table.Users["bob"]
	beps := bob.Endpoints[subs.SinkNtfy]
	if len(beps) != 1 {
		t.Fatalf("bob ntfy endpoints = %d, want 1", len(beps))
	}
	if !reflect.DeepEqual(beps[0].Filters, []subs.EventKind{subs.EventGPS}) {
		t.Errorf("bob filters = %v, want [gps] with bogus removed", beps[0].Filters)
	}
	if beps[0].Status == nil || *beps[0].Status {
		t.Error("bob endpoint status not preserved as false")
	}

	if _, ok := table.Users["carol"]; ok {
		t.Error("carol with unknown sink kind survived canonicalization")
	}
}

func TestCanonicalizeFixedPoint(t *testing.T) {
	t.Parallel()

	raw := map[string]any{
		"subscriptions": map[string]any{
			"gps":   "alice",
			"recov": []any{"alice", "bob"},
		},
		"users": map[string]any{
			"alice": map[string]any{
				"status": 1,
				"email":  map[string]any{"address": "alice@example.org"},
			},
			"bob": map[string]any{
				"latlon": "dddd",
				"ntfy": []any{
					map[string]any{"topic": "sg-ops", "filters": "gps"},
				},
			},
		},
	}

	once, err := subs.Canonicalize(raw, testLogger())
	if err != nil {
		t.Fatalf("first Canonicalize error: %v", err)
	}
	twice, err := subs.Canonicalize(once.Raw(), testLogger())
	if err != nil {
		t.Fatalf("second Canonicalize error: %v", err)
	}

	if !reflect.DeepEqual(once.Subscriptions, twice.Subscriptions) {
		t.Errorf("subscriptions not a fixed point:\nonce  %v\ntwice %v",
			once.Subscriptions, twice.Subscriptions)
	}
	if !reflect.DeepEqual(once.Users, twice.Users) {
		t.Errorf("users not a fixed point:\nonce  %+v\ntwice %+v",
			once.Users, twice.Users)
	}
}

func TestCanonicalizeEmptyDocument(t *testing.T) {
	t.Parallel()

	table, err := subs.Canonicalize(map[string]any{}, testLogger())
	if err != nil {
		t.Fatalf("Canonicalize error: %v", err)
	}
	if len(table.Subscriptions) != 0 || len(table.Users) != 0 {
		t.Errorf("empty document produced non-empty table: %+v", table)
	}
}
