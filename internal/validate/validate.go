// Package validate performs structural and statistical checks on payloads
// returned by upstream NFL services before they are stored or returned.
//
// The common policy: a wrong top-level type is a hard error; an empty but
// correctly typed payload is only a warning (absence of data is not
// malformed data). List-shaped payloads are sampled rather than scanned in
// full, trading completeness for bounded validation latency.
package validate

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

const (
	// sampleLimit bounds how many list entries are inspected
	sampleLimit = 20
	// errorLimit caps per-entry errors before the remainder is rolled up
	errorLimit = 3
	// coverageThreshold flags low coverage of optional-but-expected fields
	coverageThreshold = 0.3
)

// Result accumulates validation findings for a single payload. Adding an
// error flips Valid to false permanently; warnings never do.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// NewResult returns a fresh accumulator. Each validation call gets its own
// Result; there are no shared defaults.
func NewResult() *Result {
	return &Result{Valid: true}
}

// AddError records an error and marks the result invalid
func (r *Result) AddError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Valid = false
}

// AddWarning records a warning without affecting validity
func (r *Result) AddWarning(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Func is a validator for one upstream payload shape
type Func func(data interface{}) *Result

// SnapCounts validates a snap count payload. The expected shape is a map
// with a "players" list; each sampled player entry should carry a "player"
// name, and most entries are expected to carry a "snap_pct" usage metric.
func SnapCounts(data interface{}) *Result {
	r := NewResult()

	m, ok := data.(map[string]interface{})
	if !ok {
		r.AddError("snap counts: expected object, got %T", data)
		return r
	}
	if len(m) == 0 {
		r.AddWarning("snap counts: payload is empty")
		return r
	}

	playersRaw, ok := m["players"]
	if !ok {
		r.AddWarning("snap counts: no players field present")
		return r
	}
	players, ok := playersRaw.([]interface{})
	if !ok {
		r.AddError("snap counts: players field is %T, expected list", playersRaw)
		return r
	}

	validateEntries(r, players, "snap count", []string{"player"}, "snap_pct")
	return r
}

// Schedule validates a team schedule payload: a list of games, each with an
// "opponent" and a "date". A "result" field is expected on most entries once
// games have been played.
func Schedule(data interface{}) *Result {
	r := NewResult()

	games, ok := asList(r, data, "schedule")
	if !ok {
		return r
	}

	validateEntries(r, games, "schedule", []string{"opponent", "date"}, "result")
	return r
}

// Teams validates a team list payload: each entry needs a "name" and an
// "abbreviation".
func Teams(data interface{}) *Result {
	r := NewResult()

	teams, ok := asList(r, data, "teams")
	if !ok {
		return r
	}

	validateEntries(r, teams, "team", []string{"name", "abbreviation"}, "")
	return r
}

// Standings validates a standings payload: each entry needs "team", "wins",
// and "losses".
func Standings(data interface{}) *Result {
	r := NewResult()

	rows, ok := asList(r, data, "standings")
	if !ok {
		return r
	}

	validateEntries(r, rows, "standing", []string{"team", "wins", "losses"}, "")
	return r
}

// News validates a news feed payload: each entry needs a "headline"; a
// "published" timestamp is expected on most entries.
func News(data interface{}) *Result {
	r := NewResult()

	items, ok := asList(r, data, "news")
	if !ok {
		return r
	}

	validateEntries(r, items, "news", []string{"headline"}, "published")
	return r
}

// ValidateAndLog runs a validator, logs every finding, and reports whether
// the payload should be treated as usable. Invalid payloads are never
// usable; payloads with warnings are usable only when allowPartial is set.
func ValidateAndLog(logger *logrus.Logger, data interface{}, fn Func, label string, allowPartial bool) bool {
	r := fn(data)

	for _, msg := range r.Errors {
		logger.WithField("payload", label).Error(msg)
	}
	for _, msg := range r.Warnings {
		logger.WithField("payload", label).Warn(msg)
	}

	if !r.Valid {
		return false
	}
	if len(r.Warnings) > 0 && !allowPartial {
		logger.WithField("payload", label).Warn("discarding partial data, allow_partial is disabled")
		return false
	}
	return true
}

// asList coerces a payload to a list, recording the empty-vs-wrong-type policy
func asList(r *Result, data interface{}, label string) ([]interface{}, bool) {
	list, ok := data.([]interface{})
	if !ok {
		r.AddError("%s: expected list, got %T", label, data)
		return nil, false
	}
	if len(list) == 0 {
		r.AddWarning("%s: payload is empty", label)
		return nil, false
	}
	return list, true
}

// validateEntries inspects a bounded sample of list entries for missing
// required fields, capping per-entry errors and rolling up the remainder.
// When optionalField is set, low coverage across the sample is flagged as a
// warning in support of graceful degradation on partial data.
func validateEntries(r *Result, entries []interface{}, shape string, required []string, optionalField string) {
	sample := entries
	if len(sample) > sampleLimit {
		sample = sample[:sampleLimit]
	}

	offending := 0
	withOptional := 0
	for i, raw := range sample {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			offending++
			if len(r.Errors) < errorLimit {
				r.AddError("%s entry %d: expected object, got %T", shape, i, raw)
			}
			continue
		}

		missing := false
		for _, field := range required {
			if _, ok := entry[field]; !ok {
				missing = true
				if len(r.Errors) < errorLimit {
					r.AddError("%s entry %d: missing required field %q", shape, i, field)
				}
			}
		}
		if missing {
			offending++
		}

		if optionalField != "" {
			if _, ok := entry[optionalField]; ok {
				withOptional++
			}
		}
	}

	if offending > errorLimit {
		r.AddWarning("%s: %d additional entries with missing fields not reported", shape, offending-errorLimit)
	}

	if optionalField != "" && len(sample) > 0 {
		coverage := float64(withOptional) / float64(len(sample))
		if coverage < coverageThreshold {
			r.AddWarning("%s: only %.0f%% of sampled entries carry %q", shape, coverage*100, optionalField)
		}
	}
}
