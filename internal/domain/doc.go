// Package domain models citizen-submitted hazard reports and their lifecycle.
//
// # Lifecycle
//
// A report is created Pending and is visible in the active feed until an
// operator triages it. Triage moves it to Approved or Rejected, after which it
// is archived. The status tag is the single source of truth:
//
//	Pending   → active feed
//	Approved  → archive (terminal)
//	Rejected  → archive (terminal)
//
// No transition leaves a terminal state. See [Status.CanTransitionTo].
//
// # Enrichment
//
// After a report commits, an [EnrichmentTask] is published to the work queue.
// A worker resolves the coordinates into a [PlaceName] per configured culture
// (el-GR, then en-US) through a [Geocoder]. Each culture is resolved and stored
// independently, so a failure in one leaves the others usable. Place names are
// keyed by (report, locale) and re-running enrichment overwrites them.
//
// # Cultures
//
// Cultures are full tags ("el-GR", "en-US"). The geocoding provider receives
// only the primary subtag, see [Language]. en-US is the reference culture:
// feeds requested in it carry enum-derived strings rather than translations.
//
// # Disaster types
//
// Categories carry a stable integer index ([DisasterType.Index]) used by
// operator tooling to address incident clusters:
//
//	0 Earthquake  1 Flood  2 Fire  3 Landslide
//	4 Storm       5 Tornado  6 Tsunami  7 Other
package domain
