// Package enrich augments raw mismatch records with externally resolved
// metadata before presentation: property datatypes, localized labels, and
// parsed/formatted time values.
package enrich

import (
	"context"
	"time"

	"github.com/wmde/mismatch-finder/internal/datastore"
	"github.com/wmde/mismatch-finder/internal/observability/metrics"
	"github.com/wmde/mismatch-finder/internal/wikidata"
)

// Result is the display-ready output of an enrichment run. It is derived
// data, recomputed on every read and never persisted.
type Result struct {
	// Labels maps entity and property ids to their localized labels.
	Labels map[string]string
	// FormattedValues maps property id to composite value key
	// ("metaValue|rawValue") to the localized plain-text rendering.
	FormattedValues map[string]map[string]string
	// Grouped buckets the input mismatches by item id, preserving store
	// order within each group. Items with no mismatches have no key.
	Grouped map[string][]datastore.Mismatch
}

// Pipeline resolves the external metadata a batch of mismatches needs.
// It collects the distinct lookup keys first so each kind of lookup is a
// minimal number of round-trips against the data source.
type Pipeline struct {
	source  wikidata.DataSource
	metrics *metrics.MismatchMetrics
}

// NewPipeline creates an enrichment pipeline backed by the given source.
func NewPipeline(source wikidata.DataSource) *Pipeline {
	return &Pipeline{source: source}
}

// SetMetrics attaches pipeline metrics. Safe to leave unset.
func (p *Pipeline) SetMetrics(m *metrics.MismatchMetrics) {
	p.metrics = m
}

// Enrich resolves datatypes, labels and formatted time values for the
// given mismatches. requestedIDs are the item ids the caller asked about;
// their labels are resolved even when they matched no mismatches. Any
// upstream failure aborts the whole run; there is no partial enrichment.
func (p *Pipeline) Enrich(ctx context.Context, requestedIDs []string, mismatches []datastore.Mismatch, lang string) (Result, error) {
	start := time.Now()

	datatypes, err := p.resolveDatatypes(ctx, mismatches)
	if err != nil {
		return Result{}, err
	}

	formattedValues, err := p.resolveTimeValues(ctx, mismatches, datatypes, lang)
	if err != nil {
		return Result{}, err
	}

	labels, err := p.resolveLabels(ctx, requestedIDs, mismatches, datatypes, lang)
	if err != nil {
		return Result{}, err
	}

	if p.metrics != nil {
		p.metrics.RecordEnrichmentDuration(time.Since(start))
	}

	return Result{
		Labels:          labels,
		FormattedValues: formattedValues,
		Grouped:         groupByItem(mismatches),
	}, nil
}

func (p *Pipeline) resolveDatatypes(ctx context.Context, mismatches []datastore.Mismatch) (map[string]string, error) {
	propertyIDs := extractPropertyIDs(mismatches)
	if len(propertyIDs) == 0 {
		return map[string]string{}, nil
	}
	return p.source.GetPropertyDatatypes(ctx, propertyIDs)
}

// resolveTimeValues parses the raw values of time-typed properties and
// formats them in the requested language. Formatted values are keyed by
// "metaValue|rawValue" so the same raw value can carry different calendar
// models for different mismatches.
func (p *Pipeline) resolveTimeValues(ctx context.Context, mismatches []datastore.Mismatch, datatypes map[string]string, lang string) (map[string]map[string]string, error) {
	timeValues := extractTimeValues(mismatches, datatypes)
	if len(timeValues) == 0 {
		return map[string]map[string]string{}, nil
	}

	parsed, err := p.source.ParseValues(ctx, timeValues)
	if err != nil {
		return nil, err
	}

	updated := updateTimeValues(mismatches, parsed)
	if len(updated) == 0 {
		return map[string]map[string]string{}, nil
	}

	return p.source.FormatValues(ctx, updated, lang)
}

func (p *Pipeline) resolveLabels(ctx context.Context, requestedIDs []string, mismatches []datastore.Mismatch, datatypes map[string]string, lang string) (map[string]string, error) {
	entityIDs := extractEntityIDs(requestedIDs, mismatches, datatypes)
	if len(entityIDs) == 0 {
		return map[string]string{}, nil
	}
	return p.source.GetLabels(ctx, entityIDs, lang)
}

// extractPropertyIDs returns the distinct property ids in order of first
// appearance.
func extractPropertyIDs(mismatches []datastore.Mismatch) []string {
	seen := make(map[string]struct{}, len(mismatches))
	var ids []string
	for i := range mismatches {
		pid := mismatches[i].PropertyID
		if _, ok := seen[pid]; ok {
			continue
		}
		seen[pid] = struct{}{}
		ids = append(ids, pid)
	}
	return ids
}

// extractEntityIDs collects every id whose label the response needs: the
// property ids, the item ids the mismatches are about, the originally
// requested item ids, and entity-valued wikidata values. An empty
// wikidata value denotes a missing property and is never treated as an
// entity reference, whatever the property's datatype.
func extractEntityIDs(requestedIDs []string, mismatches []datastore.Mismatch, datatypes map[string]string) []string {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	for i := range mismatches {
		add(mismatches[i].PropertyID)
	}
	for i := range mismatches {
		m := &mismatches[i]
		add(m.ItemID)
		if m.WikidataValue != "" && datatypes[m.PropertyID] == wikidata.DatatypeItem {
			add(m.WikidataValue)
		}
	}
	for _, id := range requestedIDs {
		add(id)
	}

	return ids
}

// extractTimeValues collects the raw values of time-typed properties,
// grouped by property id. Duplicates are kept; the source deduplicates.
func extractTimeValues(mismatches []datastore.Mismatch, datatypes map[string]string) map[string][]string {
	valuesByProperty := make(map[string][]string)
	for i := range mismatches {
		m := &mismatches[i]
		if datatypes[m.PropertyID] == wikidata.DatatypeTime {
			valuesByProperty[m.PropertyID] = append(valuesByProperty[m.PropertyID], m.WikidataValue)
		}
	}
	return valuesByProperty
}

// updateTimeValues re-keys parsed time values by "metaValue|rawValue" and
// injects the calendar model when a mismatch carries a meta value.
func updateTimeValues(mismatches []datastore.Mismatch, parsed map[string]map[string]wikidata.ParsedValue) map[string]map[string]wikidata.ParsedValue {
	updated := make(map[string]map[string]wikidata.ParsedValue)

	for i := range mismatches {
		m := &mismatches[i]
		parsedValue, ok := parsed[m.PropertyID][m.WikidataValue]
		if !ok {
			continue
		}

		key := m.MetaWikidataValue + "|" + m.WikidataValue
		if m.MetaWikidataValue != "" {
			parsedValue.Value.Calendarmodel = wikidata.EntityURIPrefix + m.MetaWikidataValue
		}

		if updated[m.PropertyID] == nil {
			updated[m.PropertyID] = make(map[string]wikidata.ParsedValue)
		}
		updated[m.PropertyID][key] = parsedValue
	}

	return updated
}

// groupByItem buckets mismatches by item id, preserving input order within
// each group. Item ids with no mismatches get no key.
func groupByItem(mismatches []datastore.Mismatch) map[string][]datastore.Mismatch {
	grouped := make(map[string][]datastore.Mismatch)
	for i := range mismatches {
		grouped[mismatches[i].ItemID] = append(grouped[mismatches[i].ItemID], mismatches[i])
	}
	return grouped
}
