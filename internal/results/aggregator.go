// Package results collects per-item outcomes of a run and renders them for reporting.
package results

import (
	"sort"
	"sync"

	"github.com/ternarybob/addressbot/internal/models"
)

// Aggregator holds the latest record per item label. Records are never evicted.
type Aggregator struct {
	mu      sync.RWMutex
	records map[string]models.ResultRecord
	order   []string
}

// NewAggregator creates an empty aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{records: make(map[string]models.ResultRecord)}
}

// Record stores rec under label, replacing whatever was there (last write wins)
func (a *Aggregator) Record(label string, rec models.ResultRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.records[label]; !ok {
		a.order = append(a.order, label)
	}
	a.records[label] = rec
}

// RecordIfAbsent stores rec only when label has no record yet. Returns true if stored.
func (a *Aggregator) RecordIfAbsent(label string, rec models.ResultRecord) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.records[label]; ok {
		return false
	}
	a.order = append(a.order, label)
	a.records[label] = rec
	return true
}

// Get returns the record for label
func (a *Aggregator) Get(label string) (models.ResultRecord, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	rec, ok := a.records[label]
	return rec, ok
}

// Has reports whether label has a record
func (a *Aggregator) Has(label string) bool {
	_, ok := a.Get(label)
	return ok
}

// Snapshot returns a copy of the label to record mapping
func (a *Aggregator) Snapshot() map[string]models.ResultRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[string]models.ResultRecord, len(a.records))
	for label, rec := range a.records {
		out[label] = rec
	}
	return out
}

// Records returns the records in first-seen order
func (a *Aggregator) Records() []models.ResultRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]models.ResultRecord, 0, len(a.order))
	for _, label := range a.order {
		out = append(out, a.records[label])
	}
	return out
}

// Len returns the number of labels recorded
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.records)
}

// Reset drops every record
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.records = make(map[string]models.ResultRecord)
	a.order = nil
}

// Summarize counts outcomes
func Summarize(records []models.ResultRecord) models.RunSummary {
	summary := models.RunSummary{Total: len(records)}
	for _, rec := range records {
		switch rec.Outcome() {
		case models.OutcomeSucceeded:
			summary.Succeeded++
		case models.OutcomeFailed:
			summary.Failed++
		default:
			summary.InProgress++
		}
	}
	return summary
}

// SortByPhase orders records by phase, then label. Used for printed reports.
func SortByPhase(records []models.ResultRecord) []models.ResultRecord {
	rank := make(map[models.Phase]int)
	for i, p := range models.Phases() {
		rank[p] = i
	}

	out := append([]models.ResultRecord(nil), records...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank[out[i].Phase], rank[out[j].Phase]
		if ri != rj {
			return ri < rj
		}
		return out[i].Label < out[j].Label
	})
	return out
}
