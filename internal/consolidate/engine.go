// Package consolidate merges parsed vintages into one table keyed by
// observation month and vintage date.
package consolidate

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/vintage-cli/internal/model"
)

// Conflict is a key that two sources reported with different values. The value
// from the later-processed source is kept.
type Conflict struct {
	ObservationDate time.Time `json:"observation_date" yaml:"observation_date"`
	VintageDate     time.Time `json:"vintage_date" yaml:"vintage_date"`
	OldValue        float64   `json:"old_value" yaml:"old_value"`
	NewValue        float64   `json:"new_value" yaml:"new_value"`
	OldSource       string    `json:"old_source" yaml:"old_source"`
	NewSource       string    `json:"new_source" yaml:"new_source"`
}

// Engine accumulates vintage records. Add is safe for concurrent use; each
// upsert is applied atomically per key.
type Engine struct {
	mu        sync.Mutex
	entries   map[model.ObservationKey]model.VintageObservation
	conflicts []Conflict
	log       *zap.Logger
}

// NewEngine creates an empty engine.
func NewEngine() *Engine {
	return &Engine{
		entries: make(map[model.ObservationKey]model.VintageObservation),
		log:     zap.L().With(zap.String("component", "consolidate")),
	}
}

// Add merges every observation of rec and returns the number of conflicts it
// produced.
func (e *Engine) Add(rec *model.VintageRecord) int {
	if rec == nil {
		return 0
	}
	return e.AddObservations(rec.VintageObservations())
}

// AddObservations upserts individual facts in the given order.
func (e *Engine) AddObservations(obs []model.VintageObservation) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, o := range obs {
		if e.upsert(o) {
			n++
		}
	}
	return n
}

func (e *Engine) upsert(o model.VintageObservation) bool {
	o.ObservationDate = model.MonthStart(o.ObservationDate)
	o.VintageDate = model.DateOnly(o.VintageDate)
	key := o.Key()

	prev, ok := e.entries[key]
	if !ok {
		e.entries[key] = o
		return false
	}

	if prev.Value == o.Value {
		// Same fact from two files: keep the smaller source name so the table
		// does not depend on processing order.
		if o.SourceFile < prev.SourceFile {
			e.entries[key] = o
		}
		return false
	}

	c := Conflict{
		ObservationDate: key.ObservationDate,
		VintageDate:     key.VintageDate,
		OldValue:        prev.Value,
		NewValue:        o.Value,
		OldSource:       prev.SourceFile,
		NewSource:       o.SourceFile,
	}
	e.conflicts = append(e.conflicts, c)
	e.entries[key] = o

	e.log.Warn("conflicting value for observation, later source wins",
		zap.String("observation_date", model.FormatMonth(c.ObservationDate)),
		zap.String("vintage_date", c.VintageDate.Format(model.DateLayout)),
		zap.Float64("old_value", c.OldValue),
		zap.Float64("new_value", c.NewValue),
		zap.String("old_source", c.OldSource),
		zap.String("new_source", c.NewSource),
	)
	return true
}

// Table materializes the current state as an ordered table.
func (e *Engine) Table() *Table {
	e.mu.Lock()
	defer e.mu.Unlock()

	rows := make([]model.VintageObservation, 0, len(e.entries))
	for _, o := range e.entries {
		rows = append(rows, o)
	}
	conflicts := make([]Conflict, len(e.conflicts))
	copy(conflicts, e.conflicts)
	return newTable(rows, conflicts)
}

// Merge applies records in slice order and returns the resulting table. Callers
// pass records in file discovery order so conflict resolution is reproducible.
func Merge(records []*model.VintageRecord) *Table {
	e := NewEngine()
	for _, r := range records {
		e.Add(r)
	}
	t := e.Table()
	e.log.Info("consolidated vintages",
		zap.Int("records", len(records)),
		zap.Int("rows", t.Len()),
		zap.Int("conflicts", len(t.conflicts)),
	)
	return t
}

// FromObservations rebuilds a table from persisted rows.
func FromObservations(obs []model.VintageObservation) *Table {
	e := NewEngine()
	e.AddObservations(obs)
	return e.Table()
}
