// Package selector walks a JSON value and extracts the fields named by a
// definition set, in select, filter or context mode.
package selector

import (
	"log/slog"

	"github.com/mcncl/jsonmeta/internal/errors"
	"github.com/mcncl/jsonmeta/internal/fields"
	"github.com/mcncl/jsonmeta/internal/mapper"
	"github.com/mcncl/jsonmeta/internal/models"
	"github.com/mcncl/jsonmeta/internal/parser"
)

// Mode selects how the field set is built and how the selection is finished
type Mode int

const (
	Select Mode = iota
	Filter
	Context
)

// String returns the name of the mode
func (m Mode) String() string {
	switch m {
	case Select:
		return "select"
	case Filter:
		return "filter"
	case Context:
		return "context"
	default:
		return "unknown"
	}
}

// Outcome is the result of one selection
type Outcome struct {
	Value models.Value
	// Order lists the output fields in display order
	Order []string
	// Map is set in context mode: the map of the flattened value
	Map *mapper.Map
}

// strategy holds the mode specific steps around the common walk
type strategy interface {
	fieldSet(exprs []string, m *mapper.Map) *fields.Set
	finish(out *Outcome) error
}

type selectStrategy struct{}

func (selectStrategy) fieldSet(exprs []string, m *mapper.Map) *fields.Set {
	return fields.Build(exprs, m)
}

func (selectStrategy) finish(*Outcome) error { return nil }

type filterStrategy struct{}

func (filterStrategy) fieldSet(exprs []string, m *mapper.Map) *fields.Set {
	return fields.BuildWide(exprs, m)
}

func (filterStrategy) finish(*Outcome) error { return nil }

type contextStrategy struct{}

func (contextStrategy) fieldSet(exprs []string, m *mapper.Map) *fields.Set {
	return fields.Build(exprs, m)
}

// finish lifts every selected value to the top level and maps the result
func (contextStrategy) finish(out *Outcome) error {
	var records []models.Value
	if out.Value.Kind() == models.Array {
		records = out.Value.Items()
	} else {
		records = []models.Value{out.Value}
	}

	flat := make([]models.Value, 0)
	for _, record := range records {
		obj := record.Object()
		if obj == nil {
			flat = append(flat, record)
			continue
		}
		for _, key := range obj.Keys() {
			v, _ := obj.Get(key)
			if v.Kind() == models.Array {
				flat = append(flat, v.Items()...)
			} else {
				flat = append(flat, v)
			}
		}
	}

	out.Value = models.ArrayValue(flat...)
	m, err := mapper.Build(out.Value, nil)
	if err != nil {
		return err
	}
	out.Map = m
	out.Order = m.SimpleNames()
	return nil
}

var strategies = map[Mode]strategy{
	Select:  selectStrategy{},
	Filter:  filterStrategy{},
	Context: contextStrategy{},
}

// Engine runs selections
type Engine struct {
	logger *slog.Logger
}

// New creates an engine. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger.With("component", "selector")}
}

// FieldSet builds the definition set a mode uses for exprs
func (e *Engine) FieldSet(exprs []string, m *mapper.Map, mode Mode) (*fields.Set, error) {
	s, ok := strategies[mode]
	if !ok {
		return nil, errors.NewSelectionError("unknown selection mode", nil)
	}
	set := s.fieldSet(exprs, m)
	for _, name := range set.Dropped() {
		e.logger.Debug("dropping unresolved field", "field", name, "mode", mode.String())
	}
	return set, nil
}

// Run builds the field set for exprs against m and applies it to value
func (e *Engine) Run(value models.Value, m *mapper.Map, exprs []string, mode Mode) (*Outcome, error) {
	set, err := e.FieldSet(exprs, m, mode)
	if err != nil {
		return nil, err
	}
	return e.Apply(value, set, mode)
}

// Apply selects the fields of set from value. An array is processed one
// record per element; any other value is a single record. A record whose
// filter fails, or that lacks a filtered field, is left out, and so is an
// array element where no field matched.
func (e *Engine) Apply(value models.Value, set *fields.Set, mode Mode) (*Outcome, error) {
	s, ok := strategies[mode]
	if !ok {
		return nil, errors.NewSelectionError("unknown selection mode", nil)
	}

	defs := set.Definitions()
	order := set.Order()
	out := &Outcome{Order: order}

	if value.Kind() == models.Array {
		records := make([]models.Value, 0, len(value.Items()))
		for _, item := range value.Items() {
			if record, keep := selectRecord(item, defs, order); keep && record.Object().Len() > 0 {
				records = append(records, record)
			}
		}
		e.logger.Debug("selected records", "mode", mode.String(), "input", len(value.Items()), "output", len(records))
		out.Value = models.ArrayValue(records...)
	} else {
		record, keep := selectRecord(value, defs, order)
		if !keep {
			record = models.ObjectValue(nil)
		}
		out.Value = record
	}

	if err := s.finish(out); err != nil {
		return nil, errors.NewSelectionError("failed to finish "+mode.String(), err)
	}
	return out, nil
}

// Unwrap returns the "data" member of a top-level object that has one, the
// envelope a paged response wraps its results in. Other values are returned as is.
func Unwrap(value models.Value) models.Value {
	if data, ok := value.Object().Get("data"); ok {
		return data
	}
	return value
}

// recordWalk collects matches for one record
type recordWalk struct {
	defs     []*fields.Definition
	found    map[string]models.Value
	rejected bool
}

func selectRecord(record models.Value, defs []*fields.Definition, order []string) (models.Value, bool) {
	w := &recordWalk{defs: defs, found: make(map[string]models.Value)}
	w.walk(parser.ExpandEmbedded(record), nil)
	if w.rejected {
		return models.Value{}, false
	}
	for _, def := range defs {
		if _, seen := w.found[def.OutputName]; def.Filter.Active() && !seen {
			return models.Value{}, false
		}
	}

	obj := models.NewObject()
	for _, name := range order {
		if v, ok := w.found[name]; ok {
			obj.Set(name, v)
		}
	}
	return models.ObjectValue(obj), true
}

// walk computes the same cursor the mapper does and records every
// definition whose source matches it. A later match overwrites an earlier one.
func (w *recordWalk) walk(v models.Value, cursor mapper.Path) {
	switch v.Kind() {
	case models.Object:
		obj := v.Object()
		for _, key := range obj.Keys() {
			child, _ := obj.Get(key)
			path := cursor.Child(mapper.Segment{Name: key, Level: len(cursor) + 1, Type: mapper.TypeOf(child)})
			expanded := parser.ExpandEmbedded(child)
			w.match(path, expanded)
			if expanded.IsContainer() {
				w.walk(expanded, path)
			}
		}
	case models.Array:
		for _, item := range v.Items() {
			w.walk(parser.ExpandEmbedded(item), cursor)
		}
	}
}

func (w *recordWalk) match(path mapper.Path, v models.Value) {
	for _, def := range w.defs {
		if !def.Source.Matches(path) {
			continue
		}
		if !def.Filter.Match(v.Text()) {
			w.rejected = true
			continue
		}
		w.found[def.OutputName] = v
	}
}
