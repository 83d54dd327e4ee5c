// Package engine exposes the selection operations over a JSON value and
// chains them into pipelines.
package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/mcncl/jsonmeta/internal/errors"
	"github.com/mcncl/jsonmeta/internal/fields"
	"github.com/mcncl/jsonmeta/internal/formatter"
	"github.com/mcncl/jsonmeta/internal/looper"
	"github.com/mcncl/jsonmeta/internal/mapper"
	"github.com/mcncl/jsonmeta/internal/models"
	"github.com/mcncl/jsonmeta/internal/parser"
	"github.com/mcncl/jsonmeta/internal/schema"
	"github.com/mcncl/jsonmeta/internal/selector"
)

// SchemaProvider returns the documented response of an endpoint. A nil
// response means the endpoint documents no body.
type SchemaProvider interface {
	FetchSchema(endpoint, method string) (*schema.Response, error)
}

// Result is the outcome of an operation
type Result struct {
	Value models.Value
	// Order lists the output fields in display order
	Order []string
	// Map is the metadata map the operation resolved its fields against
	Map *mapper.Map
	// Query is the available-field expression the result answers, if any.
	// Its answer is in Text and Value is unset.
	Query string
	Text  string
}

// IsQuery reports whether the result answers an available-field query
func (r *Result) IsQuery() bool {
	return r.Query != ""
}

// Options configures an Engine
type Options struct {
	Invoker   looper.Invoker
	Looper    *looper.Looper
	Formatter *formatter.Formatter
	Schemas   SchemaProvider
	// KeepEnvelope disables unwrapping of a top-level "data" member
	KeepEnvelope bool
	Logger       *slog.Logger
}

// Engine runs select, filter, context and loop operations
type Engine struct {
	selector     *selector.Engine
	looper       *looper.Looper
	invoker      looper.Invoker
	formatter    *formatter.Formatter
	schemas      SchemaProvider
	keepEnvelope bool
	logger       *slog.Logger
}

// New creates an Engine
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	l := opts.Looper
	if l == nil {
		l = looper.New(looper.Options{Logger: logger})
	}
	f := opts.Formatter
	if f == nil {
		f = formatter.NewFormatter(formatter.DefaultOptions())
	}
	return &Engine{
		selector:     selector.New(logger),
		looper:       l,
		invoker:      opts.Invoker,
		formatter:    f,
		schemas:      opts.Schemas,
		keepEnvelope: opts.KeepEnvelope,
		logger:       logger.With("component", "engine"),
	}
}

// Describe fetches the documented response of endpoint. Without a schema
// provider, or for an endpoint it does not document, nil is returned and
// the live value gets mapped instead.
func (e *Engine) Describe(endpoint, method string) (*schema.Response, error) {
	if e.schemas == nil {
		return nil, nil
	}
	doc, err := e.schemas.FetchSchema(endpoint, method)
	if err != nil {
		if stderrors.Is(err, errors.ErrUndocumented) {
			e.logger.Debug("no documentation, mapping live data", "endpoint", endpoint, "method", method)
			return nil, nil
		}
		return nil, err
	}
	return doc, nil
}

// Select keeps the fields named by exprs in each record
func (e *Engine) Select(value models.Value, doc *schema.Response, exprs ...string) (*Result, error) {
	return e.run(value, doc, exprs, selector.Select)
}

// Filter keeps every first-level field of the records that pass the
// filters in exprs
func (e *Engine) Filter(value models.Value, doc *schema.Response, exprs ...string) (*Result, error) {
	return e.run(value, doc, exprs, selector.Filter)
}

// Context selects the fields named by exprs and lifts their values to
// the top level
func (e *Engine) Context(value models.Value, doc *schema.Response, exprs ...string) (*Result, error) {
	return e.run(value, doc, exprs, selector.Context)
}

// Loop calls template once per value of the fields named by exprs and
// returns the merged responses
func (e *Engine) Loop(ctx context.Context, value models.Value, doc *schema.Response, template string, exprs ...string) (*Result, error) {
	value, m, err := e.prepare(value, doc)
	if err != nil {
		return nil, err
	}
	if q, text, ok := query(m, exprs); ok {
		return &Result{Map: m, Query: q, Text: text}, nil
	}

	set, err := e.selector.FieldSet(exprs, m, selector.Select)
	if err != nil {
		return nil, err
	}
	tmpl := looper.ParseTemplate(template)
	e.logger.Debug("looping", "template", template, "fields", set.Order(), "placeholders", tmpl.Keys)

	out, err := e.looper.Loop(ctx, value, set, tmpl, e.invoker)
	if err != nil {
		return nil, err
	}

	resultMap, err := mapper.Build(out, nil)
	if err != nil {
		return nil, err
	}
	return &Result{Value: out, Order: resultMap.FirstLevelNames(), Map: resultMap}, nil
}

func (e *Engine) run(value models.Value, doc *schema.Response, exprs []string, mode selector.Mode) (*Result, error) {
	value, m, err := e.prepare(value, doc)
	if err != nil {
		return nil, err
	}
	if q, text, ok := query(m, exprs); ok {
		return &Result{Map: m, Query: q, Text: text}, nil
	}

	out, err := e.selector.Run(value, m, exprs, mode)
	if err != nil {
		return nil, err
	}
	result := &Result{Value: out.Value, Order: out.Order, Map: m}
	if out.Map != nil {
		result.Map = out.Map
	}
	return result, nil
}

// prepare unwraps the envelope of value and maps it. A string value must
// hold JSON text.
func (e *Engine) prepare(value models.Value, doc *schema.Response) (models.Value, *mapper.Map, error) {
	if value.Kind() == models.String {
		parsed, err := parser.ParseString(value.Str())
		if err != nil {
			return models.Value{}, nil, errors.NewMappingError("value is not JSON", errors.ErrInvalidJSON)
		}
		value = parsed
	}

	build := mapper.BuildEnveloped
	if !e.keepEnvelope {
		value = selector.Unwrap(value)
		build = mapper.Build
	}
	m, err := build(value, doc)
	if err != nil {
		return models.Value{}, nil, err
	}
	e.logger.Debug("value mapped", "paths", len(m.Full), "simple", len(m.SimpleKeys), "documented", doc.HasBody())
	return value, m, nil
}

// query answers a lone available-field expression
func query(m *mapper.Map, exprs []string) (string, string, bool) {
	tokens := fields.SplitExpression(exprs...)
	if len(tokens) != 1 || !mapper.IsQuery(tokens[0]) {
		return "", "", false
	}
	text, ok := m.Query(tokens[0])
	return tokens[0], text, ok
}

// Render formats a result. A query result is returned as its text.
func (e *Engine) Render(result *Result, format string) (string, error) {
	if result == nil {
		return "", errors.NewRenderError("nothing to render", nil)
	}
	if result.IsQuery() {
		return result.Text + "\n", nil
	}
	return e.formatter.Render(format, result.Value, result.Order)
}

// StepKind names a pipeline operation
type StepKind string

const (
	StepSelect  StepKind = "select"
	StepFilter  StepKind = "filter"
	StepContext StepKind = "context"
	StepLoop    StepKind = "loop"
)

// Step is one operation of a pipeline
type Step struct {
	Kind  StepKind
	Exprs []string
	// Template is the endpoint template of a loop step
	Template string
}

// String returns the step as it reads on the command line
func (s Step) String() string {
	if s.Kind == StepLoop {
		return fmt.Sprintf("%s %v %s", s.Kind, s.Exprs, s.Template)
	}
	return fmt.Sprintf("%s %v", s.Kind, s.Exprs)
}

// Pipeline is a chain of steps and the format of its final result
type Pipeline struct {
	Steps  []Step
	Format string
}

// Run applies the steps in order. The documentation describes the input
// value only, so it is used by the first step; every later step maps the
// result of the step before it. A table or list of an input with no steps
// shows every first-level field, as an unfiltered filter would.
func (e *Engine) Run(ctx context.Context, value models.Value, doc *schema.Response, p Pipeline) (*Result, error) {
	steps := p.Steps
	if len(steps) == 0 {
		switch p.Format {
		case formatter.FormatTable, formatter.FormatList:
			steps = []Step{{Kind: StepFilter}}
		default:
			if !e.keepEnvelope {
				value = selector.Unwrap(value)
			}
			return &Result{Value: value}, nil
		}
	}

	var result *Result
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewSelectionError("pipeline cancelled", err)
		}
		e.logger.Debug("running step", "index", i, "step", step.String())

		var err error
		result, err = e.step(ctx, value, doc, step)
		if err != nil {
			return nil, err
		}
		if result.IsQuery() {
			return result, nil
		}
		value, doc = result.Value, nil
	}
	return result, nil
}

func (e *Engine) step(ctx context.Context, value models.Value, doc *schema.Response, step Step) (*Result, error) {
	switch step.Kind {
	case StepSelect:
		return e.Select(value, doc, step.Exprs...)
	case StepFilter:
		return e.Filter(value, doc, step.Exprs...)
	case StepContext:
		return e.Context(value, doc, step.Exprs...)
	case StepLoop:
		return e.Loop(ctx, value, doc, step.Template, step.Exprs...)
	default:
		return nil, errors.NewSelectionError(fmt.Sprintf("unknown step '%s'", step.Kind), nil)
	}
}

// Execute runs the pipeline and renders its result
func (e *Engine) Execute(ctx context.Context, value models.Value, doc *schema.Response, p Pipeline) (string, error) {
	result, err := e.Run(ctx, value, doc, p)
	if err != nil {
		return "", err
	}
	return e.Render(result, p.Format)
}
