// Package looper calls an endpoint template once per value selected from a
// JSON response and merges the answers into one list.
package looper

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mcncl/jsonmeta/internal/client"
	"github.com/mcncl/jsonmeta/internal/errors"
	"github.com/mcncl/jsonmeta/internal/fields"
	"github.com/mcncl/jsonmeta/internal/models"
	"github.com/mcncl/jsonmeta/internal/parser"
	"github.com/mcncl/jsonmeta/internal/selector"
	"golang.org/x/time/rate"
)

// Invoker performs one API call per expanded endpoint
type Invoker = client.Invoker

// ResultTextKey holds a response body that is not JSON
const ResultTextKey = "result_text"

// AnnotationPrefix is prepended to the output names copied into each result
const AnnotationPrefix = "loop_"

// Options configures a Looper
type Options struct {
	// Workers bounds the calls in flight; 0 or 1 calls sequentially
	Workers int
	// Limiter, when set, paces the calls
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

// Looper runs loops
type Looper struct {
	selector *selector.Engine
	workers  int
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// New creates a Looper
func New(opts Options) *Looper {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Looper{
		selector: selector.New(logger),
		workers:  workers,
		limiter:  opts.Limiter,
		logger:   logger.With("component", "looper"),
	}
}

// call is one expanded endpoint and the annotations its results receive
type call struct {
	endpoint    string
	annotations *models.ObjectMap
}

// Loop selects set from value and, for every record, calls tmpl once per
// index of the placeholder values. Each placeholder key names an output
// field of set. Results come back as one list in input order, every result
// object annotated with loop_<name> for each output field of its record.
func (l *Looper) Loop(ctx context.Context, value models.Value, set *fields.Set, tmpl *Template, invoker Invoker) (models.Value, error) {
	if invoker == nil {
		return models.Value{}, errors.NewLoopError("cannot loop without an API invoker", errors.ErrNoInvoker)
	}

	selected, err := l.selector.Apply(value, set, selector.Select)
	if err != nil {
		return models.Value{}, err
	}

	records := selected.Value.Items()
	if selected.Value.Kind() == models.Object {
		records = []models.Value{selected.Value}
	}

	calls := make([]call, 0)
	for _, record := range records {
		recordCalls, err := plan(record.Object(), set.Order(), tmpl)
		if err != nil {
			return models.Value{}, err
		}
		calls = append(calls, recordCalls...)
	}
	l.logger.Debug("loop planned", "template", tmpl.Raw, "records", len(records), "calls", len(calls))

	results, err := l.run(ctx, calls, invoker)
	if err != nil {
		return models.Value{}, err
	}

	flat := make([]models.Value, 0, len(results))
	for _, items := range results {
		flat = append(flat, items...)
	}
	return models.ArrayValue(flat...), nil
}

// plan expands the template for one selected record
func plan(record *models.ObjectMap, order []string, tmpl *Template) ([]call, error) {
	if record == nil || len(tmpl.Keys) == 0 {
		return nil, nil
	}

	candidates := make(map[string][]models.Value, len(tmpl.Keys))
	n := -1
	for _, key := range tmpl.Keys {
		values := valuesOf(record, key)
		if len(values) == 0 {
			return nil, nil
		}
		if n >= 0 && len(values) != n {
			return nil, errors.NewLoopError(
				fmt.Sprintf("placeholder '%s' has %d values, expected %d", key, len(values), n),
				errors.ErrLoopMisaligned,
			)
		}
		n = len(values)
		candidates[key] = values
	}

	calls := make([]call, 0, n)
	for i := 0; i < n; i++ {
		substitutions := make(map[string]string, len(candidates))
		for key, values := range candidates {
			substitutions[key] = values[i].Text()
		}

		annotations := models.NewObject()
		for _, name := range order {
			values := valuesOf(record, name)
			switch {
			case len(values) == 1:
				annotations.Set(AnnotationPrefix+name, values[0])
			case i < len(values):
				annotations.Set(AnnotationPrefix+name, values[i])
			}
		}

		calls = append(calls, call{endpoint: tmpl.Expand(substitutions), annotations: annotations})
	}
	return calls, nil
}

// valuesOf returns the candidate values of a field: the elements of a
// list, or the value itself. A missing field has none.
func valuesOf(record *models.ObjectMap, name string) []models.Value {
	v, ok := record.Get(name)
	if !ok {
		return nil
	}
	if v.Kind() == models.Array {
		return v.Items()
	}
	return []models.Value{v}
}

// run performs the calls and returns their results in call order. With one
// worker the calls run one after another in input order; a larger pool
// hands out calls in input order too. The first failure stops the loop:
// no call starts after it.
func (l *Looper) run(ctx context.Context, calls []call, invoker Invoker) ([][]models.Value, error) {
	results := make([][]models.Value, len(calls))
	if l.workers <= 1 || len(calls) <= 1 {
		for i, c := range calls {
			items, err := l.call(ctx, c, invoker)
			if err != nil {
				return nil, loopFailure(err)
			}
			results[i] = items
		}
		return results, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	indexes := make(chan int)
	for w := 0; w < min(l.workers, len(calls)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				items, err := l.call(ctx, calls[i], invoker)
				if err != nil {
					once.Do(func() {
						firstErr = err
						cancel()
					})
					continue
				}
				results[i] = items
			}
		}()
	}

feed:
	for i := range calls {
		select {
		case indexes <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(indexes)
	wg.Wait()

	if firstErr != nil {
		return nil, loopFailure(firstErr)
	}
	// cancel only runs with firstErr set, so this is the caller's context
	if err := ctx.Err(); err != nil {
		return nil, loopFailure(err)
	}
	return results, nil
}

// call waits for the limiter and performs one call unless ctx is done
func (l *Looper) call(ctx context.Context, c call, invoker Invoker) ([]models.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return l.invoke(ctx, c, invoker)
}

func loopFailure(err error) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}
	return errors.NewLoopError("loop cancelled", err)
}

// invoke performs one call and annotates its results
func (l *Looper) invoke(ctx context.Context, c call, invoker Invoker) ([]models.Value, error) {
	resp, err := invoker.Invoke(ctx, c.endpoint)
	if err != nil {
		return nil, errors.NewLoopError(fmt.Sprintf("call to '%s' failed", c.endpoint), err)
	}

	body, err := parser.ParseString(resp.Body)
	if err != nil {
		text := models.NewObject()
		text.Set(ResultTextKey, models.StringValue(resp.Body))
		body = models.ObjectValue(text)
	}

	var items []models.Value
	if body.Kind() == models.Array {
		items = body.Items()
	} else {
		items = []models.Value{body}
	}

	out := make([]models.Value, len(items))
	for i, item := range items {
		out[i] = annotate(item, c.annotations)
	}
	return out, nil
}

// annotate copies the annotations into an object result. The response
// object is cloned, not modified.
func annotate(item models.Value, annotations *models.ObjectMap) models.Value {
	obj := item.Object()
	if obj == nil {
		return item
	}
	annotated := obj.Clone()
	for _, key := range annotations.Keys() {
		v, _ := annotations.Get(key)
		annotated.Set(key, v)
	}
	return models.ObjectValue(annotated)
}
