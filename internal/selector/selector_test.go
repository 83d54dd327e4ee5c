package selector

import (
	"fmt"
	"strings"
	"testing"

	"github.com/mcncl/jsonmeta/internal/fields"
	"github.com/mcncl/jsonmeta/internal/mapper"
	"github.com/mcncl/jsonmeta/internal/models"
	"github.com/mcncl/jsonmeta/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, input string, mode Mode, exprs ...string) *Outcome {
	t.Helper()
	value, err := parser.ParseString(input)
	require.NoError(t, err)
	m, err := mapper.Build(value, nil)
	require.NoError(t, err)

	out, err := New(nil).Run(value, m, exprs, mode)
	require.NoError(t, err)
	return out
}

func encoded(t *testing.T, v models.Value) string {
	t.Helper()
	text, err := parser.Encode(v, "")
	require.NoError(t, err)
	return text
}

func TestSelect_EqualityFilterExcludesRecord(t *testing.T) {
	out := run(t, `[{"a":"x","b":1},{"a":"y","b":2}]`, Select, "a=x")
	assert.Equal(t, `[{"a":"x"}]`, encoded(t, out.Value))
	assert.Equal(t, []string{"a"}, out.Order)
}

func TestSelect_SubstringFilter(t *testing.T) {
	out := run(t, `[{"name":"foo-1"},{"name":"bar-2"}]`, Select, "name~foo")
	assert.Equal(t, `[{"name":"foo-1"}]`, encoded(t, out.Value))
}

func TestSelect_NegatedFilters(t *testing.T) {
	input := `[{"name":"foo-1","n":1},{"name":"bar-2","n":2},{"name":"foo-3","n":3}]`

	out := run(t, input, Select, "name!~foo")
	assert.Equal(t, `[{"name":"bar-2"}]`, encoded(t, out.Value))

	out = run(t, input, Select, "n!=2,name")
	assert.Equal(t, `[{"n":1,"name":"foo-1"},{"n":3,"name":"foo-3"}]`, encoded(t, out.Value))
}

func TestSelect_OutputOrderAndMissingFields(t *testing.T) {
	out := run(t, `[{"id":"1","name":"a"},{"id":"2"}]`, Select, "name,id,missing")
	assert.Equal(t, `[{"name":"a","id":"1"},{"id":"2"}]`, encoded(t, out.Value))
	assert.Equal(t, []string{"name", "id"}, out.Order)
}

func TestSelect_EmptySelectionsLeaveTheList(t *testing.T) {
	out := run(t, `[{"id":"1"},{"id":"2"}]`, Select, "missing")
	assert.Equal(t, `[]`, encoded(t, out.Value))
	assert.Empty(t, out.Order)

	out = run(t, `[{"id":"1","tags":["a"]},{"id":"2"}]`, Select, "tags")
	assert.Equal(t, `[{"tags":["a"]}]`, encoded(t, out.Value))

	// a single object record stays, even when empty
	out = run(t, `{"id":"1"}`, Select, "missing")
	assert.Equal(t, `{}`, encoded(t, out.Value))
}

func TestSelect_FilteredFieldNeverSeen(t *testing.T) {
	out := run(t, `[{"id":"1","state":"on"},{"id":"2"}]`, Select, "id,state=on")
	assert.Equal(t, `[{"id":"1","state":"on"}]`, encoded(t, out.Value))
}

func TestSelect_NestedPathsAndDuplicates(t *testing.T) {
	input := `[{"id":"1","host":{"id":"h1","name":"alpha"}},{"id":"2","host":{"id":"h2","name":"beta"}}]`
	out := run(t, input, Select, "id,[host][id],[host][name]=beta,id")
	assert.Equal(t, `[{"id":"2","host_id":"h2","host_name":"beta","id_2":"2"}]`, encoded(t, out.Value))
	assert.Equal(t, []string{"id", "host_id", "host_name", "id_2"}, out.Order)
}

func TestSelect_SingleObject(t *testing.T) {
	out := run(t, `{"id":"1","tags":["a","b"],"size":3}`, Select, "tags,size")
	assert.Equal(t, `{"tags":["a","b"],"size":3}`, encoded(t, out.Value))

	out = run(t, `{"id":"1"}`, Select, "id=2")
	assert.Equal(t, `{}`, encoded(t, out.Value))
}

func TestSelect_EmbeddedJSON(t *testing.T) {
	out := run(t, `[{"payload":"{\"inner\":{\"k\":\"v\"}}"}]`, Select, "[payload][inner][k],payload")
	assert.Equal(t, `[{"payload_inner_k":"v","payload":{"inner":{"k":"v"}}}]`, encoded(t, out.Value))
}

func TestSelect_TypeTokenIgnored(t *testing.T) {
	value, err := parser.ParseString(`[{"size":5.5},{"size":6}]`)
	require.NoError(t, err)

	set := fields.NewSet()
	set.Add(fields.Definition{
		OutputName: "size",
		Source:     mapper.Path{{Name: "size", Level: 1, Type: mapper.TypeInt}},
	})

	out, err := New(nil).Apply(value, set, Select)
	require.NoError(t, err)
	assert.Equal(t, `[{"size":5.5},{"size":6}]`, encoded(t, out.Value))
}

func TestFilter_WideProjection(t *testing.T) {
	input := `[{"id":"1","state":"on","host":{"name":"a"}},{"id":"2","state":"off","host":{"name":"b"}}]`

	out := run(t, input, Filter, "state=on")
	assert.Equal(t, []string{"host", "id", "state"}, out.Order)
	assert.Equal(t, `[{"host":{"name":"a"},"id":"1","state":"on"}]`, encoded(t, out.Value))

	out = run(t, input, Filter, "[host][name]=b")
	assert.Equal(t, []string{"host", "id", "state"}, out.Order)
	assert.Equal(t, `[{"host":{"name":"b"},"id":"2","state":"off"}]`, encoded(t, out.Value))
}

func TestFilter_NoExpressionSelectsEverythingMapped(t *testing.T) {
	input := `[{"id":"1","sub":{"k":"v"}},{"id":"2","extra":true}]`
	value, err := parser.ParseString(input)
	require.NoError(t, err)
	m, err := mapper.Build(value, nil)
	require.NoError(t, err)

	out, err := New(nil).Run(value, m, nil, Filter)
	require.NoError(t, err)

	listing, ok := m.Query("?MAP")
	require.True(t, ok)
	for _, name := range out.Order {
		assert.Contains(t, listing, "["+name+"]")
	}
	assert.Equal(t, []string{"extra", "id", "sub"}, out.Order)
	assert.Equal(t, `[{"id":"1","sub":{"k":"v"}},{"extra":true,"id":"2"}]`, encoded(t, out.Value))
}

func TestContext_FlattensListRecords(t *testing.T) {
	out := run(t, `[{"name":"a","disks":[{"gb":1},{"gb":2}]},{"name":"b","disks":[{"gb":3}]}]`, Context, "disks")
	assert.Equal(t, `[{"gb":1},{"gb":2},{"gb":3}]`, encoded(t, out.Value))
	assert.Equal(t, []string{"gb"}, out.Order)
	require.NotNil(t, out.Map)
	assert.Equal(t, "[gb#1#int]", out.Map.Full[0].String())
}

func TestContext_LiftsObjectValues(t *testing.T) {
	out := run(t, `{"host":{"name":"h","ip":"10.0.0.1"},"ids":["1","2"],"state":"on"}`, Context, "host,ids")
	assert.Equal(t, `[{"name":"h","ip":"10.0.0.1"},"1","2"]`, encoded(t, out.Value))
	assert.Equal(t, []string{"ip", "name"}, out.Order)
}

func TestUnwrap(t *testing.T) {
	value, err := parser.ParseString(`{"data":[{"id":"1"}],"hasMore":false}`)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"1"}]`, encoded(t, Unwrap(value)))

	plain, err := parser.ParseString(`[{"data":"x"}]`)
	require.NoError(t, err)
	assert.Equal(t, `[{"data":"x"}]`, encoded(t, Unwrap(plain)))
}

func TestApply_UnknownMode(t *testing.T) {
	_, err := New(nil).Apply(models.NullValue(), fields.NewSet(), Mode(42))
	assert.Error(t, err)
	assert.Equal(t, "unknown", Mode(42).String())
}

func BenchmarkSelect(b *testing.B) {
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < 500; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"id":"%d","name":"vm-%d","host":{"name":"h%d","cpus":%d},"tags":["a","b"]}`, i, i, i%7, i%16)
	}
	sb.WriteString("]")

	value, err := parser.ParseString(sb.String())
	if err != nil {
		b.Fatal(err)
	}
	m, err := mapper.Build(value, nil)
	if err != nil {
		b.Fatal(err)
	}
	engine := New(nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Run(value, m, []string{"id,[host][name]~h3,name"}, Select); err != nil {
			b.Fatal(err)
		}
	}
}
