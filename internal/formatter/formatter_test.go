package formatter

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/mcncl/jsonmeta/internal/errors"
	"github.com/mcncl/jsonmeta/internal/models"
	"github.com/mcncl/jsonmeta/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, text string) models.Value {
	t.Helper()
	v, err := parser.ParseString(text)
	require.NoError(t, err)
	return v
}

func TestTableFromColumns(t *testing.T) {
	f := NewFormatter(DefaultOptions())
	out, err := f.TableFromColumns([]string{"id", "name"}, [][]string{{"1", "2"}, {"a", "b"}})
	require.NoError(t, err)

	expected := " id | name \n" +
		"===========\n" +
		" 1  | a    \n" +
		" 2  | b    \n" +
		"\n**Total amount of objects [2]\n"
	assert.Equal(t, expected, out)
}

func TestTableFromColumns_SeparatorMatchesRow(t *testing.T) {
	f := NewFormatter(DefaultOptions())
	out, err := f.TableFromColumns(
		[]string{"a", "longer_header"},
		[][]string{{"some long cell", "x"}, {"1", "2"}},
	)
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Len(t, lines[1], len(lines[2]))
	assert.Len(t, lines[0], len(lines[2]))
}

func TestTableFromColumns_Errors(t *testing.T) {
	f := NewFormatter(DefaultOptions())

	_, err := f.TableFromColumns([]string{"a", "b"}, [][]string{{"1"}})
	assert.Error(t, err)

	_, err = f.TableFromColumns([]string{"a", "b"}, [][]string{{"1"}, {"1", "2"}})
	assert.Error(t, err)

	_, err = f.TableFromColumns([]string{"a"}, [][]string{{}})
	assert.True(t, stderrors.Is(err, errors.ErrEmptyTable))
}

func TestTable(t *testing.T) {
	f := NewFormatter(DefaultOptions())
	v := mustParse(t, `[{"id":1,"name":"a"},{"id":22}]`)

	out, err := f.Table(v, []string{"id", "name"})
	require.NoError(t, err)

	expected := " id | name \n" +
		"===========\n" +
		" 1  | a    \n" +
		" 22 | N/E  \n" +
		"\n**Total amount of objects [2]\n"
	assert.Equal(t, expected, out)
}

func TestTable_DefaultOrder(t *testing.T) {
	f := NewFormatter(DefaultOptions())
	out, err := f.Table(mustParse(t, `{"b":"2","a":"1"}`), nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, " a | b \n"))
}

func TestTable_ScalarRecords(t *testing.T) {
	f := NewFormatter(DefaultOptions())
	out, err := f.Table(mustParse(t, `["x","y"]`), nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, " value \n"))
	assert.Contains(t, out, " x     \n")
}

func TestTable_Empty(t *testing.T) {
	f := NewFormatter(DefaultOptions())

	for _, text := range []string{`[]`, `null`} {
		_, err := f.Table(mustParse(t, text), []string{"id"})
		require.Error(t, err)
		assert.True(t, stderrors.Is(err, errors.ErrEmptyTable))
		assert.True(t, stderrors.Is(err, &errors.AppError{Type: errors.ErrorTypeRender}))
	}
}

func TestTable_HeaderCase(t *testing.T) {
	tests := []struct {
		headerCase string
		want       string
	}{
		{CaseNone, "vmName"},
		{CaseUpper, "VM_NAME"},
		{CaseSnake, "vm_name"},
		{CaseKebab, "vm-name"},
		{CaseCamel, "vmName"},
	}

	for _, tt := range tests {
		t.Run(tt.headerCase, func(t *testing.T) {
			opts := DefaultOptions()
			opts.HeaderCase = tt.headerCase
			out, err := NewFormatter(opts).Table(mustParse(t, `{"vmName":"web"}`), []string{"vmName"})
			require.NoError(t, err)
			assert.Contains(t, strings.SplitN(out, "\n", 2)[0], " "+tt.want)
		})
	}
}

func TestList(t *testing.T) {
	f := NewFormatter(DefaultOptions())
	out, err := f.List(mustParse(t, `[{"id":"1","name":"a"},{"id":"2"}]`))
	require.NoError(t, err)

	expected := "\n" +
		" key  | value \n" +
		"==============\n" +
		" id   | 1     \n" +
		" name | a     \n" +
		"\n**Total amount of objects [2]\n" +
		"\n" +
		" key | value \n" +
		"=============\n" +
		" id  | 2     \n" +
		"\n**Total amount of objects [1]\n"
	assert.Equal(t, expected, out)
}

func TestPrettyPrint(t *testing.T) {
	f := NewFormatter(DefaultOptions())
	out := f.PrettyPrint(mustParse(t, `{"a":1,"b":{"c":"x"},"l":[1,{"d":2}]}`))

	expected := "a: 1\n" +
		"b:\n" +
		"  c: x\n" +
		"l:\n" +
		"  1\n" +
		"    d: 2\n"
	assert.Equal(t, expected, out)
}

func TestRender(t *testing.T) {
	f := NewFormatter(DefaultOptions())
	v := mustParse(t, `{"id":"1"}`)

	out, err := f.Render(FormatJSON, v, nil)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"id\": \"1\"\n}\n", out)

	out, err = f.Render(FormatTable, v, []string{"id"})
	require.NoError(t, err)
	assert.Contains(t, out, "**Total amount of objects [1]")

	out, err = f.Render(FormatPretty, v, nil)
	require.NoError(t, err)
	assert.Equal(t, "id: 1\n", out)

	_, err = f.Render("xml", v, nil)
	assert.True(t, stderrors.Is(err, errors.ErrUnknownFormat))
}

func TestValidHeaderCase(t *testing.T) {
	assert.True(t, ValidHeaderCase(CaseKebab))
	assert.True(t, ValidHeaderCase(""))
	assert.False(t, ValidHeaderCase("title"))
}
