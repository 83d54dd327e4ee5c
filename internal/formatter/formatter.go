package formatter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/iancoleman/strcase"
	"github.com/mcncl/jsonmeta/internal/errors"
	"github.com/mcncl/jsonmeta/internal/models"
	"github.com/mcncl/jsonmeta/internal/parser"
)

// Output formats
const (
	FormatJSON   = "json"
	FormatTable  = "table"
	FormatList   = "list"
	FormatPretty = "pretty"
)

// Header cases
const (
	CaseNone  = "none"
	CaseUpper = "upper"
	CaseSnake = "snake"
	CaseCamel = "camel"
	CaseKebab = "kebab"
)

// ScalarHeader names the column of records that are not objects
const ScalarHeader = "value"

// Options controls how tables and lists are drawn
type Options struct {
	Summary      string
	Missing      string
	RowDivision  string
	LineDivision string
	HeaderCase   string
	Color        bool
	Indent       string
}

// DefaultOptions returns the standard table layout
func DefaultOptions() Options {
	return Options{
		Summary:      "Total amount of objects",
		Missing:      "N/E",
		RowDivision:  "|",
		LineDivision: "=",
		HeaderCase:   CaseNone,
		Indent:       "  ",
	}
}

// ValidHeaderCase reports whether name is a known header case
func ValidHeaderCase(name string) bool {
	switch name {
	case "", CaseNone, CaseUpper, CaseSnake, CaseCamel, CaseKebab:
		return true
	}
	return false
}

// Formatter renders selection results as text
type Formatter struct {
	opts   Options
	header lipgloss.Style
}

// NewFormatter creates a new Formatter instance
func NewFormatter(opts Options) *Formatter {
	if opts.LineDivision == "" {
		opts.LineDivision = "="
	}
	if opts.Indent == "" {
		opts.Indent = "  "
	}
	return &Formatter{
		opts:   opts,
		header: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7aa2f7")),
	}
}

// Render formats v in the named format. order is the column order used by tables.
func (f *Formatter) Render(format string, v models.Value, order []string) (string, error) {
	switch format {
	case "", FormatJSON:
		return f.JSON(v)
	case FormatTable:
		return f.Table(v, order)
	case FormatList:
		return f.List(v)
	case FormatPretty:
		return f.PrettyPrint(v), nil
	default:
		return "", errors.NewRenderError(fmt.Sprintf("unknown output format '%s'", format), errors.ErrUnknownFormat)
	}
}

// JSON renders v as indented JSON text
func (f *Formatter) JSON(v models.Value) (string, error) {
	text, err := parser.Encode(v, f.opts.Indent)
	if err != nil {
		return "", err
	}
	return text + "\n", nil
}

// Table renders one row per record and one column per name in order.
// Without an order the columns are the sorted keys of the first record.
func (f *Formatter) Table(v models.Value, order []string) (string, error) {
	records := recordsOf(v)
	if len(records) == 0 {
		return "", errors.NewRenderError("failed to create table", errors.ErrEmptyTable)
	}

	headers := order
	if len(headers) == 0 {
		headers = keysOf(records[0])
	}

	columns := make([][]string, len(headers))
	for i, name := range headers {
		column := make([]string, len(records))
		for j, record := range records {
			if value, ok := record.Get(name); ok {
				column[j] = value.Text()
			} else {
				column[j] = f.opts.Missing
			}
		}
		columns[i] = column
	}
	return f.TableFromColumns(headers, columns)
}

// List renders each record as a key/value table, records separated by a blank line
func (f *Formatter) List(v models.Value) (string, error) {
	records := recordsOf(v)
	if len(records) == 0 {
		return "", errors.NewRenderError("failed to create list", errors.ErrEmptyTable)
	}

	var sb strings.Builder
	for _, record := range records {
		keys := record.Keys()
		values := make([]string, len(keys))
		for i, key := range keys {
			value, _ := record.Get(key)
			values[i] = value.Text()
		}
		table, err := f.TableFromColumns([]string{"key", "value"}, [][]string{keys, values})
		if err != nil {
			return "", err
		}
		sb.WriteString("\n")
		sb.WriteString(table)
	}
	return sb.String(), nil
}

// TableFromColumns draws a table from header-major data: columns[i] holds
// the cells under headers[i]. Every cell is padded to its column width
// with one space on each side.
func (f *Formatter) TableFromColumns(headers []string, columns [][]string) (string, error) {
	if len(headers) != len(columns) {
		return "", errors.NewRenderError(
			fmt.Sprintf("table has %d headers but %d columns", len(headers), len(columns)), nil)
	}
	if len(columns) == 0 || len(columns[0]) == 0 {
		return "", errors.NewRenderError("failed to create table", errors.ErrEmptyTable)
	}
	rows := len(columns[0])
	for i, column := range columns {
		if len(column) != rows {
			return "", errors.NewRenderError(
				fmt.Sprintf("column '%s' has %d cells, expected %d", headers[i], len(column), rows), nil)
		}
	}

	display := make([]string, len(headers))
	widths := make([]int, len(headers))
	for i, header := range headers {
		display[i] = f.headerText(header)
		widths[i] = lipgloss.Width(display[i])
		for _, cell := range columns[i] {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	headerCells := make([]string, len(headers))
	for i, text := range display {
		cell := pad(text, widths[i])
		if f.opts.Color {
			cell = f.header.Render(cell)
		}
		headerCells[i] = cell
	}

	lines := make([]string, rows)
	for r := 0; r < rows; r++ {
		cells := make([]string, len(columns))
		for i, column := range columns {
			cells[i] = pad(column[r], widths[i])
		}
		lines[r] = strings.Join(cells, f.opts.RowDivision)
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(headerCells, f.opts.RowDivision))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat(f.opts.LineDivision, lipgloss.Width(lines[0])))
	sb.WriteString("\n")
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	if f.opts.Summary != "" {
		fmt.Fprintf(&sb, "\n**%s [%d]\n", f.opts.Summary, rows)
	}
	return sb.String(), nil
}

// PrettyPrint renders v as an indented outline: containers under a
// "key:" header, scalars as "key: value", list elements without a header.
func (f *Formatter) PrettyPrint(v models.Value) string {
	lines := make([]string, 0)
	f.outline(v, -1, &lines)
	return strings.Join(lines, "\n") + "\n"
}

func (f *Formatter) outline(v models.Value, depth int, lines *[]string) {
	switch v.Kind() {
	case models.Object:
		obj := v.Object()
		for _, key := range obj.Keys() {
			child, _ := obj.Get(key)
			prefix := indent(f.opts.Indent, depth+1)
			if child.IsContainer() {
				*lines = append(*lines, prefix+key+":")
				f.outline(child, depth+1, lines)
			} else {
				*lines = append(*lines, prefix+key+": "+child.Text())
			}
		}
	case models.Array:
		for _, item := range v.Items() {
			if item.IsContainer() {
				f.outline(item, depth+1, lines)
			} else {
				*lines = append(*lines, indent(f.opts.Indent, depth+1)+item.Text())
			}
		}
	default:
		*lines = append(*lines, indent(f.opts.Indent, depth+1)+v.Text())
	}
}

func indent(unit string, depth int) string {
	if depth <= 0 {
		return ""
	}
	return strings.Repeat(unit, depth)
}

func (f *Formatter) headerText(name string) string {
	switch f.opts.HeaderCase {
	case CaseUpper:
		return strcase.ToScreamingSnake(name)
	case CaseSnake:
		return strcase.ToSnake(name)
	case CaseCamel:
		return strcase.ToLowerCamel(name)
	case CaseKebab:
		return strcase.ToKebab(name)
	default:
		return name
	}
}

func pad(text string, width int) string {
	return " " + text + strings.Repeat(" ", width-lipgloss.Width(text)) + " "
}

// recordsOf returns the records of a result: the elements of an array or
// the value itself. Records that are not objects are wrapped under ScalarHeader.
func recordsOf(v models.Value) []*models.ObjectMap {
	var items []models.Value
	switch v.Kind() {
	case models.Array:
		items = v.Items()
	case models.Null:
		return nil
	default:
		items = []models.Value{v}
	}

	records := make([]*models.ObjectMap, 0, len(items))
	for _, item := range items {
		if obj := item.Object(); obj != nil {
			records = append(records, obj)
			continue
		}
		wrapped := models.NewObject()
		wrapped.Set(ScalarHeader, item)
		records = append(records, wrapped)
	}
	return records
}

func keysOf(record *models.ObjectMap) []string {
	keys := make([]string, len(record.Keys()))
	copy(keys, record.Keys())
	sort.Strings(keys)
	return keys
}
