package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/mcncl/jsonmeta/internal/config"
	"github.com/mcncl/jsonmeta/internal/engine"
	"github.com/mcncl/jsonmeta/internal/models"
	"github.com/mcncl/jsonmeta/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readOutput(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func compact(t *testing.T, v models.Value) string {
	t.Helper()
	text, err := parser.Encode(v, "")
	require.NoError(t, err)
	return text
}

func TestBuildSteps_CommandLineOrder(t *testing.T) {
	// Save original CLI state
	originalCLI := CLI
	defer func() { CLI = originalCLI }()

	CLI.Select = []string{"id,name", "name"}
	CLI.Filter = []string{"state=on"}
	CLI.Loop = []string{"id vms/{id}/snapshots"}
	args := []string{"-f", "state=on", "--select=id,name", "-T", "-l", "id vms/{id}/snapshots", "-s", "name"}

	steps, err := buildSteps(args)
	require.NoError(t, err)
	assert.Equal(t, []engine.Step{
		{Kind: engine.StepFilter, Exprs: []string{"state=on"}},
		{Kind: engine.StepSelect, Exprs: []string{"id,name"}},
		{Kind: engine.StepLoop, Exprs: []string{"id"}, Template: "vms/{id}/snapshots"},
		{Kind: engine.StepSelect, Exprs: []string{"name"}},
	}, steps)
}

func TestBuildSteps_AttachedShortValues(t *testing.T) {
	originalCLI := CLI
	defer func() { CLI = originalCLI }()

	tests := []struct {
		name     string
		args     []string
		selects  []string
		filters  []string
		expected []engine.Step
	}{
		{
			name:     "value attached to the flag",
			args:     []string{"-sname"},
			selects:  []string{"name"},
			expected: []engine.Step{{Kind: engine.StepSelect, Exprs: []string{"name"}}},
		},
		{
			name:     "after a switch",
			args:     []string{"-Tsname"},
			selects:  []string{"name"},
			expected: []engine.Step{{Kind: engine.StepSelect, Exprs: []string{"name"}}},
		},
		{
			name:     "switch run then a separate value",
			args:     []string{"-dTf", "state=on", "-sid"},
			selects:  []string{"id"},
			filters:  []string{"state=on"},
			expected: []engine.Step{{Kind: engine.StepFilter, Exprs: []string{"state=on"}}, {Kind: engine.StepSelect, Exprs: []string{"id"}}},
		},
		{
			name:     "values that look like flags are skipped",
			args:     []string{"-o", "-sout.txt", "--input", "-f", "-s", "name"},
			selects:  []string{"name"},
			expected: []engine.Step{{Kind: engine.StepSelect, Exprs: []string{"name"}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			CLI.Select = tt.selects
			CLI.Filter = tt.filters
			CLI.Context = nil
			CLI.Loop = nil

			steps, err := buildSteps(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, steps)
		})
	}
}

func TestBuildSteps_FollowsKongParse(t *testing.T) {
	originalCLI := CLI
	defer func() { CLI = originalCLI }()

	CLI.Select, CLI.Filter, CLI.Context, CLI.Loop = nil, nil, nil, nil
	args := []string{"-Tsname", "-f", "state=on", "-cdisks"}
	cli := kong.Must(&CLI, kong.Name("jsonmeta"))
	_, err := cli.Parse(args)
	require.NoError(t, err)

	steps, err := buildSteps(args)
	require.NoError(t, err)
	assert.Equal(t, []engine.Step{
		{Kind: engine.StepSelect, Exprs: []string{"name"}},
		{Kind: engine.StepFilter, Exprs: []string{"state=on"}},
		{Kind: engine.StepContext, Exprs: []string{"disks"}},
	}, steps)
	assert.True(t, CLI.Table)
}

func TestBuildSteps_NoOperations(t *testing.T) {
	originalCLI := CLI
	defer func() { CLI = originalCLI }()

	CLI.Select = nil
	steps, err := buildSteps([]string{"-i", "file.json", "-T"})
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestNewStep_LoopNeedsTemplate(t *testing.T) {
	_, err := newStep(engine.StepLoop, "id")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "loop needs fields and an endpoint template")

	step, err := newStep(engine.StepLoop, "id,name  get vms/{id}")
	require.NoError(t, err)
	assert.Equal(t, []string{"id,name"}, step.Exprs)
	assert.Equal(t, "get vms/{id}", step.Template)
}

func TestRun_FileToFile(t *testing.T) {
	originalCLI := CLI
	defer func() { CLI = originalCLI }()

	CLI.Input = writeFile(t, "input.json", `{"data":[{"id":"1","name":"web","state":"on"},{"id":"2","name":"db"}]}`)
	CLI.Output = filepath.Join(t.TempDir(), "out.txt")
	CLI.Endpoint = ""
	CLI.Select = []string{"name,state"}

	cfg := config.NewConfig()
	cfg.Output.Format = "table"
	err := run(context.Background(), &Context{Config: cfg, Args: []string{"-s", "name,state"}})
	require.NoError(t, err)

	expected := " name | state \n" +
		strings.Repeat("=", 14) + "\n" +
		" web  | on    \n" +
		" db   | N/E   \n" +
		"\n**Total amount of objects [2]\n"
	assert.Equal(t, expected, readOutput(t, CLI.Output))
}

func TestRun_EndpointAndLoop(t *testing.T) {
	originalCLI := CLI
	defer func() { CLI = originalCLI }()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/vms":
			fmt.Fprint(w, `{"data":[{"id":"1","name":"web"},{"id":"2","name":"db"}],"hasMore":false}`)
		case "/vms/1/snapshots":
			fmt.Fprint(w, `[{"snap":"a"}]`)
		case "/vms/2/snapshots":
			fmt.Fprint(w, `[{"snap":"b"}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	CLI.Input = ""
	CLI.Endpoint = "/vms"
	CLI.Output = filepath.Join(t.TempDir(), "out.json")
	CLI.Loop = []string{"id vms/{id}/snapshots"}

	cfg := config.NewConfig()
	cfg.Client.BaseURL = server.URL
	cfg.Client.Token = "secret"
	cfg.Loop.Workers = 2

	err := run(context.Background(), &Context{Config: cfg, Args: []string{"-e", "/vms", "-l", "id vms/{id}/snapshots"}})
	require.NoError(t, err)

	out, err := parser.ParseFile(CLI.Output)
	require.NoError(t, err)
	assert.Equal(t, `[{"snap":"a","loop_id":"1"},{"snap":"b","loop_id":"2"}]`, compact(t, out))
	assert.Contains(t, readOutput(t, CLI.Output), "\n  {\n")
}

func TestRun_EndpointWithSwagger(t *testing.T) {
	originalCLI := CLI
	defer func() { CLI = originalCLI }()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"id":"1"}]}`)
	}))
	defer server.Close()

	swagger := writeFile(t, "swagger.yaml", `
swagger: "2.0"
info: {title: test, version: "1"}
paths:
  /vms:
    get:
      responses:
        200:
          description: vms
          schema:
            type: object
            properties:
              data:
                type: array
                items:
                  type: object
                  properties:
                    id: {type: string}
                    name: {type: string}
`)

	CLI.Input = ""
	CLI.Endpoint = "get /vms"
	CLI.Output = filepath.Join(t.TempDir(), "out.txt")
	CLI.Select = []string{"?"}

	cfg := config.NewConfig()
	cfg.Client.BaseURL = server.URL
	cfg.Catalog.SwaggerFile = swagger

	err := run(context.Background(), &Context{Config: cfg, Args: []string{"-s", "?"}})
	require.NoError(t, err)
	assert.Equal(t, "[id]\n[name]\n", readOutput(t, CLI.Output))
}

func TestRun_EndpointWithoutBaseURL(t *testing.T) {
	originalCLI := CLI
	defer func() { CLI = originalCLI }()

	CLI.Input = ""
	CLI.Endpoint = "/vms"

	err := run(context.Background(), &Context{Config: config.NewConfig()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without a base URL")
}

func TestRun_ConflictingInputs(t *testing.T) {
	originalCLI := CLI
	defer func() { CLI = originalCLI }()

	CLI.Input = "/some/file.json"
	CLI.Endpoint = "/vms"

	err := run(context.Background(), &Context{Config: config.NewConfig()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot specify both --input and --endpoint")
}

func TestParseInput_FromFile(t *testing.T) {
	originalCLI := CLI
	defer func() { CLI = originalCLI }()

	CLI.Input = writeFile(t, "input.json", `{"name": "John", "age": 30}`)

	value, err := parseInput()
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age"}, value.Object().Keys())
}

func TestParseInput_FromStdin(t *testing.T) {
	// Save original CLI state and stdin
	originalCLI := CLI
	originalStdin := os.Stdin
	defer func() {
		CLI = originalCLI
		os.Stdin = originalStdin
	}()

	// Clear input file to force stdin reading
	CLI.Input = ""

	// Create a pipe to simulate stdin
	jsonData := `[{"item": "apple"}, {"item": "banana"}]`
	r, w, err := os.Pipe()
	require.NoError(t, err)

	// Write test data to pipe
	go func() {
		defer func() { _ = w.Close() }()
		_, _ = w.WriteString(jsonData)
	}()

	// Replace stdin
	os.Stdin = r
	defer func() { _ = r.Close() }()

	value, err := parseInput()
	require.NoError(t, err)
	assert.Equal(t, models.Array, value.Kind())
	assert.Len(t, value.Items(), 2)
}

func TestParseInput_EmptyFile(t *testing.T) {
	originalCLI := CLI
	defer func() { CLI = originalCLI }()

	CLI.Input = writeFile(t, "empty.json", "")

	_, err := parseInput()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestParseInput_InvalidJSON(t *testing.T) {
	originalCLI := CLI
	defer func() { CLI = originalCLI }()

	CLI.Input = writeFile(t, "invalid.json", `{"invalid": json}`)

	_, err := parseInput()
	assert.Error(t, err)
}

func TestParseInput_NonExistentFile(t *testing.T) {
	originalCLI := CLI
	defer func() { CLI = originalCLI }()

	CLI.Input = "/non/existent/file.json"

	_, err := parseInput()
	assert.Error(t, err)
}

func TestWriteOutput_ToFile(t *testing.T) {
	originalCLI := CLI
	defer func() { CLI = originalCLI }()

	CLI.Output = filepath.Join(t.TempDir(), "out.txt")

	err := writeOutput(" id \n====\n 1  \n")
	require.NoError(t, err)
	assert.Equal(t, " id \n====\n 1  \n", readOutput(t, CLI.Output))
}

func TestWriteOutput_FileError(t *testing.T) {
	originalCLI := CLI
	defer func() { CLI = originalCLI }()

	// Try to write to a directory that doesn't exist
	CLI.Output = "/non/existent/dir/output.txt"

	err := writeOutput("text")
	assert.Error(t, err)
}

func TestOutputFormat(t *testing.T) {
	originalCLI := CLI
	defer func() { CLI = originalCLI }()

	CLI.Format = "pretty"
	assert.Equal(t, "pretty", outputFormat())

	CLI.List = true
	assert.Equal(t, "list", outputFormat())

	CLI.Table = true
	assert.Equal(t, "table", outputFormat())
}
