package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/mcncl/jsonmeta/internal/catalog"
	"github.com/mcncl/jsonmeta/internal/client"
	"github.com/mcncl/jsonmeta/internal/config"
	"github.com/mcncl/jsonmeta/internal/engine"
	"github.com/mcncl/jsonmeta/internal/errors"
	"github.com/mcncl/jsonmeta/internal/formatter"
	"github.com/mcncl/jsonmeta/internal/looper"
	"github.com/mcncl/jsonmeta/internal/models"
	"github.com/mcncl/jsonmeta/internal/parser"
	"github.com/mcncl/jsonmeta/internal/schema"
)

// CLI defines the command-line interface
var CLI struct {
	Input    string `help:"Path to input JSON file. If not specified, reads from stdin." short:"i" type:"path"`
	Endpoint string `help:"API endpoint to call for input, optionally prefixed by a method ('get /vms')." short:"e"`
	Output   string `help:"Path to output file. If not specified, writes to stdout." short:"o" type:"path"`
	Schema   string `help:"Response documentation file (JSON or YAML) describing the input." type:"path"`

	Select  []string `help:"Keep the listed fields ('name,state=on'). Use '?' to list available fields." short:"s" sep:"none"`
	Filter  []string `help:"Keep records passing the filters, with all their first-level fields." short:"f" sep:"none"`
	Context []string `help:"Select fields and lift their values to the top level." short:"c" sep:"none"`
	Loop    []string `help:"Call an endpoint template per selected value: 'FIELDS TEMPLATE'." short:"l" sep:"none"`

	Format     string `help:"Output format (json, table, list, pretty)." short:"F"`
	Table      bool   `help:"Shortcut for --format=table." short:"T"`
	List       bool   `help:"Shortcut for --format=list." short:"L"`
	Pretty     bool   `help:"Shortcut for --format=pretty." short:"P"`
	HeaderCase string `help:"Table header case (none, upper, snake, camel, kebab)."`
	Color      bool   `help:"Color table headers."`
	KeepData   bool   `help:"Do not unwrap a top-level 'data' member."`

	BaseURL string `help:"Base URL of the API." env:"JSONMETA_BASE_URL"`
	Token   string `help:"Bearer token sent with API calls." env:"JSONMETA_TOKEN"`
	Swagger string `help:"Swagger document of the API, used to map documented responses." type:"path"`
	Workers int    `help:"Parallel calls made by loops."`

	Config      string `help:"Path to config file (.jsonmeta.yml). Searched upward from the working directory when not set." type:"path"`
	Debug       bool   `help:"Enable debug logging." short:"d"`
	Version     bool   `help:"Show version information." short:"v"`
	Interactive bool   `help:"Run in interactive mode, allowing direct JSON input with Ctrl+D to process." short:"I"`
}

// Context holds the runtime context
type Context struct {
	Config *config.Config
	Logger *slog.Logger
	// Args are the raw command-line arguments, used to order the operations
	Args []string
}

// Version information
const (
	Version = "0.1.0"
)

func main() {
	// Parse CLI arguments with Kong
	parser := kong.Must(&CLI,
		kong.Name("jsonmeta"),
		kong.Description("Select, filter and reshape JSON API responses"),
		kong.UsageOnError(),
	)

	if _, err := parser.Parse(os.Args[1:]); err != nil {
		// If there's an error parsing arguments, the usage will already be shown by kong.UsageOnError()
		os.Exit(1)
	}

	// Show version and exit if requested
	if CLI.Version {
		fmt.Printf("jsonmeta version %s\n", Version)
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", errors.UserFriendlyError(err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = run(ctx, &Context{Config: cfg, Logger: logger, Args: os.Args[1:]})
	if err != nil {
		// Use our custom error handling to provide user-friendly error messages
		fmt.Fprintf(os.Stderr, "%s\n", errors.UserFriendlyError(err))
		logger.Debug("command failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig merges the config file with the command-line flags
func loadConfig() (*config.Config, error) {
	path := CLI.Config
	if path == "" {
		path = config.FindConfigFile()
	}
	return config.LoadConfigWithCLI(path, config.CLIOverrides{
		Format:      outputFormat(),
		HeaderCase:  CLI.HeaderCase,
		BaseURL:     CLI.BaseURL,
		Token:       CLI.Token,
		SwaggerFile: CLI.Swagger,
		Workers:     CLI.Workers,
		Color:       CLI.Color,
		KeepData:    CLI.KeepData,
		Debug:       CLI.Debug,
	})
}

// outputFormat returns the format requested on the command line, if any
func outputFormat() string {
	switch {
	case CLI.Table:
		return formatter.FormatTable
	case CLI.List:
		return formatter.FormatList
	case CLI.Pretty:
		return formatter.FormatPretty
	default:
		return CLI.Format
	}
}

// run executes the main program logic
func run(ctx context.Context, rc *Context) error {
	cfg := rc.Config
	logger := rc.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// 1. Collaborators: the API client and the documentation catalog
	var invoker looper.Invoker
	if cfg.Client.BaseURL != "" {
		c, err := client.New(cfg.ClientOptions(logger))
		if err != nil {
			return err
		}
		invoker = c
	}

	var schemas engine.SchemaProvider
	if cfg.Catalog.SwaggerFile != "" {
		cat, err := catalog.Load(cfg.Catalog.SwaggerFile, logger)
		if err != nil {
			return err
		}
		schemas = cat
	}

	eng := engine.New(engine.Options{
		Invoker:      invoker,
		Looper:       looper.New(cfg.LooperOptions(logger)),
		Formatter:    formatter.NewFormatter(cfg.FormatterOptions()),
		Schemas:      schemas,
		KeepEnvelope: !cfg.Selection.UnwrapData,
		Logger:       logger,
	})

	// 2. Operations in command-line order
	steps, err := buildSteps(rc.Args)
	if err != nil {
		return err
	}

	// 3. Input and its documentation
	value, doc, err := readInput(ctx, eng, invoker)
	if err != nil {
		return err
	}

	// 4. Run and render
	out, err := eng.Execute(ctx, value, doc, engine.Pipeline{Steps: steps, Format: cfg.Output.Format})
	if err != nil {
		return err
	}

	// 5. Output the result
	return writeOutput(out)
}

// readInput loads the JSON to work on and, when available, the
// documentation describing it
func readInput(ctx context.Context, eng *engine.Engine, invoker looper.Invoker) (models.Value, *schema.Response, error) {
	if CLI.Input != "" && CLI.Endpoint != "" {
		return models.Value{}, nil, errors.NewInputError("cannot specify both --input and --endpoint", errors.ErrInvalidFilePath)
	}

	var doc *schema.Response
	if CLI.Schema != "" {
		d, err := schema.ParseFile(CLI.Schema)
		if err != nil {
			return models.Value{}, nil, errors.NewCatalogError(fmt.Sprintf("failed to load schema '%s'", CLI.Schema), err)
		}
		doc = d
	}

	if CLI.Endpoint != "" {
		if invoker == nil {
			return models.Value{}, nil, errors.NewRequestError("cannot call an endpoint without a base URL", errors.ErrNoInvoker)
		}
		resp, err := invoker.Invoke(ctx, CLI.Endpoint)
		if err != nil {
			return models.Value{}, nil, err
		}
		value, err := parser.ParseString(resp.Body)
		if err != nil {
			return models.Value{}, nil, err
		}
		if doc == nil {
			method, path := client.SplitMethod(CLI.Endpoint)
			if doc, err = eng.Describe(path, method); err != nil {
				return models.Value{}, nil, err
			}
		}
		return value, doc, nil
	}

	value, err := parseInput()
	return value, doc, err
}

// parseInput reads JSON from file or stdin
func parseInput() (models.Value, error) {
	if CLI.Input != "" {
		// Parse from file
		return parser.ParseFile(CLI.Input)
	}

	// Check if stdin has data
	stdinInfo, err := os.Stdin.Stat()
	if err != nil {
		return models.Value{}, errors.NewInputError("failed to access stdin", err)
	}

	// Interactive mode or piped input
	if (stdinInfo.Mode() & os.ModeCharDevice) != 0 {
		// Terminal is interactive (not piped)
		if CLI.Interactive {
			// Interactive mode
			return readInteractiveInput()
		}
		// No data provided on stdin and not in interactive mode
		return models.Value{}, errors.NewInputError("no input provided", errors.ErrNoInput)
	}

	// Read from stdin (piped input)
	jsonData, err := io.ReadAll(os.Stdin)
	if err != nil {
		return models.Value{}, errors.NewInputError("failed to read from stdin", err)
	}

	if len(jsonData) == 0 {
		return models.Value{}, errors.NewInputError("empty input received from stdin", errors.ErrEmptyInput)
	}

	return parser.ParseBytes(jsonData)
}

// stepFlags maps every spelling of an operation flag to its step
var stepFlags = map[string]engine.StepKind{
	"-s": engine.StepSelect, "--select": engine.StepSelect,
	"-f": engine.StepFilter, "--filter": engine.StepFilter,
	"-c": engine.StepContext, "--context": engine.StepContext,
	"-l": engine.StepLoop, "--loop": engine.StepLoop,
}

// shortSteps are the operation flags by short name
var shortSteps = map[byte]engine.StepKind{
	's': engine.StepSelect,
	'f': engine.StepFilter,
	'c': engine.StepContext,
	'l': engine.StepLoop,
}

// shortSwitches are the short flags that take no value, so kong lets
// another short flag follow them in the same argument ("-Tsname")
const shortSwitches = "TLPdvI"

// shortValues are the other short flags that take a value
const shortValues = "ieoF"

// longValues are the long flags that take a value and are not operations
var longValues = map[string]bool{
	"--input": true, "--endpoint": true, "--output": true, "--schema": true,
	"--format": true, "--header-case": true, "--base-url": true, "--token": true,
	"--swagger": true, "--workers": true, "--config": true,
}

// scanFlag classifies one raw argument. kind is set for an operation flag;
// takesNext reports whether the flag's value is the following argument.
func scanFlag(arg string) (kind engine.StepKind, ok, takesNext bool) {
	if strings.HasPrefix(arg, "--") {
		name, _, attached := strings.Cut(arg, "=")
		if kind, ok := stepFlags[name]; ok {
			return kind, true, !attached
		}
		return "", false, longValues[name] && !attached
	}
	if len(arg) < 2 || arg[0] != '-' {
		return "", false, false
	}
	for i := 1; i < len(arg); i++ {
		last := i == len(arg)-1
		if kind, ok := shortSteps[arg[i]]; ok {
			return kind, true, last
		}
		if strings.IndexByte(shortValues, arg[i]) >= 0 {
			return "", false, last
		}
		if strings.IndexByte(shortSwitches, arg[i]) < 0 {
			return "", false, false
		}
	}
	return "", false, false
}

// buildSteps reads the operation flags in the order they were given.
// kong collects each repeated flag into its own slice, so the relative
// order of different flags comes from the raw arguments. Short flags may
// carry their value ("-sname") or follow switches ("-Tsname").
func buildSteps(args []string) ([]engine.Step, error) {
	values := map[engine.StepKind][]string{
		engine.StepSelect:  CLI.Select,
		engine.StepFilter:  CLI.Filter,
		engine.StepContext: CLI.Context,
		engine.StepLoop:    CLI.Loop,
	}
	next := make(map[engine.StepKind]int)

	steps := make([]engine.Step, 0)
	for i := 0; i < len(args); i++ {
		if args[i] == "--" {
			break
		}
		kind, ok, takesNext := scanFlag(args[i])
		if takesNext {
			i++
		}
		if !ok {
			continue
		}
		n := next[kind]
		if n >= len(values[kind]) {
			continue
		}
		next[kind] = n + 1

		step, err := newStep(kind, values[kind][n])
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func newStep(kind engine.StepKind, value string) (engine.Step, error) {
	if kind != engine.StepLoop {
		return engine.Step{Kind: kind, Exprs: []string{value}}, nil
	}
	parts := strings.Fields(value)
	if len(parts) < 2 {
		return engine.Step{}, errors.NewInputError(
			fmt.Sprintf("loop needs fields and an endpoint template, got '%s'", value), nil)
	}
	return engine.Step{
		Kind:     engine.StepLoop,
		Exprs:    []string{parts[0]},
		Template: strings.Join(parts[1:], " "),
	}, nil
}

// writeOutput writes the rendered result to file or stdout
func writeOutput(text string) error {
	if CLI.Output != "" {
		// Write to file
		err := os.WriteFile(CLI.Output, []byte(text), 0o644)
		if err != nil {
			return errors.NewOutputError(fmt.Sprintf("failed to write to file '%s'", CLI.Output), err)
		}
		fmt.Fprintf(os.Stderr, "Output written to %s\n", CLI.Output)
		return nil
	}

	// Write to stdout
	_, err := fmt.Print(text)
	if err != nil {
		return errors.NewOutputError("failed to write to stdout", err)
	}
	return nil
}

// readInteractiveInput provides an interactive mode for users to paste JSON
// and signal completion with Ctrl+D (EOF)
func readInteractiveInput() (models.Value, error) {
	fmt.Fprintln(os.Stderr, "jsonmeta Interactive Mode")
	fmt.Fprintln(os.Stderr, "Paste your JSON below and press Ctrl+D (or Ctrl+Z on Windows) when done:")

	// Read all input until EOF (Ctrl+D)
	reader := bufio.NewReader(os.Stdin)
	var jsonBuilder strings.Builder

	for {
		line, err := reader.ReadString('\n')
		jsonBuilder.WriteString(line)
		if err == io.EOF {
			// End of input
			break
		}
		if err != nil {
			return models.Value{}, errors.NewInputError("error reading input", err)
		}
	}

	jsonData := jsonBuilder.String()
	if len(strings.TrimSpace(jsonData)) == 0 {
		return models.Value{}, errors.NewInputError("empty input received", errors.ErrEmptyInput)
	}

	fmt.Fprintln(os.Stderr, "\nProcessing JSON...")
	return parser.ParseString(jsonData)
}
