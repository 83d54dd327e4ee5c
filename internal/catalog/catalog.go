// Package catalog looks up documented response schemas in a Swagger 2.0
// document.
package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/go-openapi/spec"
	"github.com/mcncl/jsonmeta/internal/errors"
	"github.com/mcncl/jsonmeta/internal/schema"
)

// TableOrderExtension is the response extension holding the preferred column order
const TableOrderExtension = "x-table-order"

// Catalog holds an expanded Swagger document
type Catalog struct {
	swagger  *spec.Swagger
	resolver *schema.Resolver
	logger   *slog.Logger
}

// Load reads a Swagger document, JSON or YAML, from path
func Load(path string, logger *slog.Logger) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewCatalogError(fmt.Sprintf("swagger file '%s' not found", path), errors.ErrFileNotFound)
		}
		return nil, errors.NewCatalogError(fmt.Sprintf("failed to read swagger file '%s'", path), err)
	}
	return LoadBytes(data, logger)
}

// LoadBytes parses and expands a Swagger document
func LoadBytes(data []byte, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}

	raw, err := schema.ToJSON(data)
	if err != nil {
		return nil, errors.NewCatalogError("failed to decode swagger document", err)
	}

	swagger := &spec.Swagger{}
	if err := json.Unmarshal(raw, swagger); err != nil {
		return nil, errors.NewCatalogError("failed to parse swagger document", err)
	}

	// Definitions are kept before expansion: circular references survive
	// ExpandSpec as $ref and are cut by the resolver instead.
	resolver, err := newResolver(swagger.Definitions)
	if err != nil {
		return nil, errors.NewCatalogError("failed to parse swagger definitions", err)
	}

	if err := spec.ExpandSpec(swagger, &spec.ExpandOptions{
		RelativeBase: "",
	}); err != nil {
		return nil, errors.NewCatalogError("failed to expand swagger document", err)
	}

	c := &Catalog{
		swagger:  swagger,
		resolver: resolver,
		logger:   logger.With("component", "catalog"),
	}
	c.logger.Debug("catalog loaded", "paths", len(c.Endpoints()), "base_path", swagger.BasePath)
	return c, nil
}

func newResolver(definitions spec.Definitions) (*schema.Resolver, error) {
	data, err := json.Marshal(map[string]interface{}{"definitions": definitions})
	if err != nil {
		return nil, err
	}
	root, err := schema.ParseBytes(data)
	if err != nil {
		return nil, err
	}
	return schema.NewResolver(root), nil
}

// Endpoints lists the documented paths in sorted order
func (c *Catalog) Endpoints() []string {
	if c.swagger.Paths == nil {
		return nil
	}
	out := make([]string, 0, len(c.swagger.Paths.Paths))
	for path := range c.swagger.Paths.Paths {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// FetchSchema returns the documented success response of an endpoint. The
// endpoint may carry the base path, a query string, or concrete values
// where the document has {param} segments. An endpoint the document does
// not know fails with ErrUndocumented; a known operation without a
// documented body returns nil.
func (c *Catalog) FetchSchema(endpoint, method string) (*schema.Response, error) {
	if method == "" {
		method = http.MethodGet
	}

	path, item, ok := c.lookup(endpoint)
	if !ok {
		return nil, errors.NewCatalogError(fmt.Sprintf("endpoint '%s' is not documented", endpoint), errors.ErrUndocumented)
	}

	op := operation(item, method)
	if op == nil {
		return nil, errors.NewCatalogError(
			fmt.Sprintf("method %s is not documented for '%s'", strings.ToUpper(method), path), errors.ErrUndocumented)
	}

	resp, ok := successResponse(op)
	if !ok || resp.Schema == nil {
		c.logger.Debug("operation has no documented response body", "path", path, "method", method)
		return nil, nil
	}

	data, err := json.Marshal(resp.Schema)
	if err != nil {
		return nil, errors.NewCatalogError("failed to encode response schema", err)
	}
	s, err := schema.ParseBytes(data)
	if err != nil {
		return nil, errors.NewCatalogError("failed to parse response schema", err)
	}
	resolved, err := c.resolver.Resolve(s)
	if err != nil {
		return nil, errors.NewCatalogError(fmt.Sprintf("failed to resolve response schema of '%s'", path), err)
	}

	order, _ := resp.Extensions.GetStringSlice(TableOrderExtension)
	c.logger.Debug("schema found", "path", path, "method", method, "table_order", len(order))
	return &schema.Response{Schema: resolved, TableOrder: order}, nil
}

// lookup finds the path item for endpoint: an exact match first, then a
// match against the templated paths.
func (c *Catalog) lookup(endpoint string) (string, spec.PathItem, bool) {
	if c.swagger.Paths == nil {
		return "", spec.PathItem{}, false
	}

	path := endpoint
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if base := strings.TrimSuffix(c.swagger.BasePath, "/"); base != "" && strings.HasPrefix(path, base+"/") {
		path = strings.TrimPrefix(path, base)
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}

	if item, ok := c.swagger.Paths.Paths[path]; ok {
		return path, item, true
	}
	for _, candidate := range c.Endpoints() {
		if matchTemplate(candidate, path) {
			return candidate, c.swagger.Paths.Paths[candidate], true
		}
	}
	return "", spec.PathItem{}, false
}

// matchTemplate reports whether path fits a templated path segment by segment
func matchTemplate(template, path string) bool {
	want := strings.Split(template, "/")
	got := strings.Split(path, "/")
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if strings.HasPrefix(want[i], "{") && strings.HasSuffix(want[i], "}") && got[i] != "" {
			continue
		}
		if want[i] != got[i] {
			return false
		}
	}
	return true
}

func operation(item spec.PathItem, method string) *spec.Operation {
	switch strings.ToUpper(method) {
	case http.MethodGet:
		return item.Get
	case http.MethodPost:
		return item.Post
	case http.MethodPut:
		return item.Put
	case http.MethodPatch:
		return item.Patch
	case http.MethodDelete:
		return item.Delete
	case http.MethodHead:
		return item.Head
	case http.MethodOptions:
		return item.Options
	default:
		return nil
	}
}

// successResponse picks the 200 response, or the lowest documented 2xx one
func successResponse(op *spec.Operation) (spec.Response, bool) {
	if op.Responses == nil {
		return spec.Response{}, false
	}
	codes := op.Responses.StatusCodeResponses
	if resp, ok := codes[http.StatusOK]; ok {
		return resp, true
	}
	best := 0
	for code := range codes {
		if code >= 200 && code < 300 && (best == 0 || code < best) {
			best = code
		}
	}
	if best == 0 {
		return spec.Response{}, false
	}
	return codes[best], true
}
