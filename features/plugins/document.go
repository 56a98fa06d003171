// Package plugins turns OpenAPI descriptions of plugin services into
// invocable tool catalogues. Each operation in a document becomes one tool:
// its path and query parameters and its request body properties flatten into
// a single JSON schema, and invocations are dispatched as HTTP requests
// against a live endpoint of the service.
package plugins

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is the subset of an OpenAPI 3 description needed to derive tools.
// YAML and JSON sources both parse.
type Document struct {
	Info       Info                `yaml:"info"`
	Paths      map[string]PathItem `yaml:"paths"`
	Components Components          `yaml:"components"`
}

type Info struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
}

type PathItem struct {
	Get    *Operation `yaml:"get"`
	Post   *Operation `yaml:"post"`
	Put    *Operation `yaml:"put"`
	Patch  *Operation `yaml:"patch"`
	Delete *Operation `yaml:"delete"`
}

type Operation struct {
	OperationID string       `yaml:"operationId"`
	Summary     string       `yaml:"summary"`
	Description string       `yaml:"description"`
	Parameters  []Parameter  `yaml:"parameters"`
	RequestBody *RequestBody `yaml:"requestBody"`
}

type Parameter struct {
	Name        string         `yaml:"name"`
	In          string         `yaml:"in"`
	Required    bool           `yaml:"required"`
	Description string         `yaml:"description"`
	Schema      map[string]any `yaml:"schema"`
}

type RequestBody struct {
	Required bool                 `yaml:"required"`
	Content  map[string]MediaType `yaml:"content"`
}

type MediaType struct {
	Schema map[string]any `yaml:"schema"`
}

type Components struct {
	Schemas map[string]map[string]any `yaml:"schemas"`
}

// ParseDocument decodes an OpenAPI document from YAML or JSON bytes.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}
	if len(doc.Paths) == 0 {
		return nil, fmt.Errorf("openapi document declares no paths")
	}
	return &doc, nil
}

// operation is one flattened, invocable entry derived from the document.
type operation struct {
	Name        string
	Method      string
	Path        string
	Description string
	// Schema is the JSON schema of the flattened argument object.
	Schema map[string]any
	// PathParams and QueryParams name the arguments bound to the URL; any
	// remaining argument belongs to the request body.
	PathParams  []string
	QueryParams []string
	BodyParams  []string
}

// Operations flattens every path operation into an invocable descriptor,
// ordered by operation id.
func (d *Document) Operations() ([]operation, error) {
	var ops []operation
	for path, item := range d.Paths {
		for method, op := range map[string]*Operation{
			"GET":    item.Get,
			"POST":   item.Post,
			"PUT":    item.Put,
			"PATCH":  item.Patch,
			"DELETE": item.Delete,
		} {
			if op == nil {
				continue
			}
			if op.OperationID == "" {
				return nil, fmt.Errorf("operation %s %s has no operationId", method, path)
			}
			flattened, err := d.flatten(path, method, op)
			if err != nil {
				return nil, err
			}
			ops = append(ops, flattened)
		}
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops, nil
}

func (d *Document) flatten(path, method string, op *Operation) (operation, error) {
	properties := map[string]any{}
	var required []string
	out := operation{
		Name:        op.OperationID,
		Method:      method,
		Path:        path,
		Description: op.Description,
	}
	if out.Description == "" {
		out.Description = op.Summary
	}
	for _, param := range op.Parameters {
		schema, err := d.resolve(param.Schema)
		if err != nil {
			return operation{}, fmt.Errorf("operation %s parameter %s: %w", op.OperationID, param.Name, err)
		}
		if param.Description != "" {
			schema = withDescription(schema, param.Description)
		}
		properties[param.Name] = schema
		if param.Required {
			required = append(required, param.Name)
		}
		switch param.In {
		case "path":
			out.PathParams = append(out.PathParams, param.Name)
		case "query":
			out.QueryParams = append(out.QueryParams, param.Name)
		default:
			return operation{}, fmt.Errorf("operation %s parameter %s: unsupported location %q", op.OperationID, param.Name, param.In)
		}
	}
	if op.RequestBody != nil {
		media, ok := op.RequestBody.Content["application/json"]
		if !ok {
			return operation{}, fmt.Errorf("operation %s: request body has no application/json content", op.OperationID)
		}
		schema, err := d.resolve(media.Schema)
		if err != nil {
			return operation{}, fmt.Errorf("operation %s request body: %w", op.OperationID, err)
		}
		props, _ := schema["properties"].(map[string]any)
		for name, prop := range props {
			if _, exists := properties[name]; exists {
				return operation{}, fmt.Errorf("operation %s: body property %s collides with a parameter", op.OperationID, name)
			}
			resolved, err := d.resolveValue(prop)
			if err != nil {
				return operation{}, fmt.Errorf("operation %s body property %s: %w", op.OperationID, name, err)
			}
			properties[name] = resolved
			out.BodyParams = append(out.BodyParams, name)
		}
		sort.Strings(out.BodyParams)
		if reqList, ok := schema["required"].([]any); ok {
			for _, name := range reqList {
				if s, ok := name.(string); ok {
					required = append(required, s)
				}
			}
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sort.Strings(required)
		schema["required"] = required
	}
	out.Schema = schema
	return out, nil
}

// resolve follows a local component reference if the schema is one.
func (d *Document) resolve(schema map[string]any) (map[string]any, error) {
	if schema == nil {
		return map[string]any{}, nil
	}
	ref, ok := schema["$ref"].(string)
	if !ok {
		return schema, nil
	}
	const prefix = "#/components/schemas/"
	if !strings.HasPrefix(ref, prefix) {
		return nil, fmt.Errorf("unsupported reference %q", ref)
	}
	name := strings.TrimPrefix(ref, prefix)
	target, ok := d.Components.Schemas[name]
	if !ok {
		return nil, fmt.Errorf("reference %q does not resolve", ref)
	}
	return d.resolve(target)
}

func (d *Document) resolveValue(value any) (any, error) {
	schema, ok := value.(map[string]any)
	if !ok {
		return value, nil
	}
	return d.resolve(schema)
}

func withDescription(schema map[string]any, description string) map[string]any {
	copied := make(map[string]any, len(schema)+1)
	for k, v := range schema {
		copied[k] = v
	}
	if _, ok := copied["description"]; !ok {
		copied["description"] = description
	}
	return copied
}
