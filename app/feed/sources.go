package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadSources reads a category -> URL list document from path.
func LoadSources(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("failed to read file: %w", err)}
	}

	catalog, err := ParseSources(data)
	if err != nil {
		var configErr *ConfigError
		if errors.As(err, &configErr) {
			configErr.Path = path
		}
		return nil, err
	}

	slog.Debug("Configuration loaded", "path", path, "categories", len(catalog.Categories))
	return catalog, nil
}

// ParseSources decodes a JSON object (or the equivalent YAML mapping) of
// category names to arrays of feed URLs, keeping document order.
func ParseSources(data []byte) (*Catalog, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, &ConfigError{Err: errors.New("feed configuration is empty")}
	}

	if strings.HasPrefix(trimmed, "{") {
		return parseJSONSources([]byte(trimmed))
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("failed to parse document: %w", err)}
	}

	return catalogFromNode(&doc)
}

// parseJSONSources walks the object token by token so category order is
// the document order.
func parseJSONSources(data []byte) (*Catalog, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	if _, err := dec.Token(); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("failed to parse document: %w", err)}
	}

	catalog := &Catalog{Categories: []Category{}}
	seen := make(map[string]bool)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, &ConfigError{Err: fmt.Errorf("failed to parse document: %w", err)}
		}
		name, _ := tok.(string)
		if strings.TrimSpace(name) == "" {
			return nil, &ConfigError{Err: errors.New("category name must be a non-empty string")}
		}
		if seen[name] {
			return nil, &ConfigError{Err: fmt.Errorf("duplicate category '%s'", name)}
		}
		seen[name] = true

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, &ConfigError{Err: fmt.Errorf("failed to parse document: %w", err)}
		}

		category, err := parseJSONCategory(name, value)
		if err != nil {
			return nil, &ConfigError{Err: err}
		}
		catalog.Categories = append(catalog.Categories, category)
	}

	if _, err := dec.Token(); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("failed to parse document: %w", err)}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &ConfigError{Err: errors.New("failed to parse document: unexpected data after the top-level object")}
	}

	return catalog, nil
}

func parseJSONCategory(name string, value json.RawMessage) (Category, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(value), []byte("[")) {
		return Category{}, fmt.Errorf("category '%s' must list feed URLs", name)
	}

	var entries []any
	if err := json.Unmarshal(value, &entries); err != nil {
		return Category{}, fmt.Errorf("category '%s': %w", name, err)
	}

	category := Category{Name: name, URLs: make([]string, 0, len(entries))}
	for _, entry := range entries {
		s, ok := entry.(string)
		if !ok {
			return Category{}, fmt.Errorf("feed URL in '%s' must be a string", name)
		}
		url := strings.TrimSpace(s)
		if url == "" {
			return Category{}, fmt.Errorf("empty feed URL in '%s'", name)
		}
		category.URLs = append(category.URLs, url)
	}

	return category, nil
}

func catalogFromNode(doc *yaml.Node) (*Catalog, error) {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &ConfigError{Err: errors.New("feed configuration is empty")}
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &ConfigError{Err: fmt.Errorf("line %d: expected a mapping of categories to feed lists", root.Line)}
	}

	catalog := &Catalog{Categories: make([]Category, 0, len(root.Content)/2)}
	seen := make(map[string]bool, len(root.Content)/2)

	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valueNode := root.Content[i], root.Content[i+1]

		category, err := parseCategory(keyNode, valueNode)
		if err != nil {
			return nil, &ConfigError{Err: err}
		}
		if seen[category.Name] {
			return nil, &ConfigError{Err: fmt.Errorf("line %d: duplicate category '%s'", keyNode.Line, category.Name)}
		}
		seen[category.Name] = true

		catalog.Categories = append(catalog.Categories, category)
	}

	return catalog, nil
}

func parseCategory(keyNode, valueNode *yaml.Node) (Category, error) {
	if keyNode.Kind != yaml.ScalarNode || strings.TrimSpace(keyNode.Value) == "" {
		return Category{}, fmt.Errorf("line %d: category name must be a non-empty string", keyNode.Line)
	}

	category := Category{Name: keyNode.Value}

	if valueNode.Kind != yaml.SequenceNode {
		return Category{}, fmt.Errorf("line %d: category '%s' must list feed URLs", valueNode.Line, category.Name)
	}

	category.URLs = make([]string, 0, len(valueNode.Content))
	for _, urlNode := range valueNode.Content {
		if urlNode.Kind != yaml.ScalarNode || urlNode.Tag != "!!str" {
			return Category{}, fmt.Errorf("line %d: feed URL in '%s' must be a string", urlNode.Line, category.Name)
		}
		url := strings.TrimSpace(urlNode.Value)
		if url == "" {
			return Category{}, fmt.Errorf("line %d: empty feed URL in '%s'", urlNode.Line, category.Name)
		}
		category.URLs = append(category.URLs, url)
	}

	return category, nil
}
