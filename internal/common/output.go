package common

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Output formats accepted by --format.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// WriteStructured encodes v as JSON or YAML. It returns false for the text
// format so the caller can render its own view.
func WriteStructured(w io.Writer, format string, v any) (bool, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case FormatYAML:
		data, err := toYAML(v)
		if err != nil {
			return true, err
		}
		_, err = w.Write(data)
		return true, err
	case "", FormatText:
		return false, nil
	default:
		return true, fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}

// toYAML renders v with its JSON field names, keeping field order.
func toYAML(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode yaml: %w", err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to encode yaml: %w", err)
	}
	plainStyle(&node)
	return yaml.Marshal(&node)
}

// plainStyle drops the flow and quoting styles inherited from JSON.
func plainStyle(n *yaml.Node) {
	n.Style = 0
	for _, child := range n.Content {
		plainStyle(child)
	}
}
