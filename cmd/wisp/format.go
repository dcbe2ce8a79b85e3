package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// renderOutput encodes v in the requested format: text, json, or yaml.
// The text form is a flat key: value listing good enough for a terminal.
func renderOutput(v any, format string) (string, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encoding json: %w", err)
		}
		return string(data), nil

	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encoding yaml: %w", err)
		}
		return strings.TrimRight(string(data), "\n"), nil

	case "text", "":
		return renderText(v, ""), nil

	default:
		return "", fmt.Errorf("unknown output format %q (want text, json, or yaml)", format)
	}
}

func renderText(v any, indent string) string {
	var b strings.Builder
	switch val := v.(type) {
	case map[string]any:
		for _, k := range sortedKeys(val) {
			child := val[k]
			switch child.(type) {
			case map[string]any, []any:
				fmt.Fprintf(&b, "%s%s:\n", indent, k)
				b.WriteString(renderText(child, indent+"  "))
			default:
				fmt.Fprintf(&b, "%s%s: %v\n", indent, k, child)
			}
		}
	case []any:
		for _, item := range val {
			fmt.Fprintf(&b, "%s- %v\n", indent, item)
		}
	default:
		fmt.Fprintf(&b, "%s%v\n", indent, val)
	}
	return b.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
