package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

var ErrEmptyDocument = errors.New("empty document")

// DecodeYAML decodes exactly one YAML document into out. Unknown fields,
// empty input and trailing documents are errors. Scenario files use it too.
func DecodeYAML(b []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyDocument
		}
		return err
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("trailing yaml document")
		}
		return err
	}
	return nil
}

// configJSON returns the JSON form of a config file. YAML files (by
// extension) are converted so a single strict JSON decoder serves both.
func configJSON(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	if root.Kind == 0 {
		return []byte("{}"), nil
	}
	v, err := nodeValue(&root, "")
	if err != nil {
		return nil, err
	}
	j, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("yaml->json: %w", err)
	}
	return j, nil
}

// nodeValue maps a YAML node to a JSON value.
//
// A key without a value ("modal:") stays null, which popup attribute maps
// read as a bare flag. Numbers keep their exact digits, and scalars YAML
// would read as timestamps ("2025-01-01") or sexagesimal values stay
// strings, so delays such as "1d" or "06:00" reach the popup decoders
// untouched.
func nodeValue(n *yaml.Node, at string) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return nodeValue(n.Content[0], at)
	case yaml.AliasNode:
		return nodeValue(n.Alias, at)
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i].Value
			if _, dup := m[k]; dup {
				return nil, fmt.Errorf("yaml %s: duplicate key %q (line %d)", pathOr(at), k, n.Content[i].Line)
			}
			v, err := nodeValue(n.Content[i+1], join(at, k))
			if err != nil {
				return nil, err
			}
			m[k] = v
		}
		return m, nil
	case yaml.SequenceNode:
		out := make([]any, len(n.Content))
		for i, c := range n.Content {
			v, err := nodeValue(c, fmt.Sprintf("%s[%d]", at, i))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case yaml.ScalarNode:
		return scalarValue(n, at)
	}
	return nil, fmt.Errorf("yaml %s: unsupported node (line %d)", pathOr(at), n.Line)
}

func scalarValue(n *yaml.Node, at string) (any, error) {
	switch n.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, fmt.Errorf("yaml %s: %w", pathOr(at), err)
		}
		return b, nil
	case "!!int":
		i, err := strconv.ParseInt(strings.ReplaceAll(n.Value, "_", ""), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("yaml %s: integer %q out of range (line %d)", pathOr(at), n.Value, n.Line)
		}
		return json.Number(strconv.FormatInt(i, 10)), nil
	case "!!float":
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, fmt.Errorf("yaml %s: %q is not a finite number (line %d)", pathOr(at), n.Value, n.Line)
		}
		return json.Number(strconv.FormatFloat(f, 'f', -1, 64)), nil
	}
	return n.Value, nil
}

func join(at, k string) string {
	if at == "" {
		return k
	}
	return at + "." + k
}

func pathOr(at string) string {
	if at == "" {
		return "document"
	}
	return at
}
