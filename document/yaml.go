package document

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/structsynth/errors"
)

// ParseYAML parses the first YAML document in data. Mapping order is
// preserved. Anchors are resolved; merge keys and non-scalar keys are
// rejected. Integers in hex/octal/binary form are normalised to decimal text.
//
// Alias expansion is budgeted the way yaml.v3 budgets decoding into Go
// values: once more than 1000 nodes and 100 aliased nodes have been built,
// aliased nodes may make up at most 99% of the total, falling linearly to
// 10% between 400k and 4M nodes. Documents past the budget fail with
// "excessive aliasing".
func ParseYAML(data []byte) (Node, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, errors.ParseFailed("yaml", err)
	}
	if root.Kind == 0 {
		return nil, errors.ParseFailed("yaml", fmt.Errorf("empty document"))
	}
	d := &yamlDecoder{expanding: make(map[*yaml.Node]bool)}
	return d.node(&root, nil, 0)
}

const (
	aliasRatioLow  = 400000
	aliasRatioHigh = 4000000
)

func allowedAliasRatio(nodes int) float64 {
	switch {
	case nodes <= aliasRatioLow:
		return 0.99
	case nodes >= aliasRatioHigh:
		return 0.10
	default:
		return 0.99 - 0.89*(float64(nodes-aliasRatioLow)/float64(aliasRatioHigh-aliasRatioLow))
	}
}

type yamlDecoder struct {
	expanding  map[*yaml.Node]bool
	nodes      int
	aliased    int
	aliasDepth int
}

func (d *yamlDecoder) node(n *yaml.Node, path []string, depth int) (Node, error) {
	if depth >= MaxParseDepth {
		return nil, errors.NestingTooDeep(path, MaxParseDepth)
	}

	d.nodes++
	if d.aliasDepth > 0 {
		d.aliased++
	}
	if d.aliased > 100 && d.nodes > 1000 &&
		float64(d.aliased)/float64(d.nodes) > allowedAliasRatio(d.nodes) {
		return nil, errors.InvalidData(errors.PhaseParse, path, "excessive aliasing")
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, yamlError(n, path, "empty document")
		}
		return d.node(n.Content[0], path, depth)

	case yaml.AliasNode:
		if n.Alias == nil {
			return nil, yamlError(n, path, "unresolved alias")
		}
		if d.expanding[n.Alias] {
			return nil, yamlError(n, path, fmt.Sprintf("anchor %q contains itself", n.Value))
		}
		d.expanding[n.Alias] = true
		d.aliasDepth++
		v, err := d.node(n.Alias, path, depth)
		d.aliasDepth--
		delete(d.expanding, n.Alias)
		return v, err

	case yaml.MappingNode:
		obj := &Object{Fields: make([]Field, 0, len(n.Content)/2)}
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, yamlError(k, path, "mapping key must be a scalar")
			}
			if k.ShortTag() == "!!merge" {
				return nil, yamlError(k, path, "merge keys are not supported")
			}
			child, err := d.node(v, append(path, k.Value), depth+1)
			if err != nil {
				return nil, err
			}
			obj.Fields = append(obj.Fields, Field{Key: k.Value, Value: child})
		}
		return obj, nil

	case yaml.SequenceNode:
		arr := make(Array, 0, len(n.Content))
		for i, e := range n.Content {
			child, err := d.node(e, append(path, "["+strconv.Itoa(i)+"]"), depth+1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, child)
		}
		return arr, nil

	case yaml.ScalarNode:
		return yamlScalar(n, path)

	default:
		return nil, yamlError(n, path, fmt.Sprintf("unexpected node kind %d", n.Kind))
	}
}

func yamlScalar(n *yaml.Node, path []string) (Node, error) {
	switch n.ShortTag() {
	case "!!null":
		return Null{}, nil

	case "!!bool":
		b, err := strconv.ParseBool(n.Value)
		if err != nil {
			return nil, yamlError(n, path, fmt.Sprintf("invalid boolean %q", n.Value))
		}
		return Bool(b), nil

	case "!!int":
		text := strings.ReplaceAll(n.Value, "_", "")
		if i, err := strconv.ParseInt(text, 0, 64); err == nil {
			return Number(strconv.FormatInt(i, 10)), nil
		}
		if isDecimal(text) {
			// out of int64 range; the walker reports the overflow with its own policy
			return Number(strings.TrimPrefix(text, "+")), nil
		}
		return nil, yamlError(n, path, fmt.Sprintf("invalid integer %q", n.Value))

	case "!!float":
		text := strings.ReplaceAll(n.Value, "_", "")
		f, err := strconv.ParseFloat(text, 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, yamlError(n, path, fmt.Sprintf("number %q has no JSON representation", n.Value))
		}
		return Number(strings.TrimPrefix(text, "+")), nil

	default:
		return String(n.Value), nil
	}
}

func isDecimal(s string) bool {
	s = strings.TrimLeft(s, "+-")
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func yamlError(n *yaml.Node, path []string, detail string) error {
	return errors.InvalidData(errors.PhaseParse, path, fmt.Sprintf("line %d: %s", n.Line, detail))
}
