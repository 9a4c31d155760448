package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/wippyai/structsynth/errors"
)

// MaxParseDepth bounds parser recursion. It matches the nesting limit of
// encoding/json's own decoder. Deeper documents fail with a nesting_too_deep
// error, the same kind the walker reports for its own lower limit.
const MaxParseDepth = 10000

// ParseJSON parses a single JSON value. Object field order is preserved and
// duplicate keys are kept. Trailing non-whitespace data is rejected.
func ParseJSON(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	n, err := parseValue(dec, nil, 0)
	if err != nil {
		var se *errors.Error
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, errors.ParseFailed("json", err)
	}

	if tok, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = fmt.Errorf("unexpected %v after top-level value", tok)
		}
		return nil, errors.ParseFailed("json", err)
	}
	return n, nil
}

// ParseJSONString is ParseJSON for string literals.
func ParseJSONString(text string) (Node, error) {
	return ParseJSON([]byte(text))
}

func parseValue(dec *json.Decoder, path []string, depth int) (Node, error) {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		if depth >= MaxParseDepth {
			return nil, errors.NestingTooDeep(path, MaxParseDepth)
		}
		switch t {
		case '{':
			return parseObject(dec, path, depth+1)
		case '[':
			return parseArray(dec, path, depth+1)
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	case string:
		return String(t), nil
	case json.Number:
		return Number(t), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null{}, nil
	default:
		return nil, fmt.Errorf("unexpected token %T", tok)
	}
}

func parseObject(dec *json.Decoder, path []string, depth int) (*Object, error) {
	obj := &Object{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("object key must be a string, got %v", tok)
		}
		v, err := parseValue(dec, append(path, key), depth)
		if err != nil {
			return nil, err
		}
		obj.Fields = append(obj.Fields, Field{Key: key, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}

func parseArray(dec *json.Decoder, path []string, depth int) (Array, error) {
	arr := Array{}
	for dec.More() {
		v, err := parseValue(dec, append(path, "["+strconv.Itoa(len(arr))+"]"), depth)
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return arr, nil
}
