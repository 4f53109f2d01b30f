package flow

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cast"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/zjrosen/millflow/internal/registry"
)

// Converter turns a raw attribute value into its typed form. The registry is
// consulted by reference converters at the moment of use.
type Converter func(reg *registry.Registry, raw any) (any, error)

var (
	trueWords  = []string{"true", "yes", "1", "on", "enabled"}
	falseWords = []string{"false", "no", "0", "off", "disabled"}
)

func enumConverter[E ~string](name string, legal []E) Converter {
	return func(_ *registry.Registry, raw any) (any, error) {
		var candidate E
		switch v := raw.(type) {
		case E:
			candidate = v
		case string:
			candidate = E(v)
		default:
			return nil, invalidKey(name, raw, legal)
		}
		if !slices.Contains(legal, candidate) {
			return nil, invalidKey(name, raw, legal)
		}
		return candidate, nil
	}
}

func invalidKey[E ~string](name string, raw any, legal []E) error {
	names := make([]string, len(legal))
	for i, l := range legal {
		names[i] = string(l)
	}
	return &InvalidKeyError{Enum: name, Value: raw, Legal: names}
}

func boolConverter(_ *registry.Registry, raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		switch cast.ToInt64(v) {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
	case string:
		word := strings.ToLower(strings.TrimSpace(v))
		if slices.Contains(trueWords, word) {
			return true, nil
		}
		if slices.Contains(falseWords, word) {
			return false, nil
		}
	}
	return nil, &InvalidDataError{Value: raw, Reason: "expected a boolean"}
}

func floatConverter(_ *registry.Registry, raw any) (any, error) {
	switch v := raw.(type) {
	case nil, bool:
		return nil, &InvalidDataError{Value: raw, Reason: "expected a number"}
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, &InvalidDataError{Value: raw, Reason: "expected a number"}
		}
	}
	f, err := cast.ToFloat64E(raw)
	if err != nil {
		return nil, &InvalidDataError{Value: raw, Reason: "expected a number"}
	}
	return f, nil
}

func toFloat(raw any) (float64, error) {
	v, err := floatConverter(nil, raw)
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func vectorConverter(_ *registry.Registry, raw any) (any, error) {
	return toVector(raw)
}

// items unpacks the list shapes that decoders produce.
func items(raw any) ([]any, bool) {
	switch v := raw.(type) {
	case []float64:
		out := make([]any, len(v))
		for i, f := range v {
			out[i] = f
		}
		return out, true
	case []int:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, true
	case []r3.Vec:
		out := make([]any, len(v))
		for i, p := range v {
			out[i] = p
		}
		return out, true
	}
	list, err := cast.ToSliceE(raw)
	return list, err == nil
}

// toVector accepts r3.Vec or a list of two or three numbers; a missing Z is 0.
func toVector(raw any) (r3.Vec, error) {
	if v, ok := raw.(r3.Vec); ok {
		return v, nil
	}
	coords, ok := items(raw)
	if !ok || len(coords) < 2 || len(coords) > 3 {
		return r3.Vec{}, &InvalidDataError{Value: raw, Reason: "expected a list of 2 or 3 numbers"}
	}
	var xyz [3]float64
	for i, c := range coords {
		f, err := toFloat(c)
		if err != nil {
			return r3.Vec{}, fmt.Errorf("coordinate %d: %w", i, err)
		}
		xyz[i] = f
	}
	return r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}

func vectorListConverter(_ *registry.Registry, raw any) (any, error) {
	list, ok := items(raw)
	if !ok {
		return nil, &InvalidDataError{Value: raw, Reason: "expected a list of points"}
	}
	points := make([]r3.Vec, 0, len(list))
	for i, item := range list {
		p, err := toVector(item)
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		points = append(points, p)
	}
	return points, nil
}

func toIDs(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		ids := make([]string, len(v))
		for i, item := range v {
			id, ok := item.(string)
			if !ok {
				return nil, &InvalidDataError{Value: raw, Reason: "expected a list of ids"}
			}
			ids[i] = id
		}
		return ids, nil
	default:
		return nil, &InvalidDataError{Value: raw, Reason: "expected a list of ids"}
	}
}

// refConverter resolves one id. A miss is a hard failure.
func refConverter(kind registry.Kind) Converter {
	return func(reg *registry.Registry, raw any) (any, error) {
		id, ok := raw.(string)
		if !ok {
			return nil, &InvalidDataError{Value: raw, Reason: fmt.Sprintf("expected a %s id", kind)}
		}
		e, ok := reg.Lookup(kind, id)
		if !ok {
			return nil, &UnresolvedReferenceError{Kind: kind, ID: id}
		}
		return e, nil
	}
}

// refListConverter resolves ids in order. Any miss yields an empty list.
func refListConverter(kind registry.Kind) Converter {
	return func(reg *registry.Registry, raw any) (any, error) {
		ids, err := toIDs(raw)
		if err != nil {
			return nil, err
		}
		return reg.LookupMany(kind, ids), nil
	}
}
