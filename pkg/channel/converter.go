package channel

import (
	"strconv"
	"strings"

	"github.com/fathom-io/fathom/pkg/errors"
	"github.com/fathom-io/fathom/pkg/frame"
)

// Kind is the declared value type of a channel.
type Kind string

const (
	KindFloat  Kind = "float"
	KindInt    Kind = "int"
	KindBool   Kind = "bool"
	KindString Kind = "string"
	KindSeries Kind = "series"
)

// ParseKind normalizes a configured type name to a Kind. Unknown names
// default to float, the dominant measurement type.
func ParseKind(name string) Kind {
	switch strings.ToLower(name) {
	case "int", "integer":
		return KindInt
	case "bool", "boolean":
		return KindBool
	case "str", "string":
		return KindString
	case "series":
		return KindSeries
	case "", "float", "double":
		return KindFloat
	default:
		return KindFloat
	}
}

// Converter coerces raw connector values into a channel's declared kind.
// Conversion failures are resource errors; the channel rejects the set.
type Converter interface {
	Kind() Kind
	Convert(value interface{}) (interface{}, error)
}

// ConverterFor returns the coercion policy for a kind.
func ConverterFor(kind Kind) Converter {
	return kindConverter{kind: kind}
}

type kindConverter struct {
	kind Kind
}

func (c kindConverter) Kind() Kind { return c.kind }

func (c kindConverter) Convert(value interface{}) (interface{}, error) {
	// Series values pass through; per-element coercion is the connector's business.
	if _, ok := value.(*frame.Series); ok {
		return value, nil
	}
	switch c.kind {
	case KindFloat:
		return toFloat(value)
	case KindInt:
		return toInt(value)
	case KindBool:
		return toBool(value)
	case KindString:
		return toString(value), nil
	case KindSeries:
		return value, nil
	default:
		return value, nil
	}
}

func toFloat(value interface{}) (interface{}, error) {
	switch t := value.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case bool:
		if t {
			return 1.0, nil
		}
		return 0.0, nil
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f, nil
		}
	}
	return nil, errors.Newf(errors.ErrorTypeResource, "cannot convert %v to float", value)
}

func toInt(value interface{}) (interface{}, error) {
	switch t := value.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	case float32:
		return int(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		if i, err := strconv.Atoi(t); err == nil {
			return i, nil
		}
	}
	return nil, errors.Newf(errors.ErrorTypeResource, "cannot convert %v to int", value)
}

func toBool(value interface{}) (interface{}, error) {
	switch t := value.(type) {
	case bool:
		return t, nil
	case int:
		return t != 0, nil
	case float64:
		return t != 0, nil
	case string:
		if b, err := strconv.ParseBool(t); err == nil {
			return b, nil
		}
	}
	return nil, errors.Newf(errors.ErrorTypeResource, "cannot convert %v to bool", value)
}

func toString(value interface{}) string {
	switch t := value.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
