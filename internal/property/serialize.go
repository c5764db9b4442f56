// Package property implements the Property Binder: resolving a
// class's declared property schema against the external configuration
// store, with default fallback, type coercion, and the store's
// newline-separated array serialization.
package property

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/r3e-network/pool-orchestrator/internal/pluginloader"
	"github.com/r3e-network/pool-orchestrator/internal/poolerrors"
)

// encodeScalar renders value as the store's textual representation.
func encodeScalar(value any) string {
	switch v := value.(type) {
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	default:
		return ""
	}
}

func decodeScalar(raw string, t pluginloader.PropertyType) (any, error) {
	switch t {
	case pluginloader.PropBool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, poolerrors.New(poolerrors.CodeTypePropertyMismatch, "not a bool: "+raw)
		}
		return v, nil
	case pluginloader.PropInt32:
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return nil, poolerrors.New(poolerrors.CodeTypePropertyMismatch, "not an int32: "+raw)
		}
		return v, nil
	case pluginloader.PropFloat64:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, poolerrors.New(poolerrors.CodeTypePropertyMismatch, "not a float64: "+raw)
		}
		return v, nil
	case pluginloader.PropString:
		return raw, nil
	}
	return nil, poolerrors.New(poolerrors.CodeUnknownPropertyType, string(t))
}

// encodeArray joins elements' textual representations with "\n", escaping
// any literal newline inside an element as "\n\n".
func encodeArray(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strings.ReplaceAll(encodeScalar(v), "\n", "\n\n")
	}
	return strings.Join(parts, "\n")
}

// decodeArray is the inverse of encodeArray: a lone "\n" separates
// elements; "\n\n" is un-escaped back to a literal newline within one
// element.
func decodeArray(raw string, elemType pluginloader.PropertyType) ([]any, error) {
	if raw == "" {
		return nil, nil
	}
	// Walk the raw string splitting on single '\n' not part of a "\n\n" pair.
	var elems []string
	var cur strings.Builder
	runes := []rune(raw)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '\n' {
			if i+1 < len(runes) && runes[i+1] == '\n' {
				cur.WriteRune('\n')
				i++
				continue
			}
			elems = append(elems, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteRune(runes[i])
	}
	elems = append(elems, cur.String())

	out := make([]any, len(elems))
	for i, e := range elems {
		v, err := decodeScalar(e, elemType)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// scalarElemType maps an array property type to its element scalar type.
func scalarElemType(t pluginloader.PropertyType) pluginloader.PropertyType {
	switch t {
	case pluginloader.PropBoolArray:
		return pluginloader.PropBool
	case pluginloader.PropInt32Array:
		return pluginloader.PropInt32
	case pluginloader.PropFloat64Array:
		return pluginloader.PropFloat64
	case pluginloader.PropStringArray:
		return pluginloader.PropString
	}
	return pluginloader.PropString
}

// DecodeJSONOverride accepts an array property override supplied in JSON
// array syntax (as an override passed to BuildPropertyData may supply it)
// and converts it to the store's native newline-separated representation.
// Plain scalar overrides pass through unchanged.
func DecodeJSONOverride(raw string, t pluginloader.PropertyType) string {
	if !t.IsArray() || !looksLikeJSONArray(raw) {
		return raw
	}
	values := []any{}
	for _, item := range gjson.Parse(raw).Array() {
		values = append(values, item.Value())
	}
	return encodeArray(values)
}

func looksLikeJSONArray(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	return strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") && gjson.Valid(trimmed)
}
