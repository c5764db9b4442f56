package property

import (
	"context"
	"sort"

	"github.com/r3e-network/pool-orchestrator/internal/configstore"
	"github.com/r3e-network/pool-orchestrator/internal/pluginloader"
	"github.com/r3e-network/pool-orchestrator/internal/poolerrors"
)

// Resolved is one resolved property's value plus whether it came from the
// store or was filled from the schema default.
type Resolved struct {
	Name     string
	Value    any
	Type     pluginloader.PropertyType
	NotInDB  bool
}

// Binder resolves a class's property schema against a configstore.Store.
type Binder struct {
	store configstore.Store
}

func NewBinder(store configstore.Store) *Binder {
	return &Binder{store: store}
}

// Resolve runs the binding sequence: query the store for each
// declared property, fall back to a default when absent, fail with
// MissingProperty when neither is available, type-coerce, and preserve
// declared order.
func (b *Binder) Resolve(ctx context.Context, instance string, schema []pluginloader.PropertyDecl) ([]Resolved, error) {
	out := make([]Resolved, 0, len(schema))
	for _, decl := range schema {
		raw, found, err := b.store.Get(ctx, configstore.Key(instance, decl.Name))
		if err != nil {
			return nil, err
		}

		var value any
		notInDB := false
		switch {
		case found:
			value, err = decodeValue(raw, decl.Type)
			if err != nil {
				return nil, err
			}
		case decl.HasDefault:
			value = decl.Default
			notInDB = true
		default:
			return nil, poolerrors.MissingProperty(instance, decl.Name)
		}

		out = append(out, Resolved{Name: decl.Name, Value: value, Type: decl.Type, NotInDB: notInDB})
	}
	return out, nil
}

func decodeValue(raw string, t pluginloader.PropertyType) (any, error) {
	if t.IsArray() {
		return decodeArray(raw, scalarElemType(t))
	}
	return decodeScalar(raw, t)
}

// AsMap converts a Resolve result into the name->value map a plug-in
// constructor expects.
func AsMap(resolved []Resolved) map[string]any {
	m := make(map[string]any, len(resolved))
	for _, r := range resolved {
		m[r.Name] = r.Value
	}
	return m
}

// BuildPropertyData writes overrides into the store first, then resolves
// the full schema,
// so instance creation and property edit share one code path.
func (b *Binder) BuildPropertyData(ctx context.Context, instance string, schema []pluginloader.PropertyDecl, overrides map[string]any) ([]Resolved, error) {
	byName := make(map[string]pluginloader.PropertyDecl, len(schema))
	for _, decl := range schema {
		byName[decl.Name] = decl
	}

	// Deterministic write order keeps the operation reproducible for tests
	// and audit logs even though store semantics don't require it.
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		decl, ok := byName[name]
		if !ok {
			return nil, poolerrors.New(poolerrors.CodeUnknownProperty, "unknown property "+name)
		}
		encoded, err := encodeOverride(overrides[name], decl.Type)
		if err != nil {
			return nil, err
		}
		if err := b.store.Set(ctx, configstore.Key(instance, name), encoded); err != nil {
			return nil, err
		}
	}

	return b.Resolve(ctx, instance, schema)
}

func encodeOverride(value any, t pluginloader.PropertyType) (string, error) {
	if s, ok := value.(string); ok {
		return DecodeJSONOverride(s, t), nil
	}
	if t.IsArray() {
		arr, ok := value.([]any)
		if !ok {
			return "", poolerrors.New(poolerrors.CodeTypePropertyMismatch, "expected array value")
		}
		return encodeArray(arr), nil
	}
	return encodeScalar(value), nil
}
