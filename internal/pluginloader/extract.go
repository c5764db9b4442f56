package pluginloader

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/r3e-network/pool-orchestrator/internal/poolerrors"
)

// extractClasses reads the PoolControllerClasses global array a loaded
// controller file must define and converts each entry matching category
// into a ClassMetadata plus a retained reference to its JS object for
// later instantiation.
func extractClasses(vm *goja.Runtime, category Category) (map[string]ClassMetadata, map[string]goja.Value, error) {
	raw := vm.Get("PoolControllerClasses")
	if raw == nil || goja.IsUndefined(raw) {
		return nil, nil, fmt.Errorf("controller file does not define PoolControllerClasses")
	}
	arr, ok := raw.(*goja.Object)
	if !ok {
		return nil, nil, fmt.Errorf("PoolControllerClasses is not an array")
	}

	length := int64(0)
	if lv := arr.Get("length"); lv != nil {
		length = lv.ToInteger()
	}

	classes := make(map[string]ClassMetadata)
	objects := make(map[string]goja.Value)

	for i := int64(0); i < length; i++ {
		entry := arr.Get(fmt.Sprintf("%d", i))
		obj, ok := entry.(*goja.Object)
		if !ok {
			continue
		}
		name := stringField(obj, "name")
		if name == "" {
			return nil, nil, fmt.Errorf("class at index %d missing required symbol %q", i, "name")
		}
		classCategory := Category(stringField(obj, "category"))
		if classCategory != category {
			continue
		}

		meta := ClassMetadata{
			Name:         name,
			Category:     classCategory,
			Description:  stringField(obj, "description"),
			Gender:       defaultString(stringField(obj, "gender"), "Unknown"),
			Model:        defaultString(stringField(obj, "model"), "Unknown"),
			Organization: defaultString(stringField(obj, "organization"), "Unknown"),
			MaxDevice:    intField(obj, "maxDevice", MaxDeviceUndefined),
		}

		props, err := propertySchema(obj)
		if err != nil {
			return nil, nil, fmt.Errorf("class %q: %w", name, err)
		}
		meta.Properties = props
		attrs, err := extraAttributeTable(obj)
		if err != nil {
			return nil, nil, fmt.Errorf("class %q: %w", name, err)
		}
		meta.ExtraAttributes = attrs
		meta.Roles = roleTable(obj)
		meta.PredefinedValues = predefinedValues(obj)

		classes[name] = meta
		objects[name] = obj
	}

	if len(classes) == 0 {
		return nil, nil, fmt.Errorf("no class matching category %q found", category)
	}
	return classes, objects, nil
}

func stringField(obj *goja.Object, name string) string {
	v := obj.Get(name)
	if v == nil || goja.IsUndefined(v) {
		return ""
	}
	return v.String()
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intField(obj *goja.Object, name string, def int) int {
	v := obj.Get(name)
	if v == nil || goja.IsUndefined(v) {
		return def
	}
	return int(v.ToInteger())
}

func propertySchema(obj *goja.Object) ([]PropertyDecl, error) {
	raw := obj.Get("properties")
	if raw == nil || goja.IsUndefined(raw) {
		return nil, nil
	}
	arr, ok := raw.(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("properties is not an array")
	}
	length := arr.Get("length").ToInteger()
	decls := make([]PropertyDecl, 0, length)
	for i := int64(0); i < length; i++ {
		entry, ok := arr.Get(fmt.Sprintf("%d", i)).(*goja.Object)
		if !ok {
			continue
		}
		decl := PropertyDecl{
			Name:        stringField(entry, "name"),
			Type:        PropertyType(stringField(entry, "type")),
			Description: stringField(entry, "description"),
		}
		if def := entry.Get("default"); def != nil && !goja.IsUndefined(def) {
			decl.HasDefault = true
			decl.Default = def.Export()
			if err := validateDefault(decl); err != nil {
				return nil, err
			}
		}
		decls = append(decls, decl)
	}
	return decls, nil
}

func validateDefault(decl PropertyDecl) error {
	switch decl.Type {
	case PropBool:
		if _, ok := decl.Default.(bool); !ok {
			return poolerrors.New(poolerrors.CodeInvalidPropertyDefault,
				fmt.Sprintf("invalid default for property %q: want bool", decl.Name))
		}
	case PropInt32, PropFloat64:
		switch decl.Default.(type) {
		case int64, float64, int:
		default:
			return poolerrors.New(poolerrors.CodeInvalidPropertyDefault,
				fmt.Sprintf("invalid default for property %q: want number", decl.Name))
		}
	case PropString:
		if _, ok := decl.Default.(string); !ok {
			return poolerrors.New(poolerrors.CodeInvalidPropertyDefault,
				fmt.Sprintf("invalid default for property %q: want string", decl.Name))
		}
	case PropBoolArray, PropInt32Array, PropFloat64Array, PropStringArray:
		if _, ok := decl.Default.([]any); !ok {
			return poolerrors.New(poolerrors.CodeInvalidPropertyDefault,
				fmt.Sprintf("invalid default for property %q: want array", decl.Name))
		}
	default:
		return poolerrors.New(poolerrors.CodeUnknownPropertyType,
			fmt.Sprintf("unknown property type %q for %q", decl.Type, decl.Name))
	}
	return nil
}

func extraAttributeTable(obj *goja.Object) ([]ExtraAttributeDecl, error) {
	raw := obj.Get("extraAttributes")
	arr, ok := raw.(*goja.Object)
	if !ok {
		return nil, nil
	}
	length := arr.Get("length").ToInteger()
	out := make([]ExtraAttributeDecl, 0, length)
	for i := int64(0); i < length; i++ {
		entry, ok := arr.Get(fmt.Sprintf("%d", i)).(*goja.Object)
		if !ok {
			continue
		}
		name := stringField(entry, "name")
		if name == "" {
			return nil, poolerrors.New(poolerrors.CodeInvalidExtraAttributeDecl,
				fmt.Sprintf("extra attribute at index %d missing name", i))
		}
		typ := PropertyType(stringField(entry, "type"))
		switch typ {
		case PropBool, PropInt32, PropFloat64, PropString,
			PropBoolArray, PropInt32Array, PropFloat64Array, PropStringArray:
		default:
			return nil, poolerrors.New(poolerrors.CodeInvalidExtraAttributeDecl,
				fmt.Sprintf("extra attribute %q: unknown type %q", name, typ))
		}
		access := ExtraAttributeAccess(defaultString(stringField(entry, "access"), string(AccessRead)))
		if access != AccessRead && access != AccessReadWrite {
			return nil, poolerrors.New(poolerrors.CodeInvalidExtraAttributeDecl,
				fmt.Sprintf("extra attribute %q: access must be r or rw, got %q", name, access))
		}
		out = append(out, ExtraAttributeDecl{Name: name, Type: typ, Access: access})
	}
	return out, nil
}

func roleTable(obj *goja.Object) RoleTable {
	raw := obj.Get("roles")
	rolesObj, ok := raw.(*goja.Object)
	if !ok {
		return RoleTable{}
	}
	return RoleTable{
		MotorRoles:         stringArrayField(rolesObj, "motorRoles"),
		PseudoMotorRoles:   stringArrayField(rolesObj, "pseudoMotorRoles"),
		CounterRoles:       stringArrayField(rolesObj, "counterRoles"),
		PseudoCounterRoles: stringArrayField(rolesObj, "pseudoCounterRoles"),
	}
}

func stringArrayField(obj *goja.Object, name string) []string {
	raw := obj.Get(name)
	arr, ok := raw.(*goja.Object)
	if !ok {
		return nil
	}
	length := arr.Get("length").ToInteger()
	out := make([]string, 0, length)
	for i := int64(0); i < length; i++ {
		out = append(out, arr.Get(fmt.Sprintf("%d", i)).String())
	}
	return out
}

func predefinedValues(obj *goja.Object) map[string]int64 {
	raw := obj.Get("predefinedValues")
	pvObj, ok := raw.(*goja.Object)
	if !ok {
		return nil
	}
	out := make(map[string]int64)
	for _, key := range pvObj.Keys() {
		out[key] = pvObj.Get(key).ToInteger()
	}
	return out
}
