// Package pluginloader implements the Controller Plug-in Loader:
// discovery of controller files on a search path, hosting their code, and
// extracting per-class metadata. Plug-ins are hosted as goja-interpreted
// JavaScript: one JS object per class, one exported function per ABI
// operation, which keeps the loader's contract a narrow vtable while
// staying entirely in-process (no subprocess/IPC transport).
package pluginloader

import "fmt"

// Category is the declared controller category a file record is searched
// for.
type Category string

const (
	CategoryMotor         Category = "Motor"
	CategoryPseudoMotor    Category = "PseudoMotor"
	CategoryCounterTimer   Category = "CounterTimer"
	CategoryZeroD          Category = "ZeroD"
	CategoryOneD           Category = "OneD"
	CategoryTwoD           Category = "TwoD"
	CategoryPseudoCounter  Category = "PseudoCounter"
	CategoryCommunication  Category = "Communication"
	CategoryIORegister     Category = "IORegister"
	CategoryConstraint     Category = "Constraint"
)

// PropertyType is the closed set of scalar/array property types.
type PropertyType string

const (
	PropBool       PropertyType = "bool"
	PropInt32      PropertyType = "int32"
	PropFloat64    PropertyType = "float64"
	PropString     PropertyType = "string"
	PropBoolArray  PropertyType = "bool[]"
	PropInt32Array PropertyType = "int32[]"
	PropFloat64Array PropertyType = "float64[]"
	PropStringArray PropertyType = "string[]"
)

func (t PropertyType) IsArray() bool {
	switch t {
	case PropBoolArray, PropInt32Array, PropFloat64Array, PropStringArray:
		return true
	}
	return false
}

// PropertyDecl is one entry of a class's declared property schema.
type PropertyDecl struct {
	Name        string
	Type        PropertyType
	Description string
	HasDefault  bool
	Default     any
}

// ExtraAttributeAccess is the access mode of an extra-attribute entry.
type ExtraAttributeAccess string

const (
	AccessRead      ExtraAttributeAccess = "r"
	AccessReadWrite ExtraAttributeAccess = "rw"
)

// ExtraAttributeDecl is one entry of a class's extra-attribute table.
type ExtraAttributeDecl struct {
	Name   string
	Type   PropertyType
	Access ExtraAttributeAccess
}

// RoleTable holds the role counts/names for pseudo classes: a pseudo-motor class declares motor_roles and pseudo_motor_roles,
// a pseudo-counter class declares counter_roles and pseudo_counter_roles.
type RoleTable struct {
	MotorRoles        []string
	PseudoMotorRoles  []string
	CounterRoles      []string
	PseudoCounterRoles []string
}

// ClassMetadata is everything the loader extracts from a controller file
// for one class.
type ClassMetadata struct {
	Name         string
	Category     Category
	Description  string
	Gender       string
	Model        string
	Organization string

	Properties []PropertyDecl
	MaxDevice  int // 0 means UNDEFINED

	ExtraAttributes []ExtraAttributeDecl

	Roles RoleTable

	PredefinedValues map[string]int64 // IORegister only
}

// MaxDeviceUndefined is the sentinel MaxDevice value meaning "unbounded".
const MaxDeviceUndefined = 0

func (m ClassMetadata) Property(name string) (PropertyDecl, bool) {
	for _, p := range m.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return PropertyDecl{}, false
}

func (m ClassMetadata) String() string {
	return fmt.Sprintf("%s[%s]", m.Name, m.Category)
}
