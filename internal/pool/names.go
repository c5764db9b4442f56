package pool

import (
	"fmt"
	"strings"

	"github.com/r3e-network/pool-orchestrator/internal/element"
)

// typePrefix maps an element type to the prefix segment of its full name.
func typePrefix(t element.Type) string {
	switch t {
	case element.TypeMotor:
		return "motor"
	case element.TypePseudoMotor:
		return "pm"
	case element.TypeCounterTimer:
		return "expchan/ct"
	case element.TypeZeroD:
		return "expchan/0d"
	case element.TypeOneD:
		return "expchan/1d"
	case element.TypeTwoD:
		return "expchan/2d"
	case element.TypePseudoCounter:
		return "expchan/pc"
	case element.TypeMotorGroup:
		return "mg"
	case element.TypeMeasurementGroup:
		return "mntgrp"
	case element.TypeCommunication:
		return "comch"
	case element.TypeIORegister:
		return "ioregister"
	case element.TypeController:
		return "controller"
	}
	return strings.ToLower(string(t))
}

// axisFullName builds the ⟨type-prefix⟩/⟨instance⟩/⟨axis⟩ full name for a
// per-axis element.
func axisFullName(t element.Type, instance string, axis int) string {
	return fmt.Sprintf("%s/%s/%d", typePrefix(t), instance, axis)
}

// syntheticFullName builds the full name for elements with no axis (groups,
// controllers).
func syntheticFullName(t element.Type, name string) string {
	return fmt.Sprintf("%s/%s", typePrefix(t), name)
}

// instrumentFullName renders an instrument's external name:
// ⟨parent-path⟩/⟨leaf⟩(⟨type⟩).
func instrumentFullName(path, instrType string) string {
	return fmt.Sprintf("%s(%s)", path, instrType)
}

// userFullName is the derived display string: "name (full_name)".
func userFullName(name, fullName string) string {
	return fmt.Sprintf("%s (%s)", name, fullName)
}

// parentPath returns the instrument path one level up from path, or ""
// when path is a root-level instrument ("/slit" -> "").
func parentPath(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return ""
	}
	return path[:idx]
}
