package dynlink

import (
	"errors"
	"fmt"

	"github.com/ZenLiuCN/dynlink/types"
)

var (
	// ErrMissingSymbol occurs when can't found a global.
	ErrMissingSymbol = errors.New("missing symbol")
	// ErrTruncated occurs when a container ends before the data its descriptor points at.
	ErrTruncated = errors.New("truncated object file")
	// ErrBadRelocation occurs when a relocation patches outside of the unit code.
	ErrBadRelocation = errors.New("relocation outside of code")
)

// ContainerNotFound occurs when a file can not be resolved against the search path.
type ContainerNotFound struct {
	Name string
}

func (e *ContainerNotFound) Error() string {
	return fmt.Sprintf("Cannot find file %s.", e.Name)
}

// NotAnObjectContainer occurs when a file does not start with a known magic number.
type NotAnObjectContainer struct {
	File string
}

func (e *NotAnObjectContainer) Error() string {
	return fmt.Sprintf("%s is not a bytecode object file.", e.File)
}

// InconsistentAssumptions occurs when two units were compiled against different versions of an interface.
type InconsistentAssumptions struct {
	Interface string
	First     string
	Second    string
}

func (e *InconsistentAssumptions) Error() string {
	return fmt.Sprintf("The files %s and %s disagree over interface %s.", e.First, e.Second, e.Interface)
}

// ExecutionFault occurs when the initialization code of a unit raises.
type ExecutionFault struct {
	Unit        string
	Description string
	Backtrace   string
	Cause       error
}

func (e *ExecutionFault) Error() string {
	return fmt.Sprintf("Exception while loading %s: %s", e.Unit, e.Description)
}

func (e *ExecutionFault) Unwrap() error { return e.Cause }

// MissingSharedLibrary occurs when an archive requires a shared library that can not be opened.
type MissingSharedLibrary struct {
	Name   string
	Reason string
}

func (e *MissingSharedLibrary) Error() string {
	return fmt.Sprintf("Cannot load shared library %s.\nReason: %s.", e.Name, e.Reason)
}

// UndefinedGlobal occurs when a relocation references a global no loaded unit defines.
type UndefinedGlobal struct {
	Name string
	Unit string
}

func (e *UndefinedGlobal) Error() string {
	return fmt.Sprintf("Reference to undefined global %s in %s.", e.Name, e.Unit)
}

// UnavailablePrimitive occurs when a relocation references an unknown primitive.
type UnavailablePrimitive struct {
	Name string
}

func (e *UnavailablePrimitive) Error() string {
	return fmt.Sprintf("The external function %s is not available.", e.Name)
}

// UnboundName occurs when a directive names a value the environment does not know.
type UnboundName struct {
	Name string
}

func (e *UnboundName) Error() string {
	return fmt.Sprintf("Unbound value %s.", e.Name)
}

// WrongPrinterType occurs when a value has none of the printer shapes.
type WrongPrinterType struct {
	Name string
	Type types.Type
}

func (e *WrongPrinterType) Error() string {
	return fmt.Sprintf("%s has a wrong type for a printing function.\nIts type is: %s", e.Name, e.Type)
}

// NotTraceable occurs when a value can not be instrumented.
type NotTraceable struct {
	Name   string
	Reason string
}

func (e *NotTraceable) Error() string {
	return fmt.Sprintf("%s %s.", e.Name, e.Reason)
}

// AlreadyTraced occurs when tracing a closure that already has a trace record.
type AlreadyTraced struct {
	Name       string
	Registered string
}

func (e *AlreadyTraced) Error() string {
	if e.Registered != e.Name {
		return fmt.Sprintf("%s is already traced (under the name %s).", e.Name, e.Registered)
	}
	return fmt.Sprintf("%s is already traced.", e.Name)
}

// NotCurrentlyTraced occurs when untracing a path without a trace record.
type NotCurrentlyTraced struct {
	Name string
}

func (e *NotCurrentlyTraced) Error() string {
	return fmt.Sprintf("%s was not traced.", e.Name)
}

// NoSuchPrinter occurs when removing a printer that is not installed.
type NoSuchPrinter struct {
	Name string
}

func (e *NoSuchPrinter) Error() string {
	return fmt.Sprintf("No printer named %s.", e.Name)
}
