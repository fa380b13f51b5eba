package coreobjects

import (
	"github.com/daqkit/daqrun/coreobjects/eval"
	"github.com/daqkit/daqrun/valuekernel"
)

// Property is the metadata describing one named attribute of a
// PropertyObject (§4.3). Coercer/Validator/OnRead/OnWrite are optional
// EvalValue expressions or callbacks; a property with neither behaves as a
// plain typed slot.
type Property struct {
	Name      string
	ValueType valuekernel.CoreType

	// ElementType constrains homogeneity for CoreList/CoreDict valued
	// properties (§4.3 step 7).
	ElementType valuekernel.CoreType

	// Default supplies the value used when no override is stored and on
	// Clear. It is called fresh each time so object-type defaults clone
	// rather than alias.
	Default func() valuekernel.Value

	ReadOnly bool

	// Selection holds the candidate list for selection properties;
	// GetSelectionValue resolves the stored index/key against it.
	Selection *valuekernel.List

	Coercer   *eval.Value
	Validator *eval.Value

	// OnRead/OnWrite mirror the on-read/on-write event hooks in §4.3; OnRead
	// may substitute the value returned to the caller, OnWrite observes (and
	// may veto via error) a write after validation.
	OnRead  func(owner *PropertyObject, value valuekernel.Value) (valuekernel.Value, error)
	OnWrite func(owner *PropertyObject, value valuekernel.Value) error

	// ReferencedProperty holds the parsed `%target` expression for a
	// reference property (§4.3 step 2); nil for ordinary properties.
	ReferencedProperty *eval.Value

	// Callable, when set, marks this as a func/proc-valued property; Arity
	// is the required parameter count and Const controls whether it may be
	// invoked on a locked component (§4.3 "Callable properties").
	Callable bool
	Arity    int
	Const    bool
}

// referenceTarget returns the bare property name this property delegates to,
// if it is a reference property.
func (p *Property) referenceTarget() (string, bool) {
	if p.ReferencedProperty == nil {
		return "", false
	}
	return p.ReferencedProperty.BareReference()
}
