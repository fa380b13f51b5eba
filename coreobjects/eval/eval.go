// Package eval implements the small expression language used by property
// references, validators, coercers, and suggested-value expressions (C4).
// Rather than hand-rolling a parser, the DAQ-specific reference syntax
// (`%name`, `name:value`, `name:selectedValue`, `name:propertyNames`) is
// translated into calls against a github.com/expr-lang/expr environment,
// which then supplies arithmetic, comparison, logical, and list
// construction/indexing for free. expr-lang/expr is grounded on
// ClusterCockpit-cc-backend's internal/tagger/classifyJob.go, the pack's
// example of a small, sandboxed, per-record expression evaluator.
package eval

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/daqkit/daqrun/internal/daqerr"
)

// PropertyOwner is the narrow view an EvalValue needs of the property object
// it is bound to. coreobjects.PropertyObject implements it; eval does not
// import coreobjects to avoid a cycle (§9 "break with a single owner
// direction").
type PropertyOwner interface {
	EvalPropertyValue(name string) (interface{}, error)
	EvalSelectedValue(name string) (interface{}, error)
	EvalPropertyNames() ([]string, error)
}

var (
	bareReferenceRe = regexp.MustCompile(`^%([A-Za-z_][A-Za-z0-9_.]*)$`)
	referenceRe     = regexp.MustCompile(`%([A-Za-z_][A-Za-z0-9_.]*)`)
	accessorRe      = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_.]*):(value|selectedValue|propertyNames)\b`)
)

// Value is a deferred-evaluation expression bound (lazily) to an owning
// property object. A cloned Value carries the source text and rebinds to a
// new owner (§4.3 "EvalValue").
type Value struct {
	source    string
	program   *vm.Program
	translated string
}

// Parse compiles source once. The result can be bound to any number of
// owners via Eval/EvalBool.
func Parse(source string) (*Value, error) {
	translated := translate(source)

	program, err := expr.Compile(translated, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, daqerr.Wrap(daqerr.ParseFailed, err, fmt.Sprintf("invalid expression %q", source))
	}

	return &Value{source: source, program: program, translated: translated}, nil
}

// Source returns the original, untranslated expression text.
func (v *Value) Source() string { return v.source }

// translate rewrites the DAQ reference grammar into expr-lang call syntax:
//
//	%Other                  -> Ref("Other")
//	Other:value             -> Ref("Other")
//	Other:selectedValue     -> RefSelected("Other")
//	Other:propertyNames     -> RefNames("Other")
func translate(source string) string {
	out := accessorRe.ReplaceAllStringFunc(source, func(m string) string {
		parts := accessorRe.FindStringSubmatch(m)
		name, accessor := parts[1], parts[2]
		switch accessor {
		case "value":
			return fmt.Sprintf("Ref(%q)", name)
		case "selectedValue":
			return fmt.Sprintf("RefSelected(%q)", name)
		case "propertyNames":
			return fmt.Sprintf("RefNames(%q)", name)
		}
		return m
	})

	out = referenceRe.ReplaceAllStringFunc(out, func(m string) string {
		parts := referenceRe.FindStringSubmatch(m)
		return fmt.Sprintf("Ref(%q)", parts[1])
	})

	return out
}

// BareReference reports whether source is exactly a single `%name`
// reference with nothing else around it — the shape a ReferenceProperty
// uses to name its delegation target (§4.3 "Reference property").
func (v *Value) BareReference() (string, bool) {
	m := bareReferenceRe.FindStringSubmatch(strings.TrimSpace(v.source))
	if m == nil {
		return "", false
	}
	return m[1], true
}

func env(owner PropertyOwner) map[string]interface{} {
	return map[string]interface{}{
		"Ref": func(name string) interface{} {
			v, err := owner.EvalPropertyValue(name)
			if err != nil {
				panic(err)
			}
			return v
		},
		"RefSelected": func(name string) interface{} {
			v, err := owner.EvalSelectedValue(name)
			if err != nil {
				panic(err)
			}
			return v
		},
		"RefNames": func(name string) interface{} {
			v, err := owner.EvalPropertyNames()
			if err != nil {
				panic(err)
			}
			return v
		},
	}
}

// Eval resolves references against owner and returns the raw result.
// Resolution happens freshly on every call (§4.3 "computed lazily on every
// read unless cached"); owner is never retained.
func (v *Value) Eval(owner PropertyOwner) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = daqerr.Wrap(daqerr.CalcFailed, e, "evaluation failed")
			} else {
				err = daqerr.Newf(daqerr.CalcFailed, "evaluation panicked: %v", r)
			}
		}
	}()

	out, runErr := expr.Run(v.program, env(owner))
	if runErr != nil {
		return nil, daqerr.Wrap(daqerr.CalcFailed, runErr, fmt.Sprintf("evaluating %q", v.source))
	}
	return out, nil
}

// EvalBool evaluates and coerces the result to bool, for validator
// expressions.
func (v *Value) EvalBool(owner PropertyOwner) (bool, error) {
	out, err := v.Eval(owner)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, daqerr.Newf(daqerr.CalcFailed, "expression %q did not evaluate to bool (got %T)", v.source, out)
	}
	return b, nil
}

// Clone rebinds the same compiled program under a new owner reference; the
// caller supplies the owner at each Eval call, so Clone here is just a
// cheap copy of the immutable program/source pair (§4.3 "rebinds to a new
// owner").
func (v *Value) Clone() *Value {
	return &Value{source: v.source, program: v.program, translated: v.translated}
}
