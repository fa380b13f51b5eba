package eval

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daqkit/daqrun/internal/daqerr"
)

type fakeOwner struct {
	values    map[string]interface{}
	selected  map[string]interface{}
	propNames []string
}

func (f *fakeOwner) EvalPropertyValue(name string) (interface{}, error) {
	v, ok := f.values[name]
	if !ok {
		return nil, daqerr.Newf(daqerr.NotFound, "no such property %q", name)
	}
	return v, nil
}

func (f *fakeOwner) EvalSelectedValue(name string) (interface{}, error) {
	v, ok := f.selected[name]
	if !ok {
		return nil, daqerr.Newf(daqerr.NotFound, "no selection for %q", name)
	}
	return v, nil
}

func (f *fakeOwner) EvalPropertyNames() ([]string, error) {
	return f.propNames, nil
}

func TestBareReferenceRewritesAndEvaluates(t *testing.T) {
	v, err := Parse("%Gain")
	require.NoError(t, err)

	owner := &fakeOwner{values: map[string]interface{}{"Gain": 2.5}}
	result, err := v.Eval(owner)
	require.NoError(t, err)
	require.Equal(t, 2.5, result)

	name, ok := v.BareReference()
	require.True(t, ok)
	require.Equal(t, "Gain", name)
}

func TestAccessorSyntaxTranslatesAllThreeForms(t *testing.T) {
	owner := &fakeOwner{
		values:    map[string]interface{}{"Gain": int(4)},
		selected:  map[string]interface{}{"Mode": "Fast"},
		propNames: []string{"Gain", "Mode"},
	}

	valueExpr, err := Parse("Gain:value")
	require.NoError(t, err)
	v, err := valueExpr.Eval(owner)
	require.NoError(t, err)
	require.Equal(t, int(4), v)

	selExpr, err := Parse(`Mode:selectedValue`)
	require.NoError(t, err)
	s, err := selExpr.Eval(owner)
	require.NoError(t, err)
	require.Equal(t, "Fast", s)

	namesExpr, err := Parse("Mode:propertyNames")
	require.NoError(t, err)
	n, err := namesExpr.Eval(owner)
	require.NoError(t, err)
	require.Equal(t, []string{"Gain", "Mode"}, n)
}

func TestArithmeticOverReferences(t *testing.T) {
	v, err := Parse("%A + %B * 2")
	require.NoError(t, err)

	owner := &fakeOwner{values: map[string]interface{}{"A": 1, "B": 3}}
	result, err := v.Eval(owner)
	require.NoError(t, err)
	require.Equal(t, 7, result)
}

func TestEvalBoolValidatorExpression(t *testing.T) {
	v, err := Parse("%Gain > 0")
	require.NoError(t, err)

	owner := &fakeOwner{values: map[string]interface{}{"Gain": 2}}
	ok, err := v.EvalBool(owner)
	require.NoError(t, err)
	require.True(t, ok)

	owner2 := &fakeOwner{values: map[string]interface{}{"Gain": -1}}
	ok2, err := v.EvalBool(owner2)
	require.NoError(t, err)
	require.False(t, ok2)
}

func TestEvalWrapsMissingReferenceAsCalcFailed(t *testing.T) {
	v, err := Parse("%Missing")
	require.NoError(t, err)

	_, err = v.Eval(&fakeOwner{values: map[string]interface{}{}})
	require.ErrorIs(t, err, daqerr.Of(daqerr.CalcFailed))
}

func TestCloneRebindsToNewOwner(t *testing.T) {
	v, err := Parse("%X")
	require.NoError(t, err)
	clone := v.Clone()

	owner := &fakeOwner{values: map[string]interface{}{"X": "hello"}}
	result, err := clone.Eval(owner)
	require.NoError(t, err)
	require.Equal(t, "hello", result)
	require.Equal(t, v.Source(), clone.Source())
}

func TestParseInvalidExpressionFails(t *testing.T) {
	_, err := Parse("%A +++ ")
	require.ErrorIs(t, err, daqerr.Of(daqerr.ParseFailed))
}
