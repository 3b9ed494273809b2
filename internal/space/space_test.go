package space

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubResolver returns canned values and records the names it was asked for.
type stubResolver struct {
	values map[string]Value
	fixed  map[string]bool
	err    error
	asked  []string
}

func (r *stubResolver) Resolve(_ context.Context, name string, _ ParameterSpec) (Value, bool, error) {
	r.asked = append(r.asked, name)
	if r.err != nil {
		return Value{}, false, r.err
	}
	return r.values[name], r.fixed[name], nil
}

func TestDefine_PreservesOrder(t *testing.T) {
	s := New()
	require.NoError(t, s.Define("waterTemp", Continuous{Min: 80, Max: 95, Step: 1}))
	require.NoError(t, s.Define("brewEnv", Categorical{Choices: []string{"room", "refrigerator"}}))
	require.NoError(t, s.Define("clickCount", Continuous{Min: 16, Max: 24, Step: 1}))

	assert.Equal(t, []string{"waterTemp", "brewEnv", "clickCount"}, s.Names())
	assert.Equal(t, 3, s.Len())
}

func TestDefine_RejectsNonDividingStep(t *testing.T) {
	s := New()
	err := s.Define("beanRatio", Continuous{Min: 0.053, Max: 0.1, Step: 0.01})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSearchSpace)
	assert.Contains(t, err.Error(), "beanRatio")
	assert.Equal(t, 0, s.Len(), "failed definitions are not registered")
}

func TestDefine_TruncatedRanges(t *testing.T) {
	s := New(WithTruncatedRanges())
	require.NoError(t, s.Define("beanRatio", Continuous{Min: 0.053, Max: 0.1, Step: 0.01}))

	spec, err := s.Lookup("beanRatio")
	require.NoError(t, err)
	c := spec.(Continuous)
	assert.Equal(t, 0.093, c.Max)
	assert.Equal(t, 5, c.Len())
}

func TestDefine_Errors(t *testing.T) {
	s := New()
	require.NoError(t, s.Define("a", Continuous{Min: 0, Max: 1, Step: 1}))

	tests := []struct {
		name  string
		param string
		spec  ParameterSpec
	}{
		{"empty name", "  ", Continuous{Min: 0, Max: 1, Step: 1}},
		{"duplicate", "a", Continuous{Min: 0, Max: 1, Step: 1}},
		{"nil spec", "b", nil},
		{"nil pointer", "c", (*Continuous)(nil)},
		{"empty choices", "d", Categorical{}},
		{"zero step", "e", Continuous{Min: 0, Max: 1, Step: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Define(tt.param, tt.spec)
			assert.ErrorIs(t, err, ErrInvalidSearchSpace)
		})
	}
}

func TestDefine_PointerSpec(t *testing.T) {
	s := New()
	choices := []string{"room", "refrigerator"}
	require.NoError(t, s.Define("brewEnv", &Categorical{Choices: choices}))

	choices[0] = "mutated"
	spec, err := s.Lookup("brewEnv")
	require.NoError(t, err)
	assert.Equal(t, []string{"room", "refrigerator"}, spec.(Categorical).Choices, "choices are copied")
}

func TestDefine_NormalizesNames(t *testing.T) {
	s := New()
	// "ガ" as base + combining voiced mark (NFD) and as a single code point (NFC).
	nfd := "\u30ab\u3099"
	nfc := "\u30ac"
	require.NoError(t, s.Define(nfd, Continuous{Min: 0, Max: 1, Step: 1}))

	_, err := s.Lookup(nfc)
	assert.NoError(t, err)
	assert.ErrorIs(t, s.Define(nfc, Continuous{Min: 0, Max: 1, Step: 1}), ErrInvalidSearchSpace)
}

func TestLookup_Unknown(t *testing.T) {
	s := New()
	_, err := s.Lookup("missing")
	assert.ErrorIs(t, err, ErrUnknownParameter)
}

func TestSample_ValidatesResolvedValues(t *testing.T) {
	s := New(WithTruncatedRanges()).
		MustDefine("waterTemp", Continuous{Min: 80, Max: 95, Step: 1}).
		MustDefine("beanRatio", Continuous{Min: 0.053, Max: 0.1, Step: 0.01}).
		MustDefine("brewEnv", Categorical{Choices: []string{"room", "refrigerator"}})
	ctx := context.Background()

	tests := []struct {
		name    string
		param   string
		value   Value
		fixed   bool
		wantErr error
	}{
		{"on grid", "waterTemp", Number(86), false, nil},
		{"off grid proposal", "waterTemp", Number(86.5), false, ErrOutOfDomain},
		{"off grid seed", "beanRatio", Number(0.08), true, nil},
		{"seed out of range", "beanRatio", Number(0.5), true, ErrOutOfDomain},
		{"choice", "brewEnv", Choice("refrigerator"), false, nil},
		{"unknown choice", "brewEnv", Choice("freezer"), false, ErrOutOfDomain},
		{"wrong kind", "brewEnv", Number(1), false, ErrOutOfDomain},
		{"unknown parameter", "grind", Number(1), false, ErrUnknownParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &stubResolver{
				values: map[string]Value{tt.param: tt.value},
				fixed:  map[string]bool{tt.param: tt.fixed},
			}
			v, err := s.Sample(ctx, tt.param, r)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.value.Equal(v))
		})
	}
}

func TestSample_UnknownParameterDoesNotResolve(t *testing.T) {
	s := New().MustDefine("a", Continuous{Min: 0, Max: 1, Step: 1})
	r := &stubResolver{}

	_, err := s.Sample(context.Background(), "b", r)
	assert.ErrorIs(t, err, ErrUnknownParameter)
	assert.Empty(t, r.asked)
}

func TestSample_PropagatesResolverError(t *testing.T) {
	s := New().MustDefine("a", Continuous{Min: 0, Max: 1, Step: 1})
	boom := errors.New("boom")

	_, err := s.Sample(context.Background(), "a", &stubResolver{err: boom})
	assert.ErrorIs(t, err, boom)
}
