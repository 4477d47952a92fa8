package obfuscate

import (
	"context"
	"strings"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotyped/internal/platform"
	"autotyped/internal/runner"
	"autotyped/internal/sequence"
)

func typed(t *testing.T, ops []*sequence.Op) string {
	t.Helper()
	f := platform.NewFake()
	require.NoError(t, runner.New(f, 0).Run(context.Background(), ops))
	return f.Typed()
}

// leaks reports literal text ops that carry two or more characters of
// secret contiguously.
func leaks(ops []*sequence.Op, secret string) []string {
	var out []string
	sequence.Walk(ops, func(op *sequence.Op) bool {
		if op.Kind != sequence.KindText {
			return true
		}
		r := []rune(op.Value)
		for i := 0; i+1 < len(r); i++ {
			if strings.Contains(secret, string(r[i:i+2])) {
				out = append(out, op.Value)
				break
			}
		}
		return true
	})
	return out
}

func newObfuscator(t *testing.T) *Obfuscator {
	t.Helper()
	o, err := New()
	require.NoError(t, err)
	return o
}

type fields map[string]string

func (f fields) ResolveField(_ context.Context, name string) (string, error) {
	return f[name], nil
}

func singleRunes(t *testing.T, ops []*sequence.Op) {
	t.Helper()
	sequence.Walk(ops, func(op *sequence.Op) bool {
		if op.Kind == sequence.KindText {
			assert.Equal(t, 1, len([]rune(op.Value)), "text op %q", op.Value)
		}
		return true
	})
}

func TestObfuscateTwoChars(t *testing.T) {
	o := newObfuscator(t)
	for i := 0; i < 200; i++ {
		ops, err := o.Obfuscate([]*sequence.Op{sequence.Text("ab")})
		require.NoError(t, err)
		assert.Equal(t, "ab", typed(t, ops))
		assert.Empty(t, leaks(ops, "ab"))
		singleRunes(t, ops)
	}
}

func TestObfuscateKeepsStructure(t *testing.T) {
	in, err := sequence.Parse("user{TAB}^(ctrl text)+x{DELAY 5}(grouped)")
	require.NoError(t, err)
	before := sequence.CloneTree(in)

	out, err := newObfuscator(t).Obfuscate(in)
	require.NoError(t, err)
	assert.True(t, sequence.Equal(before, in), "input must not change")

	require.Len(t, out, 6)
	assert.Equal(t, sequence.KindGroup, out[0].Kind)
	assert.True(t, sequence.Equal(in[1:2], out[1:2]), "keys pass through")
	assert.True(t, sequence.Equal(in[3:5], out[3:5]), "single modified chars and delays pass through")
	assert.Equal(t, sequence.KindGroup, out[5].Kind)
	assert.Equal(t, "user\t", typed(t, out[:2]))
	assert.Empty(t, leaks(out[:1], "user"))
	assert.Empty(t, leaks(out[5:], "grouped"))

	// text under a held modifier gets no decoys but is split per character
	ctrl := out[2]
	assert.Equal(t, sequence.Ctrl, ctrl.Mods)
	assert.Empty(t, leaks(out[2:3], "ctrl text"))
	singleRunes(t, out[2:3])
	var n int
	sequence.Walk(out[2:3], func(op *sequence.Op) bool {
		if op.Kind == sequence.KindKey {
			n++
		}
		return true
	})
	assert.Zero(t, n, "no shift+LEFT selection under ctrl")
}

func TestObfuscateModifiedPlaceholder(t *testing.T) {
	for _, tmpl := range []string{"+{PASSWORD}", "^(x{PASSWORD})", "%(+({PASSWORD}))"} {
		t.Run(tmpl, func(t *testing.T) {
			parsed, err := sequence.Parse(tmpl)
			require.NoError(t, err)
			in, err := sequence.Resolve(context.Background(), parsed, fields{"PASSWORD": "hunter2"})
			require.NoError(t, err)

			out, err := newObfuscator(t).Obfuscate(in)
			require.NoError(t, err)
			assert.Empty(t, leaks(out, "hunter2"), "got %s", sequence.Describe(out, true))
			singleRunes(t, out)
			require.Len(t, out, 1)
			assert.Equal(t, in[0].Mods, out[0].Mods)
		})
	}
}

func TestObfuscateUnresolved(t *testing.T) {
	in, err := sequence.Parse("a{PASSWORD}")
	require.NoError(t, err)
	_, err = newObfuscator(t).Obfuscate(in)
	assert.ErrorIs(t, err, ErrUnresolved)
}

func TestObfuscateRandomized(t *testing.T) {
	in := []*sequence.Op{sequence.Text("correct horse battery staple")}
	o := newObfuscator(t)
	a, err := o.Obfuscate(in)
	require.NoError(t, err)
	b, err := o.Obfuscate(in)
	require.NoError(t, err)
	assert.False(t, sequence.Equal(a, b))

	var seed [32]byte
	seed[0] = 7
	x, _ := NewWithSeed(seed).Obfuscate(in)
	y, _ := NewWithSeed(seed).Obfuscate(in)
	assert.True(t, sequence.Equal(x, y))
}

func TestObfuscateDecoyBounds(t *testing.T) {
	o := newObfuscator(t)
	o.MinDecoys, o.MaxDecoys = 4, 4
	out, err := o.Obfuscate([]*sequence.Op{sequence.Text("z")})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Len(t, out[0].Ops, 6)
	sel := out[0].Ops[4]
	assert.Equal(t, sequence.KeyLeft, sel.Value)
	assert.Equal(t, 4, sel.Repeat)
	assert.Equal(t, sequence.Shift, sel.Mods)
}

func TestPropertyNetTextPreserved(t *testing.T) {
	o := newObfuscator(t)
	prop := func(s string) bool {
		ops, err := o.Obfuscate([]*sequence.Op{sequence.Text(s)})
		if err != nil {
			return false
		}
		f := platform.NewFake()
		if err := runner.New(f, 0).Run(context.Background(), ops); err != nil {
			return false
		}
		return f.Typed() == s && len(leaks(ops, s)) == 0
	}
	require.NoError(t, quick.Check(prop, &quick.Config{MaxCount: 300}))
}
