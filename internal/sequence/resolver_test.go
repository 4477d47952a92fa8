package sequence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMissing = errors.New("missing")

type fields map[string]string

func (f fields) ResolveField(_ context.Context, name string) (string, error) {
	if v, ok := f[name]; ok {
		return v, nil
	}
	return "", errMissing
}

func TestResolveDefaultSequence(t *testing.T) {
	ops, err := Parse("{USERNAME}{TAB}{PASSWORD}{ENTER}")
	require.NoError(t, err)

	got, err := Resolve(context.Background(), ops, fields{"USERNAME": "bob", "PASSWORD": "pw1"})
	require.NoError(t, err)

	want := []*Op{Text("bob"), Key(KeyTab), Text("pw1"), Key(KeyEnter)}
	assert.True(t, Equal(want, got), "got %s", Describe(got, true))
	assert.Empty(t, Placeholders(got))
	assert.Equal(t, []string{"USERNAME", "PASSWORD"}, Placeholders(ops), "input tree must not change")
}

func TestResolveKeepsStructure(t *testing.T) {
	ops, err := Parse("+({S:PIN 2}x){DELAY 5}^{USERNAME}")
	require.NoError(t, err)

	got, err := Resolve(context.Background(), ops, fields{"S:PIN": "12", "USERNAME": "a"})
	require.NoError(t, err)

	want := []*Op{
		Group(Shift, Text("1212"), Text("x")),
		{Kind: KindDelay, Ms: 5},
		withMods(Text("a"), Ctrl),
	}
	assert.True(t, Equal(want, got), "got %s", Describe(got, true))
}

func TestResolveErrors(t *testing.T) {
	ops, err := Parse("{USERNAME}({NOPE})")
	require.NoError(t, err)

	_, err = Resolve(context.Background(), ops, fields{"USERNAME": "bob"})
	require.Error(t, err)

	var re *ResolveError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "NOPE", re.Field)
	assert.ErrorIs(t, err, errMissing)
}

func TestResolveCancelled(t *testing.T) {
	ops, err := Parse("{USERNAME}")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Resolve(ctx, ops, fields{"USERNAME": "bob"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveDeterministic(t *testing.T) {
	ops, err := Parse("{USERNAME}{TAB}{PASSWORD}{DT_SIMPLE}")
	require.NoError(t, err)

	fixed := time.Date(2024, 3, 9, 7, 5, 1, 0, time.Local)
	r := Resolver{Now: func() time.Time { return fixed }}
	src := fields{"USERNAME": "u", "PASSWORD": "p"}

	a, err := r.Resolve(context.Background(), ops, src)
	require.NoError(t, err)
	b, err := r.Resolve(context.Background(), ops, src)
	require.NoError(t, err)
	assert.True(t, Equal(a, b))
}

func TestResolveDates(t *testing.T) {
	fixed := time.Date(2024, 3, 9, 7, 5, 1, 0, time.UTC)
	r := Resolver{Now: func() time.Time { return fixed }}

	ops, err := Parse("{DT_UTC_SIMPLE}|{dt_utc_year}-{DT_UTC_MONTH}-{DT_UTC_DAY} {DT_UTC_HOUR}:{DT_UTC_MINUTE}:{DT_UTC_SECOND}")
	require.NoError(t, err)
	got, err := r.Resolve(context.Background(), ops, fields{})
	require.NoError(t, err)

	var s string
	for _, op := range got {
		s += op.Value
	}
	assert.Equal(t, "20240309070501|2024-03-09 07:05:01", s)

	local, err := Parse("{DT_YEAR}")
	require.NoError(t, err)
	got, err = r.Resolve(context.Background(), local, fields{})
	require.NoError(t, err)
	assert.Equal(t, fixed.Local().Format("2006"), got[0].Value)
}
