package sequence

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var roundTripCases = []string{
	"",
	"{USERNAME}{TAB}{PASSWORD}{ENTER}",
	"a{+}b{{}c{}}d",
	"^v+({END}{HOME})%(a(b{DELAY 10})c)",
	"~@~",
	"{TAB 3}{tab 1}{LEFT 0}",
	"{S:Recovery Email}{S:Recovery Email 2}{S:Field 2 1}",
	"{DELAY=25}x{DELAY 100}",
	"^{+}%{(}",
	"()",
	"{ }{bs}{F5}",
	"ünïcödé{ö}",
}

func TestPrintRoundTrip(t *testing.T) {
	for _, in := range roundTripCases {
		t.Run(in, func(t *testing.T) {
			first, err := Parse(in)
			require.NoError(t, err)

			printed := Print(first)
			second, err := Parse(printed)
			require.NoError(t, err, "printed form %q does not parse", printed)
			assert.True(t, Equal(first, second), "%q printed as %q", in, printed)
		})
	}
}

func TestPrintCanonical(t *testing.T) {
	ops, err := Parse("{bs}~{tab 1}{{}")
	require.NoError(t, err)
	assert.Equal(t, "{BACKSPACE}{ENTER}{TAB}{{}", Print(ops))
}

func TestPrintResolvedModifiedText(t *testing.T) {
	ops := []*Op{withMods(Text("abc"), Shift), withMods(Text("x"), Ctrl)}
	assert.Equal(t, "+(abc)^x", Print(ops))
}

func TestDescribe(t *testing.T) {
	ops, err := Parse("ab{TAB 2}^(c{PASSWORD}){DELAY 5}")
	require.NoError(t, err)

	assert.Equal(t, "[**,key:TAB*2,ctrl+[*,placeholder:PASSWORD],delay:5]", Describe(ops, false))
	assert.Equal(t, "[ab,key:TAB*2,ctrl+[c,placeholder:PASSWORD],delay:5]", Describe(ops, true))
}

// templateAlphabet is weighted towards grammar characters so random
// inputs exercise groups, braces and modifiers.
var templateAlphabet = []string{
	"a", "b", "Z", " ", "ä", "+", "^", "%", "@", "~", "(", ")", "{", "}",
	"{TAB}", "{TAB 2}", "{USERNAME}", "{S:My Field}", "{DELAY 3}", "{DELAY=1}", "{{}", "{}}", "{+}",
}

type template string

func (template) Generate(r *rand.Rand, size int) reflect.Value {
	var b strings.Builder
	n := r.Intn(size + 1)
	for i := 0; i < n; i++ {
		b.WriteString(templateAlphabet[r.Intn(len(templateAlphabet))])
	}
	return reflect.ValueOf(template(b.String()))
}

func TestPropertyRoundTrip(t *testing.T) {
	valid := 0
	prop := func(s template) bool {
		first, err := Parse(string(s))
		if err != nil {
			return true
		}
		valid++
		second, err := Parse(Print(first))
		return err == nil && Equal(first, second)
	}
	require.NoError(t, quick.Check(prop, &quick.Config{MaxCount: 2000}))
	assert.Greater(t, valid, 0, "generator produced no valid templates")
}

func FuzzParsePrint(f *testing.F) {
	for _, s := range roundTripCases {
		f.Add(s)
	}
	f.Add("{")
	f.Add("((+")
	f.Fuzz(func(t *testing.T, s string) {
		first, err := Parse(s)
		if err != nil {
			return
		}
		printed := Print(first)
		second, err := Parse(printed)
		if err != nil {
			t.Fatalf("Print(Parse(%q)) = %q does not parse: %v", s, printed, err)
		}
		if !Equal(first, second) {
			t.Fatalf("round trip of %q via %q changed the tree", s, printed)
		}
	})
}
