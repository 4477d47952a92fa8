package entry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Entry {
	return &Entry{
		ID:       "e1",
		Title:    "GitHub",
		UserName: "bob",
		Password: Protect("pw1"),
		URL:      "https://github.com/login",
		Notes:    "work account",
		Tags:     []string{"Dev"},
		Fields: []CustomField{
			{Name: "PIN", Value: Protect("1234")},
			{Name: "Recovery Email", Value: Plain("bob@example.com")},
			{Name: "Empty", Value: Plain("")},
		},
		AutoTypeEnabled: true,
	}
}

func TestProtectedValue(t *testing.T) {
	v := Protect("hunter2")
	assert.True(t, v.IsProtected())
	assert.Equal(t, "hunter2", v.Text())
	assert.Equal(t, 7, v.Len())
	assert.NotContains(t, string(v.data), "hunter2")

	assert.Equal(t, "********", v.String())
	assert.Equal(t, "********", fmt.Sprint(v))
	assert.Equal(t, "", ProtectedValue{}.String())

	assert.True(t, v.Equal(Plain("hunter2")))
	assert.False(t, v.Equal(Protect("hunter3")))

	b := []byte("secret")
	p := ProtectBytes(b)
	assert.Equal(t, make([]byte, 6), b)
	assert.Equal(t, "secret", p.Text())

	p.Wipe()
	assert.True(t, p.IsEmpty())
}

func TestProtectedValueJSON(t *testing.T) {
	data, err := json.Marshal(Protect("pw"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"pw","protected":true}`, string(data))

	var v ProtectedValue
	require.NoError(t, json.Unmarshal([]byte(`"bare"`), &v))
	assert.False(t, v.IsProtected())
	assert.Equal(t, "bare", v.Text())

	require.NoError(t, json.Unmarshal(data, &v))
	assert.True(t, v.IsProtected())
	assert.Equal(t, "pw", v.Text())
}

func TestField(t *testing.T) {
	e := sample()

	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"title", "GitHub", true},
		{"USERNAME", "bob", true},
		{"User", "bob", true},
		{"Password", "pw1", true},
		{"url", "https://github.com/login", true},
		{"NOTES", "work account", true},
		{"PIN", "1234", true},
		{"pin", "1234", true},
		{"recovery email", "bob@example.com", true},
		{"otp", "", false},
		{"missing", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := e.Field(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, v.Text())
		})
	}
}

func TestResolveField(t *testing.T) {
	e := sample()
	e.UserName = ""
	ctx := context.Background()

	v, err := e.ResolveField(ctx, "USERNAME")
	require.NoError(t, err, "built-in fields default to empty")
	assert.Equal(t, "", v)

	noPass := sample()
	noPass.Password = ProtectedValue{}
	v, err = noPass.ResolveField(ctx, "PASSWORD")
	require.NoError(t, err, "an empty password types nothing")
	assert.Equal(t, "", v)

	v, err = e.ResolveField(ctx, "S:PIN")
	require.NoError(t, err)
	assert.Equal(t, "1234", v)

	_, err = e.ResolveField(ctx, "S:pin")
	assert.ErrorIs(t, err, ErrFieldNotFound, "S: lookups are exact")

	_, err = e.ResolveField(ctx, "Empty")
	assert.ErrorIs(t, err, ErrFieldEmpty)

	_, err = e.ResolveField(ctx, "NOPE")
	assert.ErrorIs(t, err, ErrFieldNotFound)

	_, err = e.ResolveField(ctx, "TOTP")
	assert.ErrorIs(t, err, ErrFieldNotFound)
}

func TestTOTP(t *testing.T) {
	// RFC 6238 appendix B, SHA1 secret "12345678901234567890".
	const secret = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"

	tests := []struct {
		name string
		otp  string
		at   int64
		want string
	}{
		{"url 8 digits", "otpauth://totp/ACME:bob?secret=" + secret + "&digits=8", 59, "94287082"},
		{"url later", "otpauth://totp/ACME:bob?secret=" + secret + "&digits=8", 1111111109, "07081804"},
		{"bare secret", secret, 59, "287082"},
		{"spaced lowercase secret", "gezd gnbv gy3t qojq gezd gnbv gy3t qojq", 59, "287082"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Entry{OTP: Protect(tt.otp)}
			code, err := e.TOTP(time.Unix(tt.at, 0))
			require.NoError(t, err)
			assert.Equal(t, tt.want, code)
		})
	}

	bad := &Entry{OTP: Protect("otpauth://hotp/x?secret=" + secret)}
	_, err := bad.TOTP(time.Unix(59, 0))
	assert.Error(t, err)

	e := &Entry{OTP: Protect(secret)}
	code, err := e.ResolveField(context.Background(), "totp")
	require.NoError(t, err)
	assert.Len(t, code, 6)
}

func TestSearchText(t *testing.T) {
	e := sample()
	st := e.SearchText()
	assert.Contains(t, st, "github")
	assert.Contains(t, st, "https://github.com/login")
	assert.Contains(t, st, "dev")
	assert.Contains(t, st, "bob@example.com")
	assert.NotContains(t, st, "1234", "protected custom fields are not searchable")
	assert.NotContains(t, st, "pw1")
}

func TestEffectiveAutoTypeSeq(t *testing.T) {
	e := sample()
	assert.Equal(t, "{USERNAME}{ENTER}", e.EffectiveAutoTypeSeq("{USERNAME}{ENTER}"))
	e.AutoTypeSequence = "{PASSWORD}"
	assert.Equal(t, "{PASSWORD}", e.EffectiveAutoTypeSeq("{USERNAME}{ENTER}"))
	e.AutoTypeSequence = "   "
	assert.Equal(t, "x", e.EffectiveAutoTypeSeq("x"))
}

func TestCloneIsDeep(t *testing.T) {
	e := sample()
	c := e.Clone()
	c.SetField("PIN", Plain("0000"))
	c.Tags[0] = "changed"

	v, _ := e.CustomField("PIN")
	assert.Equal(t, "1234", v.Text())
	assert.Equal(t, "Dev", e.Tags[0])
	assert.Equal(t, "pw1", c.Password.Text())
}

func TestCollection(t *testing.T) {
	ctx := context.Background()
	noAuto := &Entry{ID: "e2", Title: "Bank", AutoTypeEnabled: false}
	c := NewCollection(sample(), noAuto)

	all, err := c.EntriesByFilter(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	auto, err := c.EntriesByFilter(ctx, Query{AutoType: true})
	require.NoError(t, err)
	require.Len(t, auto, 1)
	assert.Equal(t, "e1", auto[0].ID)

	byText, err := c.EntriesByFilter(ctx, Query{Text: "WORK"})
	require.NoError(t, err)
	assert.Len(t, byText, 1)

	assert.True(t, c.HasOpenFiles())
	c.SetOpen(false)
	assert.False(t, c.HasOpenFiles())
	_, err = c.EntriesByFilter(ctx, Query{})
	assert.ErrorIs(t, err, ErrClosed)

	select {
	case <-c.Changes():
	default:
		t.Fatal("expected change signal")
	}

	empty := NewCollection()
	assert.False(t, empty.HasOpenFiles())
	empty.Add(sample())
	assert.True(t, empty.HasOpenFiles())
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entries.json")
	doc := `[
	  {"title": "GitHub", "username": "bob", "password": {"value": "pw1", "protected": true},
	   "url": "https://github.com", "auto_type_enabled": true,
	   "fields": [{"name": "PIN", "value": "42"}]}
	]`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	c, err := LoadJSON(path)
	require.NoError(t, err)
	e, ok := c.Get("1")
	require.True(t, ok)
	assert.Equal(t, "pw1", e.Password.Text())
	assert.True(t, e.Password.IsProtected())
	pin, ok := e.CustomField("PIN")
	require.True(t, ok)
	assert.Equal(t, "42", pin.Text())
}
