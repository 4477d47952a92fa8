// Package entry models the credential records auto-type types from, and
// the Provider interface the orchestrator reads them through.
package entry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrFieldNotFound means the entry has no field by that name.
	ErrFieldNotFound = errors.New("field not found")

	// ErrFieldEmpty means the field exists but holds nothing to type.
	ErrFieldEmpty = errors.New("field is empty")
)

// Built-in field names. Lookups are case-insensitive.
const (
	FieldTitle    = "Title"
	FieldUserName = "UserName"
	FieldPassword = "Password"
	FieldURL      = "URL"
	FieldNotes    = "Notes"
	FieldOTP      = "otp"
)

// CustomField is a user-defined field. Order is preserved.
type CustomField struct {
	Name  string         `json:"name"`
	Value ProtectedValue `json:"value"`
}

// Entry is one credential record.
type Entry struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	UserName string         `json:"username,omitempty"`
	Password ProtectedValue `json:"password"`
	URL      string         `json:"url,omitempty"`
	Notes    string         `json:"notes,omitempty"`
	Tags     []string       `json:"tags,omitempty"`

	// OTP is an otpauth:// URL or a bare base32 secret.
	OTP ProtectedValue `json:"otp"`

	Fields []CustomField `json:"fields,omitempty"`

	AutoTypeEnabled     bool   `json:"auto_type_enabled"`
	AutoTypeSequence    string `json:"auto_type_sequence,omitempty"`
	AutoTypeObfuscation bool   `json:"auto_type_obfuscation,omitempty"`

	Modified time.Time `json:"modified"`
}

// CustomField returns the custom field with exactly this name.
func (e *Entry) CustomField(name string) (ProtectedValue, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return ProtectedValue{}, false
}

// SetField sets a custom field, replacing any existing one with the same name.
func (e *Entry) SetField(name string, v ProtectedValue) {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			e.Fields[i].Value = v
			return
		}
	}
	e.Fields = append(e.Fields, CustomField{Name: name, Value: v})
}

// Field looks up a value by name: built-in fields first (case-insensitive),
// then custom fields by exact name, then custom fields case-insensitively.
// The OTP field returns the configured secret, not a code.
func (e *Entry) Field(name string) (ProtectedValue, bool) {
	switch strings.ToUpper(name) {
	case "TITLE":
		return Plain(e.Title), true
	case "USERNAME", "USER":
		return Plain(e.UserName), true
	case "PASSWORD":
		return e.Password, true
	case "URL":
		return Plain(e.URL), true
	case "NOTES":
		return Plain(e.Notes), true
	case "OTP":
		if e.OTP.IsEmpty() {
			return ProtectedValue{}, false
		}
		return e.OTP, true
	}
	if v, ok := e.CustomField(name); ok {
		return v, true
	}
	for _, f := range e.Fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return ProtectedValue{}, false
}

// ResolveField returns the text to type for a placeholder name.
// Built-in text fields default to empty, so an empty password types
// nothing rather than failing the run. "S:Name" addresses a custom field
// by exact name, which must exist and be non-empty. TOTP derives the
// current one-time code.
func (e *Entry) ResolveField(_ context.Context, name string) (string, error) {
	upper := strings.ToUpper(name)
	switch upper {
	case "TITLE", "USERNAME", "USER", "PASSWORD", "URL", "NOTES":
		v, _ := e.Field(name)
		return v.Text(), nil
	case "TOTP":
		code, err := e.TOTP(time.Now())
		if err != nil {
			return "", err
		}
		return code, nil
	}

	var (
		v  ProtectedValue
		ok bool
	)
	if strings.HasPrefix(upper, "S:") {
		v, ok = e.CustomField(name[2:])
	} else {
		v, ok = e.Field(name)
	}
	if !ok {
		return "", ErrFieldNotFound
	}
	if v.IsEmpty() {
		return "", ErrFieldEmpty
	}
	return v.Text(), nil
}

// EffectiveAutoTypeSeq returns the entry's own template, or fallback.
func (e *Entry) EffectiveAutoTypeSeq(fallback string) string {
	if s := strings.TrimSpace(e.AutoTypeSequence); s != "" {
		return e.AutoTypeSequence
	}
	return fallback
}

// SearchText is the lowercased concatenation of every searchable,
// unprotected value, newline separated.
func (e *Entry) SearchText() string {
	parts := []string{e.Title, e.UserName, e.URL, e.Notes}
	parts = append(parts, e.Tags...)
	for _, f := range e.Fields {
		if !f.Value.IsProtected() {
			parts = append(parts, f.Value.Text())
		}
	}
	return strings.ToLower(strings.Join(parts, "\n"))
}

// Matches reports whether the entry passes q.
func (e *Entry) Matches(q Query) bool {
	if q.AutoType && !e.AutoTypeEnabled {
		return false
	}
	if q.Text == "" {
		return true
	}
	return strings.Contains(e.SearchText(), strings.ToLower(q.Text))
}

// Clone returns a deep copy.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Password = newValue(e.Password.Bytes(), e.Password.IsProtected())
	c.OTP = newValue(e.OTP.Bytes(), e.OTP.IsProtected())
	c.Tags = append([]string(nil), e.Tags...)
	c.Fields = make([]CustomField, len(e.Fields))
	for i, f := range e.Fields {
		c.Fields[i] = CustomField{Name: f.Name, Value: newValue(f.Value.Bytes(), f.Value.IsProtected())}
	}
	return &c
}

func (e *Entry) String() string {
	return fmt.Sprintf("entry %q (%s)", e.Title, e.ID)
}
