package entry

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"

	"autotyped/internal/security"
)

// ProtectedValue holds a secret XORed with a random pad so the plaintext
// never sits in memory as a contiguous string between uses. The zero
// value is an empty, unprotected value.
type ProtectedValue struct {
	data      []byte
	pad       []byte
	protected bool
}

// Protect returns a protected copy of s.
func Protect(s string) ProtectedValue {
	return newValue([]byte(s), true)
}

// Plain returns an unprotected value. It is still masked by String.
func Plain(s string) ProtectedValue {
	return newValue([]byte(s), false)
}

// ProtectBytes protects b and wipes it.
func ProtectBytes(b []byte) ProtectedValue {
	v := newValue(b, true)
	security.Wipe(b)
	return v
}

func newValue(b []byte, protected bool) ProtectedValue {
	if !protected {
		return ProtectedValue{data: append([]byte(nil), b...)}
	}
	pad := make([]byte, len(b))
	if _, err := rand.Read(pad); err != nil {
		panic("entry: crypto/rand unavailable: " + err.Error())
	}
	data := make([]byte, len(b))
	for i := range b {
		data[i] = b[i] ^ pad[i]
	}
	return ProtectedValue{data: data, pad: pad, protected: true}
}

// Text returns the plaintext.
func (v ProtectedValue) Text() string {
	return string(v.Bytes())
}

// Bytes returns a fresh plaintext copy the caller may wipe.
func (v ProtectedValue) Bytes() []byte {
	out := make([]byte, len(v.data))
	if !v.protected {
		copy(out, v.data)
		return out
	}
	for i := range v.data {
		out[i] = v.data[i] ^ v.pad[i]
	}
	return out
}

// IsProtected reports whether the value is kept out of search text and
// encrypted at rest.
func (v ProtectedValue) IsProtected() bool { return v.protected }

// Len is the plaintext length in bytes.
func (v ProtectedValue) Len() int { return len(v.data) }

// IsEmpty reports whether the plaintext is empty.
func (v ProtectedValue) IsEmpty() bool { return len(v.data) == 0 }

// Equal compares plaintexts in constant time.
func (v ProtectedValue) Equal(o ProtectedValue) bool {
	a, b := v.Bytes(), o.Bytes()
	defer security.Wipe(a)
	defer security.Wipe(b)
	return subtle.ConstantTimeCompare(a, b) == 1
}

// String masks the value so it cannot leak through fmt or slog.
func (v ProtectedValue) String() string {
	if v.IsEmpty() {
		return ""
	}
	return "********"
}

// Wipe clears the value in place.
func (v *ProtectedValue) Wipe() {
	security.Wipe(v.data)
	security.Wipe(v.pad)
	v.data, v.pad = nil, nil
}

type protectedJSON struct {
	Value     string `json:"value"`
	Protected bool   `json:"protected,omitempty"`
}

// MarshalJSON emits the plaintext. Used only for explicit exports.
func (v ProtectedValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(protectedJSON{Value: v.Text(), Protected: v.protected})
}

// UnmarshalJSON accepts either {"value":..,"protected":..} or a bare string,
// which is treated as unprotected.
func (v *ProtectedValue) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = Plain(s)
		return nil
	}
	var p protectedJSON
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*v = newValue([]byte(p.Value), p.Protected)
	return nil
}
