package models

import (
	"bytes"
	"cmp"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidIdentifier is returned when text cannot be read as an episode number.
var ErrInvalidIdentifier = errors.New("invalid episode identifier")

// Identifier is the numeric episode number used as the primary catalog key.
//
// Ordering follows the numeric value while equality and hashing follow the
// canonical text, so "12" and "12.0" sort together but are distinct keys.
type Identifier struct {
	text  string
	value float64
}

// ParseIdentifier reads an integral or fractional episode number.
func ParseIdentifier(text string) (Identifier, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Identifier{}, errors.Wrap(ErrInvalidIdentifier, "empty value")
	}

	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return IdentifierFromInt(i), nil
		}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Identifier{}, errors.Wrapf(ErrInvalidIdentifier, "%q", text)
	}
	return IdentifierFromFloat(f), nil
}

// IdentifierFromInt returns the identifier for an integral episode number.
func IdentifierFromInt(i int64) Identifier {
	return Identifier{text: strconv.FormatInt(i, 10), value: float64(i)}
}

// IdentifierFromFloat returns the identifier for a fractional episode number.
// The canonical text always carries a fraction, so 12.0 renders as "12.0".
func IdentifierFromFloat(f float64) Identifier {
	text := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(text, ".eE") {
		text += ".0"
	}
	return Identifier{text: text, value: f}
}

// String returns the canonical text.
func (id Identifier) String() string {
	return id.text
}

// Key returns the canonical text used for map lookups.
func (id Identifier) Key() string {
	return id.text
}

// Float returns the numeric value.
func (id Identifier) Float() float64 {
	return id.value
}

// IsZero reports whether the identifier was never set.
func (id Identifier) IsZero() bool {
	return id.text == ""
}

// Compare orders identifiers by numeric value.
func (id Identifier) Compare(other Identifier) int {
	return cmp.Compare(id.value, other.value)
}

// Equal compares canonical text, not numeric value.
func (id Identifier) Equal(other Identifier) bool {
	return id.text == other.text
}

func (id Identifier) MarshalJSON() ([]byte, error) {
	if id.text == "" {
		return []byte("null"), nil
	}
	return []byte(id.text), nil
}

func (id *Identifier) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = Identifier{}
		return nil
	}

	parsed, err := ParseIdentifier(string(bytes.Trim(data, `"`)))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
