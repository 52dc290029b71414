package scheduling

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/spec-kit/install-dispatch/internal/domain"
)

const (
	keyDelimiter  = "-"
	listDelimiter = ","
	keyArity      = 6
	dateLayout    = "2006-01-02"
)

var (
	// ErrMalformedKey marks persisted slot data that cannot be decoded.
	ErrMalformedKey = errors.New("malformed slot key")
	// ErrInvalidDate rejects dates that are not YYYY-MM-DD calendar dates.
	ErrInvalidDate = errors.New("invalid date")
)

// SlotKey identifies one technician hour on one date.
type SlotKey struct {
	Technician string          `json:"technician"`
	Date       string          `json:"date"`
	Hour       int             `json:"hour"`
	Meridiem   domain.Meridiem `json:"meridiem"`
}

// NewSlotKey builds a key from a technician, date and time component.
func NewSlotKey(technician, date string, tc domain.TimeComponent) SlotKey {
	return SlotKey{Technician: technician, Date: date, Hour: tc.Hour, Meridiem: tc.Meridiem}
}

// Time returns the key's time component.
func (k SlotKey) Time() domain.TimeComponent {
	return domain.TimeComponent{Hour: k.Hour, Meridiem: k.Meridiem}
}

// String returns the canonical encoding.
func (k SlotKey) String() string {
	return Encode(k)
}

// Validate checks the key fields without encoding them.
func (k SlotKey) Validate() error {
	if k.Technician == "" {
		return fmt.Errorf("%w: technician required", ErrMalformedKey)
	}
	if _, err := ParseDate(k.Date); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	if !k.Time().Valid() {
		return fmt.Errorf("%w: invalid time %s", ErrMalformedKey, k.Time())
	}
	return nil
}

// Encode renders the canonical form: technician-YYYY-MM-DD-hour-meridiem.
// Delimiters, whitespace and '%' inside technician names are percent-escaped.
func Encode(k SlotKey) string {
	return strings.Join([]string{
		escapeName(k.Technician),
		k.Date,
		strconv.Itoa(k.Hour),
		string(k.Meridiem),
	}, keyDelimiter)
}

// Decode parses a canonical key back into its fields.
func Decode(raw string) (SlotKey, error) {
	parts := strings.Split(raw, keyDelimiter)
	if len(parts) != keyArity {
		return SlotKey{}, fmt.Errorf("%w: %q has %d fields, want %d", ErrMalformedKey, raw, len(parts), keyArity)
	}
	name, err := unescapeName(parts[0])
	if err != nil {
		return SlotKey{}, fmt.Errorf("%w: %q: %v", ErrMalformedKey, raw, err)
	}
	hour, err := strconv.Atoi(parts[4])
	if err != nil || parts[4] != strconv.Itoa(hour) {
		return SlotKey{}, fmt.Errorf("%w: %q: hour %q is not a canonical integer", ErrMalformedKey, raw, parts[4])
	}
	key := SlotKey{
		Technician: name,
		Date:       strings.Join(parts[1:4], keyDelimiter),
		Hour:       hour,
		Meridiem:   domain.Meridiem(parts[5]),
	}
	if err := key.Validate(); err != nil {
		return SlotKey{}, fmt.Errorf("%q: %w", raw, err)
	}
	return key, nil
}

// EncodeList joins keys into the persisted comma-separated form.
func EncodeList(keys []SlotKey) string {
	encoded := make([]string, 0, len(keys))
	for _, k := range keys {
		encoded = append(encoded, Encode(k))
	}
	return strings.Join(encoded, listDelimiter)
}

// DecodeList parses the persisted comma-separated form. Empty input yields no keys.
func DecodeList(raw string) ([]SlotKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, listDelimiter)
	keys := make([]SlotKey, 0, len(parts))
	for _, part := range parts {
		key, err := Decode(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// ParseDate validates an ISO calendar date.
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q", ErrInvalidDate, date)
	}
	return t, nil
}

func escapeName(name string) string {
	var b strings.Builder
	for i := 0; i < len(name); {
		r, size := utf8.DecodeRuneInString(name[i:])
		if r == '%' || r == '-' || r == ',' || unicode.IsSpace(r) {
			for j := i; j < i+size; j++ {
				fmt.Fprintf(&b, "%%%02X", name[j])
			}
		} else {
			b.WriteString(name[i : i+size])
		}
		i += size
	}
	return b.String()
}

func unescapeName(escaped string) (string, error) {
	if escaped == "" {
		return "", errors.New("empty technician")
	}
	var b strings.Builder
	for i := 0; i < len(escaped); i++ {
		c := escaped[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(escaped) {
			return "", errors.New("truncated escape")
		}
		v, err := strconv.ParseUint(escaped[i+1:i+3], 16, 8)
		if err != nil {
			return "", fmt.Errorf("bad escape %q", escaped[i:i+3])
		}
		b.WriteByte(byte(v))
		i += 2
	}
	return b.String(), nil
}
