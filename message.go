package offload

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Message is the envelope exchanged between the controller and the worker.
// Type discriminates the payload; ID correlates a reply with its request.
type Message struct {
	Type     string            `json:"type" validate:"required"`
	ID       uint64            `json:"id,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Payload  json.RawMessage   `json:"payload,omitempty"`
}

// NewMessage builds a message of the given type with a JSON encoded payload.
func NewMessage(msgType string, id uint64, payload interface{}) (*Message, error) {
	msg := Message{
		Type: msgType,
		ID:   id,
	}
	if payload == nil {
		return &msg, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s payload", msgType)
	}
	msg.Payload = data
	return &msg, nil
}

// Bind decodes the payload into v.
func (m *Message) Bind(v interface{}) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

// MultiplyPayload is the payload of a multiply request.
type MultiplyPayload struct {
	Number1 Number `json:"number1"`
	Number2 Number `json:"number2"`
}

// Number is an IEEE-754 double whose JSON form keeps NaN and the infinities,
// which plain JSON numbers cannot represent.
type Number float64

var (
	nanJSON    = []byte(`"NaN"`)
	posInfJSON = []byte(`"Infinity"`)
	negInfJSON = []byte(`"-Infinity"`)
)

// NaN returns a not-a-number value.
func NaN() Number {
	return Number(math.NaN())
}

// Float64 returns n as a float64.
func (n Number) Float64() float64 {
	return float64(n)
}

// IsNaN reports whether n is not-a-number.
func (n Number) IsNaN() bool {
	return math.IsNaN(float64(n))
}

// String formats n like FormatNumber.
func (n Number) String() string {
	return FormatNumber(n)
}

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	switch {
	case math.IsNaN(f):
		return nanJSON, nil
	case math.IsInf(f, 1):
		return posInfJSON, nil
	case math.IsInf(f, -1):
		return negInfJSON, nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// UnmarshalJSON implements json.Unmarshaler. It accepts JSON numbers and the
// strings produced by MarshalJSON.
func (n *Number) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch s {
		case "NaN":
			*n = NaN()
		case "Infinity", "+Infinity":
			*n = Number(math.Inf(1))
		case "-Infinity":
			*n = Number(math.Inf(-1))
		default:
			return errors.Newf("[OFFLOAD] invalid number %q", s)
		}
		return nil
	}

	if string(data) == "null" {
		*n = NaN()
		return nil
	}

	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return errors.Wrap(err, "parse number")
	}
	*n = Number(f)
	return nil
}

// ParseNumber coerces user input into a Number without validating it.
// Input that is not numeric yields NaN.
func ParseNumber(s string) Number {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return Number(math.Inf(1))
	case "-Infinity":
		return Number(math.Inf(-1))
	}

	if len(s) > 2 && s[0] == '0' {
		switch s[1] {
		case 'x', 'X', 'o', 'O', 'b', 'B':
			// strconv allows digit separators, numeric input does not.
			if strings.ContainsRune(s, '_') {
				return NaN()
			}
			u, err := strconv.ParseUint(s, 0, 64)
			if err != nil {
				if errors.Is(err, strconv.ErrRange) {
					return parseBigInteger(s)
				}
				return NaN()
			}
			return Number(u)
		}
	}

	// strconv accepts spellings such as "inf", "nan" or hex floats that are
	// not plain decimal input.
	for _, r := range s {
		if !strings.ContainsRune("0123456789+-.eE", r) {
			return NaN()
		}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return Number(f)
		}
		return NaN()
	}
	return Number(f)
}

func parseBigInteger(s string) Number {
	base := 16.0
	switch s[1] {
	case 'o', 'O':
		base = 8
	case 'b', 'B':
		base = 2
	}

	var f float64
	for _, r := range s[2:] {
		d, err := strconv.ParseUint(string(r), int(base), 8)
		if err != nil {
			return NaN()
		}
		f = f*base + float64(d)
	}
	return Number(f)
}

// FormatNumber renders n the way the result line shows it: NaN, Infinity and
// -Infinity verbatim, exponent notation outside [1e-6, 1e21), plain decimals
// otherwise.
func FormatNumber(n Number) string {
	f := float64(n)
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mantissa, exp, _ := strings.Cut(s, "e")
		sign := exp[0]
		exp = strings.TrimLeft(exp[1:], "0")
		if exp == "" {
			exp = "0"
		}
		return mantissa + "e" + string(sign) + exp
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
