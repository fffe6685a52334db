package output

import (
	"encoding/json"
	"math"
	"strconv"
)

// Section wraps a report section that may have recorded nothing. An absent
// section renders as NoData in every format.
type Section[T any] struct {
	Value T
	OK    bool
}

// Some returns a present section holding v.
func Some[T any](v T) Section[T] {
	return Section[T]{Value: v, OK: true}
}

func (s Section[T]) MarshalJSON() ([]byte, error) {
	if !s.OK {
		return json.Marshal(NoData)
	}
	return json.Marshal(s.Value)
}

func (s Section[T]) MarshalYAML() (any, error) {
	if !s.OK {
		return NoData, nil
	}
	return s.Value, nil
}

// Number is a derived metric rounded to two decimals. The zero value is
// absent and renders as NoData. NaN and infinities are never stored.
type Number struct {
	v  float64
	ok bool
}

// Num returns a present Number, or an absent one for NaN and infinities.
func Num(v float64) Number {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Number{}
	}
	return Number{v: v, ok: true}
}

func (n Number) Value() (float64, bool) { return n.v, n.ok }

func (n Number) String() string {
	if !n.ok {
		return NoData
	}
	return strconv.FormatFloat(n.v, 'f', 2, 64)
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.ok {
		return json.Marshal(NoData)
	}
	return []byte(n.String()), nil
}

func (n Number) MarshalYAML() (any, error) {
	if !n.ok {
		return NoData, nil
	}
	// Round through the text form so YAML and JSON agree on precision.
	v, _ := strconv.ParseFloat(n.String(), 64)
	return v, nil
}
