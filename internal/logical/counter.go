// Package logical implements the logical-clock counter used as a single
// component of a vector clock.
package logical

import (
	"encoding/json"
	"math/big"
)

var zero = new(big.Int)
var one = big.NewInt(1)

// A Counter is a single non-negative, arbitrary-precision logical-clock
// component.
//
// The zero value for Counter is a zeroed counter ready to use.
type Counter struct {
	value *big.Int
}

// NewCounter returns a Counter initialized to zero.
func NewCounter() *Counter {
	return &Counter{value: new(big.Int)}
}

func (c *Counter) ensure() *big.Int {
	if c.value == nil {
		c.value = new(big.Int)
	}
	return c.value
}

// Text returns a text representation of the counter's value in the given base.
func (c *Counter) Text(base int) string {
	return c.ensure().Text(base)
}

// String implements the Stringer interface, using base 10.
func (c *Counter) String() string {
	return c.ensure().String()
}

// Tick increments the counter by one.
func (c *Counter) Tick() {
	v := c.ensure()
	v.Add(v, one)
}

// Cmp compares c to other.
//
// The result is:
//
//	-1 if c <  other
//	 0 if c == other
//	+1 if c >  other
func (c *Counter) Cmp(other *Counter) int {
	return c.ensure().Cmp(other.ensure())
}

// SetString sets the counter to the value specified in the given base, which
// must be a natural number (n >= 0), returning the counter and a boolean
// indicating success.
//
// If the operation fails, the counter's value is unchanged.
func (c *Counter) SetString(value string, base int) (*Counter, bool) {
	newValue, ok := new(big.Int).SetString(value, base)
	if ok && newValue.Cmp(zero) >= 0 {
		c.value = newValue
		return c, true
	}
	return c, false
}

// Max sets c to the maximum of c and other, and returns c.
func (c *Counter) Max(other *Counter) *Counter {
	if c.Cmp(other) < 0 {
		c.ensure().Set(other.ensure())
	}
	return c
}

// Set copies the value of other into c.
func (c *Counter) Set(other *Counter) *Counter {
	c.ensure().Set(other.ensure())
	return c
}

// Clone returns an independent copy of c.
func (c *Counter) Clone() *Counter {
	return &Counter{value: new(big.Int).Set(c.ensure())}
}

// MarshalJSON implements the json.Marshaler interface, encoding the counter
// as a base-10 numeric string.
func (c *Counter) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Text(10))
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (c *Counter) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if _, ok := new(Counter).SetString(s, 10); !ok {
		return &InvalidCounterError{Value: s}
	}
	c.value, _ = new(big.Int).SetString(s, 10)
	return nil
}

// InvalidCounterError is returned when a counter cannot be parsed from the
// wire (e.g. a negative or non-numeric value).
type InvalidCounterError struct {
	Value string
}

func (e *InvalidCounterError) Error() string {
	return "logical: invalid counter value: " + e.Value
}
