package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration written as a Go duration string ("45m").
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String implements fmt.Stringer.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON encodes d as a duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a duration string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return &DurationError{Value: string(data), Err: err}
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText decodes a duration string. It is used for environment
// overrides.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return &DurationError{Value: string(text), Err: err}
	}
	if v < 0 {
		return &DurationError{Value: string(text), Err: fmt.Errorf("negative duration")}
	}
	*d = Duration(v)
	return nil
}

// DurationError reports an unparsable duration.
type DurationError struct {
	Value string
	Err   error
}

func (e *DurationError) Error() string {
	return fmt.Sprintf("invalid duration %s: %v", e.Value, e.Err)
}

func (e *DurationError) Unwrap() error {
	return e.Err
}
