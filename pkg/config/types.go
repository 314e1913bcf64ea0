package config

import (
	"encoding/json"
	"fmt"
	"time"
)

var errInvalidDuration = fmt.Errorf("invalid duration")

// Duration is a wrapper for time.Duration that accepts both numeric
// nanoseconds and Go duration strings in JSON. Poll and timeout fields
// in device configs use it so "30s" works in hand-written files.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		// parse numeric as nanoseconds
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
