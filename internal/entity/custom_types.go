package entity

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// SlotTime accepts the datetime-local format the merchant UI submits for
// slot windows ("2006-01-02T15:04") in addition to scanning DB timestamps.
type SlotTime struct {
	time.Time
}

const slotTimeLayout = "2006-01-02T15:04"

func (t *SlotTime) UnmarshalJSON(b []byte) error {
	if len(b) < 2 {
		return fmt.Errorf("invalid slot time %q", string(b))
	}
	s := string(b[1 : len(b)-1])
	parsed, err := time.Parse(slotTimeLayout, s)
	if err != nil {
		// Fall back to RFC3339 for API clients.
		parsed, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return err
		}
	}
	t.Time = parsed
	return nil
}

func (t SlotTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Format(time.RFC3339) + `"`), nil
}

func (t SlotTime) Value() (driver.Value, error) {
	return t.Time, nil
}

func (t *SlotTime) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	switch v := value.(type) {
	case time.Time:
		t.Time = v
	case []byte:
		parsed, err := time.Parse("2006-01-02 15:04:05", string(v))
		if err != nil {
			return err
		}
		t.Time = parsed
	default:
		return fmt.Errorf("cannot scan type %T into SlotTime", value)
	}
	return nil
}
