package knot

import (
	"fmt"

	"github.com/cesar-iot/knot-gateway/pkg/entities"
)

const knownEventFlags = entities.EventFlagTime |
	entities.EventFlagLowerThreshold |
	entities.EventFlagUpperThreshold |
	entities.EventFlagChange |
	entities.EventFlagUnregistered

// ValidateConfig checks every entry in list against the event-flag,
// time and threshold rules, returning the first failure. No need to
// check sensor_id/event_flags/time_sec for negativity: they're
// unsigned on the wire.
func ValidateConfig(list []entities.ConfigEntry) error {
	for _, c := range list {
		if err := validateConfigEntry(c); err != nil {
			return err
		}
	}
	return nil
}

func validateConfigEntry(c entities.ConfigEntry) error {
	if c.EventFlags&^knownEventFlags != 0 {
		return fmt.Errorf("knot: config: sensor %d: event_flags 0x%02x outside known set", c.SensorID, c.EventFlags)
	}

	hasTime := c.EventFlags&entities.EventFlagTime != 0
	switch {
	case hasTime && c.TimeSec == 0:
		return fmt.Errorf("knot: config: sensor %d: TIME flag set but time_sec is zero", c.SensorID)
	case !hasTime && c.TimeSec != 0:
		return fmt.Errorf("knot: config: sensor %d: time_sec %d set without TIME flag", c.SensorID, c.TimeSec)
	}

	if c.EventFlags&(entities.EventFlagLowerThreshold|entities.EventFlagUpperThreshold) != 0 {
		if !upperExceedsLower(c.UpperLimit, c.LowerLimit) {
			return fmt.Errorf("knot: config: sensor %d: upper_limit must exceed lower_limit", c.SensorID)
		}
	}

	return nil
}

// upperExceedsLower compares (integer_part, decimal_part) pairs
// lexicographically: upper must be strictly greater than lower.
func upperExceedsLower(upper, lower entities.Limit) bool {
	if upper.IntegerPart != lower.IntegerPart {
		return upper.IntegerPart > lower.IntegerPart
	}
	return upper.DecimalPart > lower.DecimalPart
}
