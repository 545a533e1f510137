package knot

import (
	"testing"

	"github.com/cesar-iot/knot-gateway/pkg/entities"
	"github.com/stretchr/testify/assert"
)

func TestValidateConfigAcceptsTimeOnlyEntry(t *testing.T) {
	err := ValidateConfig([]entities.ConfigEntry{
		{SensorID: 1, EventFlags: entities.EventFlagTime, TimeSec: 30},
	})
	assert.NoError(t, err)
}

func TestValidateConfigRejectsTimeFlagWithZeroTimeSec(t *testing.T) {
	err := ValidateConfig([]entities.ConfigEntry{
		{SensorID: 1, EventFlags: entities.EventFlagTime, TimeSec: 0},
	})
	assert.Error(t, err)
}

func TestValidateConfigRejectsTimeSecWithoutTimeFlag(t *testing.T) {
	err := ValidateConfig([]entities.ConfigEntry{
		{SensorID: 1, EventFlags: entities.EventFlagNone, TimeSec: 30},
	})
	assert.Error(t, err)
}

func TestValidateConfigRejectsUnknownEventFlagBit(t *testing.T) {
	err := ValidateConfig([]entities.ConfigEntry{
		{SensorID: 1, EventFlags: 0x80},
	})
	assert.Error(t, err)
}

func TestValidateConfigAcceptsUpperStrictlyAboveLower(t *testing.T) {
	err := ValidateConfig([]entities.ConfigEntry{
		{
			SensorID:   1,
			EventFlags: entities.EventFlagLowerThreshold | entities.EventFlagUpperThreshold,
			LowerLimit: entities.Limit{IntegerPart: 10, DecimalPart: 0},
			UpperLimit: entities.Limit{IntegerPart: 20, DecimalPart: 0},
		},
	})
	assert.NoError(t, err)
}

func TestValidateConfigRejectsUpperNotExceedingLower(t *testing.T) {
	err := ValidateConfig([]entities.ConfigEntry{
		{
			SensorID:   1,
			EventFlags: entities.EventFlagLowerThreshold,
			LowerLimit: entities.Limit{IntegerPart: 20, DecimalPart: 0},
			UpperLimit: entities.Limit{IntegerPart: 20, DecimalPart: 0},
		},
	})
	assert.Error(t, err)
}

func TestValidateConfigComparesDecimalPartWhenIntegerPartsTie(t *testing.T) {
	err := ValidateConfig([]entities.ConfigEntry{
		{
			SensorID:   1,
			EventFlags: entities.EventFlagUpperThreshold,
			LowerLimit: entities.Limit{IntegerPart: 20, DecimalPart: 500},
			UpperLimit: entities.Limit{IntegerPart: 20, DecimalPart: 900},
		},
	})
	assert.NoError(t, err)
}

func TestValidateConfigStopsAtFirstInvalidEntry(t *testing.T) {
	err := ValidateConfig([]entities.ConfigEntry{
		{SensorID: 1, EventFlags: entities.EventFlagTime, TimeSec: 30},
		{SensorID: 2, EventFlags: entities.EventFlagTime, TimeSec: 0},
	})
	assert.Error(t, err)
}
