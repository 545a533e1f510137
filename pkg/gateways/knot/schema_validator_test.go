package knot

import (
	"testing"

	"github.com/cesar-iot/knot-gateway/pkg/entities"
	"github.com/stretchr/testify/assert"
)

func TestValidateSchemaTripleAcceptsKnownCombinations(t *testing.T) {
	assert.True(t, ValidateSchemaTriple(TypeIDTemperature, ValueTypeFloat, UnitCelsius))
	assert.True(t, ValidateSchemaTriple(TypeIDHumidity, ValueTypeFloat, UnitPercentage))
	assert.True(t, ValidateSchemaTriple(TypeIDPressure, ValueTypeFloat, UnitHectoPascal))
	assert.True(t, ValidateSchemaTriple(TypeIDSwitch, ValueTypeBool, UnitNotApplicable))
}

func TestValidateSchemaTripleRejectsMismatchedUnit(t *testing.T) {
	assert.False(t, ValidateSchemaTriple(TypeIDTemperature, ValueTypeFloat, UnitPercentage))
}

func TestValidateSchemaTripleRejectsMismatchedValueType(t *testing.T) {
	assert.False(t, ValidateSchemaTriple(TypeIDTemperature, ValueTypeInt, UnitCelsius))
}

func TestValidateSchemaTripleRejectsUnknownTypeID(t *testing.T) {
	assert.False(t, ValidateSchemaTriple(0xDEAD, ValueTypeFloat, UnitCelsius))
}

func TestFindSchemaLocatesBySensorID(t *testing.T) {
	trust := &entities.Trust{
		Schema: []entities.SchemaEntry{
			{SensorID: 1, TypeID: TypeIDTemperature},
			{SensorID: 2, TypeID: TypeIDHumidity},
		},
	}
	entry := FindSchema(trust, 2)
	if assert.NotNil(t, entry) {
		assert.Equal(t, TypeIDHumidity, entry.TypeID)
	}
}

func TestFindSchemaMissingSensorReturnsNil(t *testing.T) {
	trust := &entities.Trust{Schema: []entities.SchemaEntry{{SensorID: 1}}}
	assert.Nil(t, FindSchema(trust, 42))
}

func TestFindSchemaStagingIsIndependentOfCommittedSchema(t *testing.T) {
	trust := &entities.Trust{
		Schema:        []entities.SchemaEntry{{SensorID: 1, TypeID: TypeIDTemperature}},
		SchemaStaging: []entities.SchemaEntry{{SensorID: 1, TypeID: TypeIDHumidity}},
	}
	staged := findSchemaStaging(trust, 1)
	if assert.NotNil(t, staged) {
		assert.Equal(t, TypeIDHumidity, staged.TypeID)
	}
}
