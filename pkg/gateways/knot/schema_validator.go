package knot

import "github.com/cesar-iot/knot-gateway/pkg/entities"

// Sensor type identifiers recognized by the compatibility table. These
// mirror the well-known KNOT type ids for simple environmental
// sensors; a production deployment would extend this table per its
// device catalog.
const (
	TypeIDTemperature uint16 = 0xFFD3
	TypeIDHumidity    uint16 = 0xFFD4
	TypeIDPressure    uint16 = 0xFFD5
	TypeIDSwitch      uint16 = 0xFFE1
)

// Value type tags, as declared in a schema entry.
const (
	ValueTypeBool  uint8 = 1
	ValueTypeInt   uint8 = 2
	ValueTypeFloat uint8 = 3
	ValueTypeRaw   uint8 = 4
)

// Unit tags.
const (
	UnitNotApplicable uint8 = 0
	UnitCelsius       uint8 = 1
	UnitPercentage    uint8 = 2
	UnitHectoPascal   uint8 = 3
)

type schemaTriple struct {
	typeID    uint16
	valueType uint8
	unit      uint8
}

// validTriples is the domain-defined compatibility table: which
// (type_id, value_type, unit) combinations a schema entry may declare.
var validTriples = map[schemaTriple]struct{}{
	{TypeIDTemperature, ValueTypeFloat, UnitCelsius}:    {},
	{TypeIDHumidity, ValueTypeFloat, UnitPercentage}:    {},
	{TypeIDPressure, ValueTypeFloat, UnitHectoPascal}:   {},
	{TypeIDSwitch, ValueTypeBool, UnitNotApplicable}:    {},
}

// ValidateSchemaTriple reports whether (typeID, valueType, unit) is a
// combination the gateway recognizes. It is a pure function over the
// compatibility table; it holds no state of its own.
func ValidateSchemaTriple(typeID uint16, valueType, unit uint8) bool {
	_, ok := validTriples[schemaTriple{typeID, valueType, unit}]
	return ok
}

// FindSchema does a linear search of trust's committed schema for
// sensorID. The core never assumes the list is ordered by sensor id.
func FindSchema(trust *entities.Trust, sensorID uint8) *entities.SchemaEntry {
	for i := range trust.Schema {
		if trust.Schema[i].SensorID == sensorID {
			return &trust.Schema[i]
		}
	}
	return nil
}

// findSchemaStaging mirrors FindSchema over the uncommitted staging
// list, used while a schema upload is in progress.
func findSchemaStaging(trust *entities.Trust, sensorID uint8) *entities.SchemaEntry {
	for i := range trust.SchemaStaging {
		if trust.SchemaStaging[i].SensorID == sensorID {
			return &trust.SchemaStaging[i]
		}
	}
	return nil
}
