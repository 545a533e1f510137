// Package entities holds the domain types shared by the KNOT gateway
// core: the per-connection trust (session) record, the schema and
// config entries a device exchanges with the cloud, and the protocol's
// shared result codes.
package entities

// ResultCode is the shared result vocabulary surfaced in PDU replies.
// Cloud adapter operations return these too, so a cloud-side failure
// passes straight through to the node without translation.
type ResultCode int8

const (
	ResultSuccess ResultCode = iota
	ResultCredentialUnauthorized
	ResultRegisterInvalidDeviceName
	ResultSchemaEmpty
	ResultInvalidData
	ResultErrorUnknown
	ResultNoData
)

func (r ResultCode) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultCredentialUnauthorized:
		return "credential_unauthorized"
	case ResultRegisterInvalidDeviceName:
		return "register_invalid_devicename"
	case ResultSchemaEmpty:
		return "schema_empty"
	case ResultInvalidData:
		return "invalid_data"
	case ResultErrorUnknown:
		return "error_unknown"
	case ResultNoData:
		return "no_data"
	default:
		return "unknown"
	}
}

// Event flag bits accepted in a ConfigEntry.EventFlags.
const (
	EventFlagNone           uint8 = 0x00
	EventFlagTime           uint8 = 0x01
	EventFlagLowerThreshold uint8 = 0x02
	EventFlagUpperThreshold uint8 = 0x04
	EventFlagChange         uint8 = 0x08
	EventFlagUnregistered   uint8 = 0x10
)

// Limit is a fixed-point value as carried on the wire: an integer part
// and a decimal part compared lexicographically, (integer, decimal).
type Limit struct {
	IntegerPart int32
	DecimalPart uint32
}

// SchemaEntry declares one sensor a device exposes.
type SchemaEntry struct {
	SensorID  uint8
	TypeID    uint16
	ValueType uint8
	Unit      uint8
	Name      string // at most 23 bytes, not null-terminated on the wire
}

// ConfigEntry is one rule the cloud pushes down to control when a
// sensor reports: time-based polling and/or threshold crossing.
type ConfigEntry struct {
	SensorID   uint8
	EventFlags uint8
	TimeSec    uint16
	LowerLimit Limit
	UpperLimit Limit
}

// Trust is the per-connection session record: cloud credentials plus
// the cached schema and config the core needs to validate and route
// subsequent PDUs without round-tripping to the cloud each time.
type Trust struct {
	PeerPID  int32  // local peer process id that registered the device, 0 if unknown
	DeviceID uint64 // node-supplied device identifier, only meaningful post-register
	UUID     string // 36-byte cloud-assigned device id
	Token    string // 40-byte cloud-assigned auth token

	// Rollback is true while the device is registered with the cloud
	// but not yet confirmed by a completed schema upload. A trust torn
	// down while Rollback is true must be removed from the cloud to
	// guard against cloned or orphaned registrations.
	Rollback bool

	Schema        []SchemaEntry // committed, accepted by the cloud
	SchemaStaging []SchemaEntry // received since the last schema transfer began, uncommitted

	Config []ConfigEntry // last config received from the cloud

	// Refs counts the borrows handlers hold across suspending cloud
	// calls. It is bookkeeping only: the trust store does not refuse
	// removal while it is above one.
	// Managed exclusively by the trust store; never mutate directly.
	Refs int32
}
