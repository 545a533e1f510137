package knot

import (
	"context"

	"github.com/cesar-iot/knot-gateway/pkg/entities"
)

// CloudAdapter is the capability the dispatcher depends on for every
// cloud-side device lifecycle and data operation. Every method is a
// potential suspension point: an implementation may block or await a
// broker round-trip, but from the dispatcher's perspective the call
// always returns synchronously before the next PDU is processed.
type CloudAdapter interface {
	// MkNode registers a new device, returning cloud-assigned
	// credentials on success.
	MkNode(ctx context.Context, deviceName string, deviceID uint64) (uuid, token string, result entities.ResultCode)

	// RmNode removes a device from the cloud.
	RmNode(ctx context.Context, uuid, token string) entities.ResultCode

	// SignIn authenticates uuid/token, returning the device's
	// previously submitted schema and config.
	SignIn(ctx context.Context, uuid, token string) (schema []entities.SchemaEntry, config []entities.ConfigEntry, result entities.ResultCode)

	// SubmitSchema replaces the cloud's record of the device's schema.
	SubmitSchema(ctx context.Context, uuid, token string, schema []entities.SchemaEntry) entities.ResultCode

	// PushData forwards one sensor reading.
	PushData(ctx context.Context, uuid, token string, sensorID uint8, valueType uint8, payload []byte) entities.ResultCode

	// PullData triggers a best-effort fetch of any pending config/data
	// the cloud wants delivered to this sensor.
	PullData(ctx context.Context, uuid, token string, sensorID uint8) entities.ResultCode

	// AckSetData clears the pending-delivery marker for a
	// previously pushed set-data once the node confirms it applied it.
	AckSetData(ctx context.Context, uuid, token string, sensorID uint8) entities.ResultCode
}
