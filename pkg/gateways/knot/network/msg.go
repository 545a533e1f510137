package network

import "github.com/cesar-iot/knot-gateway/pkg/entities"

// MessageOptions carries the AMQP publishing options a call needs:
// correlation id and reply-to queue for a request, expiration for
// messages that should be dropped rather than queued indefinitely.
type MessageOptions struct {
	Authorization string
	CorrelationID string
	ReplyTo       string
	Expiration    string
}

// InMsg is a delivery handed back from the bus to a consumer, stripped
// of everything but what a reply matcher or subscriber needs.
type InMsg struct {
	Exchange      string
	RoutingKey    string
	ReplyTo       string
	CorrelationID string
	Headers       map[string]interface{}
	Body          []byte
}

// Routing keys for the seven cloud operations the dispatcher depends
// on. Every one of them is a request/reply pair over RPCClient.call:
// the gateway publishes to RequestExchange with the operation's key
// and its own reply queue as ReplyTo, then waits for a delivery
// correlated by id.
const (
	routingKeyMkNode       = "device.mknode"
	routingKeyRmNode       = "device.rmnode"
	routingKeySignIn       = "device.signin"
	routingKeySubmitSchema = "device.schema.submit"
	routingKeyPushData     = "device.data.push"
	routingKeyPullData     = "device.data.pull"
	routingKeyAckSetData   = "device.data.ack"
)

// MkNodeRequest/MkNodeResponse register a new device with the cloud.
type MkNodeRequest struct {
	DeviceName string `json:"device_name"`
	DeviceID   uint64 `json:"device_id"`
}

type MkNodeResponse struct {
	UUID   string              `json:"uuid"`
	Token  string               `json:"token"`
	Result entities.ResultCode `json:"result"`
}

// RmNodeRequest/RmNodeResponse remove a device from the cloud.
type RmNodeRequest struct {
	UUID  string `json:"uuid"`
	Token string `json:"token"`
}

type RmNodeResponse struct {
	Result entities.ResultCode `json:"result"`
}

// SignInRequest/SignInResponse authenticate a device and fetch its
// last-known schema and config.
type SignInRequest struct {
	UUID  string `json:"uuid"`
	Token string `json:"token"`
}

type SignInResponse struct {
	Schema []entities.SchemaEntry `json:"schema,omitempty"`
	Config []entities.ConfigEntry `json:"config,omitempty"`
	Result entities.ResultCode    `json:"result"`
}

// SubmitSchemaRequest/SubmitSchemaResponse replace the cloud's record
// of a device's schema.
type SubmitSchemaRequest struct {
	UUID   string                 `json:"uuid"`
	Token  string                 `json:"token"`
	Schema []entities.SchemaEntry `json:"schema"`
}

type SubmitSchemaResponse struct {
	Result entities.ResultCode `json:"result"`
}

// PushDataRequest/PushDataResponse forward one sensor reading.
type PushDataRequest struct {
	UUID      string `json:"uuid"`
	Token     string `json:"token"`
	SensorID  uint8  `json:"sensor_id"`
	ValueType uint8  `json:"value_type"`
	Payload   []byte `json:"payload"`
}

type PushDataResponse struct {
	Result entities.ResultCode `json:"result"`
}

// PullDataRequest/PullDataResponse trigger a best-effort fetch of any
// pending config or set-data the cloud wants delivered to a sensor.
type PullDataRequest struct {
	UUID     string `json:"uuid"`
	Token    string `json:"token"`
	SensorID uint8  `json:"sensor_id"`
}

type PullDataResponse struct {
	Result entities.ResultCode `json:"result"`
}

// AckSetDataRequest/AckSetDataResponse clear the pending-delivery
// marker for a previously pushed set-data.
type AckSetDataRequest struct {
	UUID     string `json:"uuid"`
	Token    string `json:"token"`
	SensorID uint8  `json:"sensor_id"`
}

type AckSetDataResponse struct {
	Result entities.ResultCode `json:"result"`
}
