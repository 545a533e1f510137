package network

import (
	"context"

	"github.com/cesar-iot/knot-gateway/pkg/entities"
)

// AMQPCloudAdapter implements the gateway core's cloud contract as
// seven RPC calls over an AMQP broker, one routing key per operation.
// A service on the other end of requestExchange is expected to consume
// each key and reply on the correlation id/reply-to the client sets.
type AMQPCloudAdapter struct {
	rpc *RPCClient
}

// NewAMQPCloudAdapter wraps rpc. rpc must already be consuming its
// reply queue (see NewRPCClient).
func NewAMQPCloudAdapter(rpc *RPCClient) *AMQPCloudAdapter {
	return &AMQPCloudAdapter{rpc: rpc}
}

func (a *AMQPCloudAdapter) MkNode(ctx context.Context, deviceName string, deviceID uint64) (string, string, entities.ResultCode) {
	var resp MkNodeResponse
	err := a.rpc.call(ctx, routingKeyMkNode, MkNodeRequest{DeviceName: deviceName, DeviceID: deviceID}, &resp)
	if err != nil {
		return "", "", errResultCode(err)
	}
	return resp.UUID, resp.Token, resp.Result
}

func (a *AMQPCloudAdapter) RmNode(ctx context.Context, uuid, token string) entities.ResultCode {
	var resp RmNodeResponse
	err := a.rpc.call(ctx, routingKeyRmNode, RmNodeRequest{UUID: uuid, Token: token}, &resp)
	if err != nil {
		return errResultCode(err)
	}
	return resp.Result
}

func (a *AMQPCloudAdapter) SignIn(ctx context.Context, uuid, token string) ([]entities.SchemaEntry, []entities.ConfigEntry, entities.ResultCode) {
	var resp SignInResponse
	err := a.rpc.call(ctx, routingKeySignIn, SignInRequest{UUID: uuid, Token: token}, &resp)
	if err != nil {
		return nil, nil, errResultCode(err)
	}
	return resp.Schema, resp.Config, resp.Result
}

func (a *AMQPCloudAdapter) SubmitSchema(ctx context.Context, uuid, token string, schema []entities.SchemaEntry) entities.ResultCode {
	var resp SubmitSchemaResponse
	err := a.rpc.call(ctx, routingKeySubmitSchema, SubmitSchemaRequest{UUID: uuid, Token: token, Schema: schema}, &resp)
	if err != nil {
		return errResultCode(err)
	}
	return resp.Result
}

func (a *AMQPCloudAdapter) PushData(ctx context.Context, uuid, token string, sensorID uint8, valueType uint8, payload []byte) entities.ResultCode {
	var resp PushDataResponse
	req := PushDataRequest{UUID: uuid, Token: token, SensorID: sensorID, ValueType: valueType, Payload: payload}
	err := a.rpc.call(ctx, routingKeyPushData, req, &resp)
	if err != nil {
		return errResultCode(err)
	}
	return resp.Result
}

func (a *AMQPCloudAdapter) PullData(ctx context.Context, uuid, token string, sensorID uint8) entities.ResultCode {
	var resp PullDataResponse
	err := a.rpc.call(ctx, routingKeyPullData, PullDataRequest{UUID: uuid, Token: token, SensorID: sensorID}, &resp)
	if err != nil {
		return errResultCode(err)
	}
	return resp.Result
}

func (a *AMQPCloudAdapter) AckSetData(ctx context.Context, uuid, token string, sensorID uint8) entities.ResultCode {
	var resp AckSetDataResponse
	err := a.rpc.call(ctx, routingKeyAckSetData, AckSetDataRequest{UUID: uuid, Token: token, SensorID: sensorID}, &resp)
	if err != nil {
		return errResultCode(err)
	}
	return resp.Result
}

// errResultCode maps a transport-level failure (timeout, encode error,
// publish error) to the shared result vocabulary, since every
// CloudAdapter method must return one even when the cloud was never
// reached.
func errResultCode(error) entities.ResultCode {
	return entities.ResultErrorUnknown
}
