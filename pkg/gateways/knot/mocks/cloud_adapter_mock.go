package mocks

import (
	"context"

	"github.com/cesar-iot/knot-gateway/pkg/entities"
	"github.com/stretchr/testify/mock"
)

// CloudAdapterMock is a testify mock of knot.CloudAdapter, used by the
// dispatcher tests to assert exactly which cloud operations a PDU
// sequence triggers.
type CloudAdapterMock struct {
	mock.Mock
}

func (m *CloudAdapterMock) MkNode(ctx context.Context, deviceName string, deviceID uint64) (string, string, entities.ResultCode) {
	args := m.Called(ctx, deviceName, deviceID)
	return args.String(0), args.String(1), args.Get(2).(entities.ResultCode)
}

func (m *CloudAdapterMock) RmNode(ctx context.Context, uuid, token string) entities.ResultCode {
	args := m.Called(ctx, uuid, token)
	return args.Get(0).(entities.ResultCode)
}

func (m *CloudAdapterMock) SignIn(ctx context.Context, uuid, token string) ([]entities.SchemaEntry, []entities.ConfigEntry, entities.ResultCode) {
	args := m.Called(ctx, uuid, token)
	var schema []entities.SchemaEntry
	if s := args.Get(0); s != nil {
		schema = s.([]entities.SchemaEntry)
	}
	var config []entities.ConfigEntry
	if c := args.Get(1); c != nil {
		config = c.([]entities.ConfigEntry)
	}
	return schema, config, args.Get(2).(entities.ResultCode)
}

func (m *CloudAdapterMock) SubmitSchema(ctx context.Context, uuid, token string, schema []entities.SchemaEntry) entities.ResultCode {
	args := m.Called(ctx, uuid, token, schema)
	return args.Get(0).(entities.ResultCode)
}

func (m *CloudAdapterMock) PushData(ctx context.Context, uuid, token string, sensorID uint8, valueType uint8, payload []byte) entities.ResultCode {
	args := m.Called(ctx, uuid, token, sensorID, valueType, payload)
	return args.Get(0).(entities.ResultCode)
}

func (m *CloudAdapterMock) PullData(ctx context.Context, uuid, token string, sensorID uint8) entities.ResultCode {
	args := m.Called(ctx, uuid, token, sensorID)
	return args.Get(0).(entities.ResultCode)
}

func (m *CloudAdapterMock) AckSetData(ctx context.Context, uuid, token string, sensorID uint8) entities.ResultCode {
	args := m.Called(ctx, uuid, token, sensorID)
	return args.Get(0).(entities.ResultCode)
}
