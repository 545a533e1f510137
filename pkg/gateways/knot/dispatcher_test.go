package knot

import (
	"context"
	"io"
	"testing"

	"github.com/cesar-iot/knot-gateway/pkg/entities"
	"github.com/cesar-iot/knot-gateway/pkg/gateways/knot/knotpdu"
	"github.com/cesar-iot/knot-gateway/pkg/gateways/knot/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(cloud CloudAdapter) (*Dispatcher, *TrustStore) {
	store := NewTrustStore()
	log := logrus.NewEntry(&logrus.Logger{Out: io.Discard, Level: logrus.PanicLevel, Formatter: &logrus.TextFormatter{}})
	return NewDispatcher(store, cloud, nil, nil, log), store
}

func newTestDispatcherWithDedup(cloud CloudAdapter, dedup *Deduper) (*Dispatcher, *TrustStore) {
	store := NewTrustStore()
	log := logrus.NewEntry(&logrus.Logger{Out: io.Discard, Level: logrus.PanicLevel, Formatter: &logrus.TextFormatter{}})
	return NewDispatcher(store, cloud, nil, dedup, log), store
}

func dispatch(t *testing.T, d *Dispatcher, pdu []byte) (knotpdu.Header, knotpdu.Body) {
	t.Helper()
	out := make([]byte, knotpdu.MaxPDUSize)
	n := d.Dispatch(context.Background(), Handle(1), pdu, out)
	require.GreaterOrEqual(t, n, 2, "dispatch must produce at least a header")
	h, body, err := knotpdu.Decode(out[:n])
	require.NoError(t, err)
	return h, body
}

// E1: fresh registration succeeds and binds a trust with rollback set.
func TestDispatchRegisterFresh(t *testing.T) {
	cloud := new(mocks.CloudAdapterMock)
	cloud.On("MkNode", context.Background(), "lamp", uint64(42)).
		Return("111111111122222222223333333333444444", "1111111111222222222233333333334444444444", entities.ResultSuccess)
	cloud.On("SignIn", context.Background(), "111111111122222222223333333333444444", "1111111111222222222233333333334444444444").
		Return(nil, nil, entities.ResultSuccess)

	d, store := newTestDispatcher(cloud)
	req, err := knotpdu.Encode(knotpdu.TypeRegisterReq, knotpdu.RegisterReq{DeviceID: 42, DeviceName: "lamp"})
	require.NoError(t, err)

	h, body := dispatch(t, d, req)
	assert.Equal(t, knotpdu.TypeRegisterResp, h.Type)
	cred, ok := body.(knotpdu.Credential)
	require.True(t, ok)
	assert.Equal(t, "111111111122222222223333333333444444", cred.UUID)

	trust := store.Lookup(Handle(1))
	require.NotNil(t, trust)
	assert.True(t, trust.Rollback)
	cloud.AssertExpectations(t)
}

// E2: a re-transmitted register for the same device/peer on the same
// handle must not call MkNode again; it just re-sends the credential.
func TestDispatchRegisterRetransmitIsIdempotent(t *testing.T) {
	cloud := new(mocks.CloudAdapterMock)
	cloud.On("MkNode", context.Background(), "lamp", uint64(42)).
		Return("111111111122222222223333333333444444", "1111111111222222222233333333334444444444", entities.ResultSuccess).
		Once()
	cloud.On("SignIn", context.Background(), "111111111122222222223333333333444444", "1111111111222222222233333333334444444444").
		Return(nil, nil, entities.ResultSuccess).
		Once()

	d, _ := newTestDispatcher(cloud)
	req, err := knotpdu.Encode(knotpdu.TypeRegisterReq, knotpdu.RegisterReq{DeviceID: 42, DeviceName: "lamp"})
	require.NoError(t, err)

	_, first := dispatch(t, d, req)
	_, second := dispatch(t, d, req)

	assert.Equal(t, first, second)
	cloud.AssertNumberOfCalls(t, "MkNode", 1)
	cloud.AssertExpectations(t)
}

// E3: schema upload for an authenticated handle stages entries and
// commits them to the cloud on SCHEMA_END, clearing rollback.
func TestDispatchSchemaUploadCommitsOnEnd(t *testing.T) {
	cloud := new(mocks.CloudAdapterMock)
	cloud.On("SubmitSchema", context.Background(), "uuid", "token", []entities.SchemaEntry{
		{SensorID: 1, TypeID: TypeIDTemperature, ValueType: ValueTypeFloat, Unit: UnitCelsius, Name: "temp"},
	}).Return(entities.ResultSuccess)

	d, store := newTestDispatcher(cloud)
	require.NoError(t, store.Insert(Handle(1), &entities.Trust{UUID: "uuid", Token: "token", Rollback: true}))

	entry, err := knotpdu.Encode(knotpdu.TypeSchemaEnd, knotpdu.SchemaBody{
		SensorID: 1, TypeID: TypeIDTemperature, ValueType: ValueTypeFloat, Unit: UnitCelsius, Name: "temp",
	})
	require.NoError(t, err)

	h, body := dispatch(t, d, entry)
	assert.Equal(t, knotpdu.TypeSchemaEndResp, h.Type)
	res, ok := body.(knotpdu.Result)
	require.True(t, ok)
	assert.Equal(t, entities.ResultSuccess, entities.ResultCode(res.Code))

	trust := store.Lookup(Handle(1))
	require.NotNil(t, trust)
	assert.False(t, trust.Rollback)
	assert.Len(t, trust.Schema, 1)
	assert.Empty(t, trust.SchemaStaging)
	cloud.AssertExpectations(t)
}

// E4: data for a sensor id absent from the committed schema is rejected
// as invalid_data and never reaches the cloud.
func TestDispatchDataSchemaMismatchRejected(t *testing.T) {
	cloud := new(mocks.CloudAdapterMock)
	d, store := newTestDispatcher(cloud)
	require.NoError(t, store.Insert(Handle(1), &entities.Trust{UUID: "uuid", Token: "token"}))

	pdu, err := knotpdu.Encode(knotpdu.TypeData, knotpdu.DataBody{SensorID: 9, Payload: []byte{1}})
	require.NoError(t, err)

	h, body := dispatch(t, d, pdu)
	assert.Equal(t, knotpdu.TypeDataResp, h.Type)
	res, ok := body.(knotpdu.Result)
	require.True(t, ok)
	assert.Equal(t, entities.ResultInvalidData, entities.ResultCode(res.Code))
	cloud.AssertNotCalled(t, "PushData")
}

// E5: data for a known, valid sensor pushes to the cloud and triggers a
// best-effort pull, surfacing PushData's result to the node.
func TestDispatchDataHappyPath(t *testing.T) {
	cloud := new(mocks.CloudAdapterMock)
	cloud.On("PushData", context.Background(), "uuid", "token", uint8(1), ValueTypeFloat, []byte{0x01, 0x02}).
		Return(entities.ResultSuccess)
	cloud.On("PullData", context.Background(), "uuid", "token", uint8(1)).
		Return(entities.ResultSuccess)

	d, store := newTestDispatcher(cloud)
	require.NoError(t, store.Insert(Handle(1), &entities.Trust{
		UUID: "uuid", Token: "token",
		Schema: []entities.SchemaEntry{{SensorID: 1, TypeID: TypeIDTemperature, ValueType: ValueTypeFloat, Unit: UnitCelsius}},
	}))

	pdu, err := knotpdu.Encode(knotpdu.TypeData, knotpdu.DataBody{SensorID: 1, Payload: []byte{0x01, 0x02}})
	require.NoError(t, err)

	h, body := dispatch(t, d, pdu)
	assert.Equal(t, knotpdu.TypeDataResp, h.Type)
	res, ok := body.(knotpdu.Result)
	require.True(t, ok)
	assert.Equal(t, entities.ResultSuccess, entities.ResultCode(res.Code))
	cloud.AssertExpectations(t)
}

// E6: unregister removes the trust and releases it from the cloud.
func TestDispatchUnregister(t *testing.T) {
	cloud := new(mocks.CloudAdapterMock)
	cloud.On("RmNode", context.Background(), "uuid", "token").Return(entities.ResultSuccess)

	d, store := newTestDispatcher(cloud)
	require.NoError(t, store.Insert(Handle(1), &entities.Trust{UUID: "uuid", Token: "token"}))

	pdu, err := knotpdu.Encode(knotpdu.TypeUnregisterReq, nil)
	require.NoError(t, err)

	h, body := dispatch(t, d, pdu)
	assert.Equal(t, knotpdu.TypeUnregisterResp, h.Type)
	res, ok := body.(knotpdu.Result)
	require.True(t, ok)
	assert.Equal(t, entities.ResultSuccess, entities.ResultCode(res.Code))
	assert.Nil(t, store.Lookup(Handle(1)))
	cloud.AssertExpectations(t)
}

// A second DATA PDU carrying the same sensor reading is suppressed by
// the deduper: the node still gets a success reply, but PushData is
// only invoked once.
func TestDispatchDataDuplicateSuppressedByDeduper(t *testing.T) {
	cloud := new(mocks.CloudAdapterMock)
	cloud.On("PushData", context.Background(), "uuid", "token", uint8(1), ValueTypeFloat, []byte{0x01, 0x02}).
		Return(entities.ResultSuccess).
		Once()
	cloud.On("PullData", context.Background(), "uuid", "token", uint8(1)).
		Return(entities.ResultSuccess)

	dedup := NewDeduper(1000, 0.01, 0.75)
	d, store := newTestDispatcherWithDedup(cloud, dedup)
	require.NoError(t, store.Insert(Handle(1), &entities.Trust{
		UUID: "uuid", Token: "token",
		Schema: []entities.SchemaEntry{{SensorID: 1, TypeID: TypeIDTemperature, ValueType: ValueTypeFloat, Unit: UnitCelsius}},
	}))

	pdu, err := knotpdu.Encode(knotpdu.TypeData, knotpdu.DataBody{SensorID: 1, Payload: []byte{0x01, 0x02}})
	require.NoError(t, err)

	firstHeader, first := dispatch(t, d, pdu)
	secondHeader, second := dispatch(t, d, pdu)

	assert.Equal(t, entities.ResultSuccess, replyResult(t, firstHeader, first))
	assert.Equal(t, entities.ResultSuccess, replyResult(t, secondHeader, second))
	cloud.AssertNumberOfCalls(t, "PushData", 1)
}

// Every PDU type that requires an authenticated trust must reject an
// untrusted handle with credential_unauthorized and never call the
// cloud adapter.
func TestDispatchUnauthorizedHandleRejectsEveryGatedMessage(t *testing.T) {
	cases := []struct {
		name    string
		msgType uint8
		body    knotpdu.Body
		want    uint8
	}{
		{"unregister", knotpdu.TypeUnregisterReq, nil, knotpdu.TypeUnregisterResp},
		{"schema", knotpdu.TypeSchema, knotpdu.SchemaBody{SensorID: 1}, knotpdu.TypeSchemaResp},
		{"data", knotpdu.TypeData, knotpdu.DataBody{SensorID: 1, Payload: []byte{0}}, knotpdu.TypeDataResp},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cloud := new(mocks.CloudAdapterMock)
			d, _ := newTestDispatcher(cloud)

			pdu, err := knotpdu.Encode(tc.msgType, tc.body)
			require.NoError(t, err)

			h, body := dispatch(t, d, pdu)
			assert.Equal(t, tc.want, h.Type)
			res, ok := body.(knotpdu.Result)
			require.True(t, ok)
			assert.Equal(t, entities.ResultCredentialUnauthorized, entities.ResultCode(res.Code))
			cloud.AssertNotCalled(t, "RmNode")
			cloud.AssertNotCalled(t, "PushData")
			cloud.AssertNotCalled(t, "SubmitSchema")
		})
	}
}

// Teardown of a trust that never completed a schema upload (rollback
// still true) must remove the device from the cloud.
func TestTeardownRollsBackUnfinishedRegistration(t *testing.T) {
	cloud := new(mocks.CloudAdapterMock)
	cloud.On("RmNode", context.Background(), "uuid", "token").Return(entities.ResultSuccess)

	d, store := newTestDispatcher(cloud)
	require.NoError(t, store.Insert(Handle(1), &entities.Trust{UUID: "uuid", Token: "token", Rollback: true}))

	d.Teardown(context.Background(), Handle(1))
	cloud.AssertExpectations(t)
}

// Teardown of a trust that completed its schema upload (rollback
// cleared) must NOT touch the cloud.
func TestTeardownSkipsRollbackOnceSchemaCommitted(t *testing.T) {
	cloud := new(mocks.CloudAdapterMock)
	d, store := newTestDispatcher(cloud)
	require.NoError(t, store.Insert(Handle(1), &entities.Trust{UUID: "uuid", Token: "token", Rollback: false}))

	d.Teardown(context.Background(), Handle(1))
	cloud.AssertNotCalled(t, "RmNode")
}

// A schema commit rejected by the cloud must discard the staged
// entries rather than promoting them, leaving the committed schema
// untouched.
func TestDispatchSchemaCommitDiscardsStagingOnCloudRejection(t *testing.T) {
	cloud := new(mocks.CloudAdapterMock)
	cloud.On("SubmitSchema", context.Background(), "uuid", "token", []entities.SchemaEntry{
		{SensorID: 1, TypeID: TypeIDTemperature, ValueType: ValueTypeFloat, Unit: UnitCelsius},
	}).Return(entities.ResultErrorUnknown)

	d, store := newTestDispatcher(cloud)
	require.NoError(t, store.Insert(Handle(1), &entities.Trust{UUID: "uuid", Token: "token"}))

	pdu, err := knotpdu.Encode(knotpdu.TypeSchemaEnd, knotpdu.SchemaBody{
		SensorID: 1, TypeID: TypeIDTemperature, ValueType: ValueTypeFloat, Unit: UnitCelsius,
	})
	require.NoError(t, err)

	h, body := dispatch(t, d, pdu)
	assert.Equal(t, knotpdu.TypeSchemaEndResp, h.Type)
	res, ok := body.(knotpdu.Result)
	require.True(t, ok)
	assert.Equal(t, entities.ResultErrorUnknown, entities.ResultCode(res.Code))

	trust := store.Lookup(Handle(1))
	require.NotNil(t, trust)
	assert.Empty(t, trust.Schema)
	assert.Empty(t, trust.SchemaStaging)
}
