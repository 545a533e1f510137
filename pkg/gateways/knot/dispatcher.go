package knot

import (
	"context"

	"github.com/cesar-iot/knot-gateway/pkg/entities"
	"github.com/cesar-iot/knot-gateway/pkg/gateways/knot/knotpdu"
	"github.com/sirupsen/logrus"
)

// PeerResolver best-effort resolves the local peer process id that
// owns a connection handle, returning 0 when unknown. The transport
// supplies this; on platforms without peer credentials it's a no-op.
type PeerResolver func(h Handle) int32

// Dispatcher is the KNOT message-processing state machine: it decodes
// each PDU, enforces the register/sign-in/schema/data lifecycle against
// the trust store, and produces the reply PDU.
type Dispatcher struct {
	store   *TrustStore
	cloud   CloudAdapter
	peerPID PeerResolver
	dedup   *Deduper
	log     *logrus.Entry
}

// NewDispatcher builds a dispatcher over store and cloud. peerPID may
// be nil, in which case every handle resolves to pid 0. dedup may be
// nil, in which case every push is forwarded unconditionally.
func NewDispatcher(store *TrustStore, cloud CloudAdapter, peerPID PeerResolver, dedup *Deduper, log *logrus.Entry) *Dispatcher {
	if peerPID == nil {
		peerPID = func(Handle) int32 { return 0 }
	}
	return &Dispatcher{store: store, cloud: cloud, peerPID: peerPID, dedup: dedup, log: log}
}

// Dispatch decodes and processes one PDU received on handle h, writing
// the reply into out. It returns the number of bytes to transmit, 0 to
// send nothing, or a negative value for a structural input error (the
// transport decides whether to drop the connection in that case).
func (d *Dispatcher) Dispatch(ctx context.Context, h Handle, in []byte, out []byte) int {
	if len(out) < knotpdu.MaxPDUSize {
		return -1
	}

	header, body, err := knotpdu.Decode(in)
	if err != nil {
		d.log.WithError(err).Debug("malformed PDU")
		return -1
	}

	d.log.WithFields(logrus.Fields{"type": header.Type, "len": header.PayloadLen}).Debug("dispatching PDU")

	switch header.Type {
	case knotpdu.TypeRegisterReq:
		return d.handleRegister(ctx, h, body, out)

	case knotpdu.TypeUnregisterReq:
		return d.writeReply(out, knotpdu.TypeUnregisterResp, d.handleUnregister(ctx, h))

	case knotpdu.TypeAuthReq:
		return d.writeReply(out, knotpdu.TypeAuthResp, d.handleAuth(ctx, h, body))

	case knotpdu.TypeSchema, knotpdu.TypeSchemaEnd:
		eof := header.Type == knotpdu.TypeSchemaEnd
		respType := knotpdu.TypeSchemaResp
		if eof {
			respType = knotpdu.TypeSchemaEndResp
		}
		return d.writeReply(out, respType, d.handleSchema(ctx, h, body, eof))

	case knotpdu.TypeData:
		return d.writeReply(out, knotpdu.TypeDataResp, d.handleData(ctx, h, body))

	case knotpdu.TypeConfigResp:
		d.handleConfigResp(h, body)
		return 0

	case knotpdu.TypeDataResp:
		d.handleDataResp(ctx, h, body)
		return 0

	default:
		d.log.WithField("type", header.Type).Debug("unknown message type")
		return d.writeReply(out, 0, entities.ResultInvalidData)
	}
}

func (d *Dispatcher) handleRegister(ctx context.Context, h Handle, body knotpdu.Body, out []byte) int {
	req, ok := body.(knotpdu.RegisterReq)
	if !ok || req.DeviceName == "" {
		return d.writeReply(out, knotpdu.TypeRegisterResp, entities.ResultRegisterInvalidDeviceName)
	}

	pid := d.peerPID(h)

	// Due to transport packet loss, the node may re-transmit its
	// register request if the response doesn't arrive in ~20s. If this
	// connection already trusts the same device and peer, just
	// re-send the existing credential instead of registering again.
	if trust := d.store.Lookup(h); trust != nil && trust.DeviceID == req.DeviceID && trust.PeerPID == pid {
		return d.writeCredentialReply(out, trust.UUID, trust.Token)
	}

	uuid, token, result := d.cloud.MkNode(ctx, req.DeviceName, req.DeviceID)
	if result != entities.ResultSuccess {
		return d.writeReply(out, knotpdu.TypeRegisterResp, result)
	}

	// Schema/config returned here are ignored: this is a fresh
	// registration, nothing has been submitted yet.
	if _, _, result := d.cloud.SignIn(ctx, uuid, token); result != entities.ResultSuccess {
		return d.writeReply(out, knotpdu.TypeRegisterResp, result)
	}

	trust := &entities.Trust{
		PeerPID:  pid,
		DeviceID: req.DeviceID,
		UUID:     uuid,
		Token:    token,
		Rollback: true,
	}
	if err := d.store.Insert(h, trust); err != nil {
		d.log.WithError(err).Error("register: trust store insert")
		return d.writeReply(out, knotpdu.TypeRegisterResp, entities.ResultErrorUnknown)
	}

	return d.writeCredentialReply(out, uuid, token)
}

func (d *Dispatcher) handleUnregister(ctx context.Context, h Handle) entities.ResultCode {
	trust := d.store.Acquire(h)
	if trust == nil {
		return entities.ResultCredentialUnauthorized
	}
	defer d.store.Release(h)

	result := d.cloud.RmNode(ctx, trust.UUID, trust.Token)
	if result != entities.ResultSuccess {
		return result
	}

	d.store.Remove(h)
	if d.dedup != nil {
		d.dedup.Forget(trust.UUID)
	}
	return entities.ResultSuccess
}

func (d *Dispatcher) handleAuth(ctx context.Context, h Handle, body knotpdu.Body) entities.ResultCode {
	if trust := d.store.Lookup(h); trust != nil {
		return entities.ResultSuccess
	}

	req, ok := body.(knotpdu.Credential)
	if !ok {
		return entities.ResultErrorUnknown
	}

	schema, config, result := d.cloud.SignIn(ctx, req.UUID, req.Token)
	if result != entities.ResultSuccess {
		return result
	}
	if len(schema) == 0 {
		return entities.ResultSchemaEmpty
	}

	if err := ValidateConfig(config); err != nil {
		d.log.WithError(err).Debug("auth: dropping invalid config from cloud")
		config = nil
	}

	trust := &entities.Trust{
		UUID:   req.UUID,
		Token:  req.Token,
		Schema: schema,
		Config: config,
	}
	if err := d.store.Insert(h, trust); err != nil {
		d.log.WithError(err).Error("auth: trust store insert")
		return entities.ResultErrorUnknown
	}
	return entities.ResultSuccess
}

func (d *Dispatcher) handleSchema(ctx context.Context, h Handle, body knotpdu.Body, eof bool) entities.ResultCode {
	trust := d.store.Lookup(h)
	if trust == nil {
		return entities.ResultCredentialUnauthorized
	}

	entry, ok := body.(knotpdu.SchemaBody)
	if !ok {
		return entities.ResultErrorUnknown
	}

	// Receiving a schema entry means the node holds its cloud
	// credentials already; clear rollback to stop anti-clone teardown
	// from removing this registration.
	trust.Rollback = false

	if findSchemaStaging(trust, entry.SensorID) == nil {
		trust.SchemaStaging = append(trust.SchemaStaging, entities.SchemaEntry{
			SensorID:  entry.SensorID,
			TypeID:    entry.TypeID,
			ValueType: entry.ValueType,
			Unit:      entry.Unit,
			Name:      entry.Name,
		})
	}

	if !eof {
		return entities.ResultSuccess
	}

	trust = d.store.Acquire(h)
	defer d.store.Release(h)

	result := d.cloud.SubmitSchema(ctx, trust.UUID, trust.Token, trust.SchemaStaging)
	if result != entities.ResultSuccess {
		trust.SchemaStaging = nil
		return result
	}

	trust.Schema = trust.SchemaStaging
	trust.SchemaStaging = nil
	return entities.ResultSuccess
}

func (d *Dispatcher) handleData(ctx context.Context, h Handle, body knotpdu.Body) entities.ResultCode {
	trust := d.store.Acquire(h)
	if trust == nil {
		return entities.ResultCredentialUnauthorized
	}
	defer d.store.Release(h)

	data, ok := body.(knotpdu.DataBody)
	if !ok {
		return entities.ResultInvalidData
	}

	schema := FindSchema(trust, data.SensorID)
	if schema == nil {
		d.log.WithField("sensor_id", data.SensorID).Debug("data type mismatch: unknown sensor")
		return entities.ResultInvalidData
	}
	if !ValidateSchemaTriple(schema.TypeID, schema.ValueType, schema.Unit) {
		d.log.WithField("sensor_id", data.SensorID).Debug("data type mismatch: unit/value_type")
		return entities.ResultInvalidData
	}

	if d.dedup != nil && d.dedup.Seen(trust.UUID, data.SensorID, data.Payload) {
		d.log.WithField("sensor_id", data.SensorID).Debug("data: duplicate reading suppressed")
		return entities.ResultSuccess
	}

	result := d.cloud.PushData(ctx, trust.UUID, trust.Token, data.SensorID, schema.ValueType, data.Payload)

	// Best-effort fetch trigger; a pull failure never changes the
	// reply to the node.
	if pullResult := d.cloud.PullData(ctx, trust.UUID, trust.Token, data.SensorID); pullResult != entities.ResultSuccess {
		d.log.WithField("sensor_id", data.SensorID).Debug("pull_data trigger failed")
	}

	return result
}

func (d *Dispatcher) handleConfigResp(h Handle, body knotpdu.Body) {
	trust := d.store.Lookup(h)
	if trust == nil {
		return
	}

	resp, ok := body.(knotpdu.ConfigRespBody)
	if !ok {
		return
	}

	// TODO: always forward instead of avoiding repeated configs.
	remaining := make([]entities.ConfigEntry, 0, len(trust.Config))
	for _, c := range trust.Config {
		if c.SensorID != resp.SensorID {
			remaining = append(remaining, c)
		}
	}
	trust.Config = remaining
}

func (d *Dispatcher) handleDataResp(ctx context.Context, h Handle, body knotpdu.Body) {
	trust := d.store.Acquire(h)
	if trust == nil {
		return
	}
	defer d.store.Release(h)

	data, ok := body.(knotpdu.DataBody)
	if !ok {
		return
	}

	schema := FindSchema(trust, data.SensorID)
	if schema == nil || !ValidateSchemaTriple(schema.TypeID, schema.ValueType, schema.Unit) {
		d.log.WithField("sensor_id", data.SensorID).Debug("set-data response: type mismatch")
		return
	}

	if result := d.cloud.AckSetData(ctx, trust.UUID, trust.Token, data.SensorID); result != entities.ResultSuccess {
		d.log.WithField("sensor_id", data.SensorID).Debug("ack_setdata failed")
		return
	}

	d.cloud.PushData(ctx, trust.UUID, trust.Token, data.SensorID, schema.ValueType, data.Payload)
}

func (d *Dispatcher) writeReply(out []byte, msgType uint8, result entities.ResultCode) int {
	pdu, err := knotpdu.Encode(msgType, knotpdu.Result{Code: int8(result)})
	if err != nil {
		d.log.WithError(err).Error("encode reply")
		return -1
	}
	return copy(out, pdu)
}

func (d *Dispatcher) writeCredentialReply(out []byte, uuid, token string) int {
	pdu, err := knotpdu.Encode(knotpdu.TypeRegisterResp, knotpdu.Credential{UUID: uuid, Token: token})
	if err != nil {
		d.log.WithError(err).Error("encode credential reply")
		return d.writeReply(out, knotpdu.TypeRegisterResp, entities.ResultErrorUnknown)
	}
	return copy(out, pdu)
}

// Teardown tears down h's connection: removes its trust and, per
// §anti-clone rollback, removes the device from the cloud if it had
// registered but never completed a schema upload.
func (d *Dispatcher) Teardown(ctx context.Context, h Handle) {
	trust := d.store.Remove(h)
	if trust == nil {
		return
	}
	if d.dedup != nil {
		d.dedup.Forget(trust.UUID)
	}
	if trust.Rollback {
		if result := d.cloud.RmNode(ctx, trust.UUID, trust.Token); result != entities.ResultSuccess {
			d.log.WithField("uuid", trust.UUID).WithField("result", result).Warn("rollback: rmnode failed")
		}
	}
}

// TeardownAll destroys every trust in the store, applying the same
// rollback rule as Teardown to each. Used on transport shutdown.
func (d *Dispatcher) TeardownAll(ctx context.Context) {
	d.store.DestroyAll(func(h Handle, trust *entities.Trust) {
		if d.dedup != nil {
			d.dedup.Forget(trust.UUID)
		}
		if trust.Rollback {
			if result := d.cloud.RmNode(ctx, trust.UUID, trust.Token); result != entities.ResultSuccess {
				d.log.WithField("uuid", trust.UUID).WithField("result", result).Warn("rollback: rmnode failed")
			}
		}
	})
}
