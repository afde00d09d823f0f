package wire

import (
	"fmt"

	"github.com/reeftide/abyssal-server/internal/types"
)

// JoinGame is the client's request to seat itself in the room attached to
// its connection.
type JoinGame struct {
	DisplayName string
	Creature    types.Creature
}

func EncodeJoinGame(m JoinGame) ([]byte, error) {
	e := &encoder{}
	e.putString(m.DisplayName, types.MaxDisplayNameOctets)
	e.putCreature(m.Creature)
	return e.bytes()
}

func DecodeJoinGame(data []byte) (JoinGame, error) {
	d := newDecoder(data)
	m := JoinGame{DisplayName: d.getString(), Creature: d.getCreature()}
	return m, d.done()
}

// ParticipantSnapshot is the per-participant record carried inside
// WELCOME so a joiner can reconstruct the room it just entered.
type ParticipantSnapshot struct {
	ID          types.ParticipantID
	DisplayName string
	Creature    types.Creature
	Transform   types.Transform
	WorldVolume float64
}

func (e *encoder) putParticipantSnapshot(p ParticipantSnapshot) {
	e.putUint32(uint32(p.ID))
	e.putString(p.DisplayName, types.MaxDisplayNameOctets)
	e.putCreature(p.Creature)
	e.putTransform(p.Transform)
	e.putInt32(quantizeVolume(p.WorldVolume))
}

func (d *decoder) getParticipantSnapshot() ParticipantSnapshot {
	return ParticipantSnapshot{
		ID:          types.ParticipantID(d.getUint32()),
		DisplayName: d.getString(),
		Creature:    d.getCreature(),
		Transform:   d.getTransform(),
		WorldVolume: dequantizeVolume(d.getInt32()),
	}
}

// Welcome is the server's reply to a successful JOIN_GAME.
type Welcome struct {
	ParticipantID        types.ParticipantID
	RoomID               string
	WorldSeed            uint32
	NPCSeed              uint32
	DeadNPCIDs           []uint32
	ExistingParticipants []ParticipantSnapshot
	HostID               types.ParticipantID
	IsHost               bool
}

func EncodeWelcome(m Welcome) ([]byte, error) {
	e := &encoder{}
	e.putUint32(uint32(m.ParticipantID))
	e.putString(m.RoomID, 0)
	e.putUint32(m.WorldSeed)
	e.putUint32(m.NPCSeed)
	e.putUint32(uint32(len(m.DeadNPCIDs)))
	for _, id := range m.DeadNPCIDs {
		e.putUint32(id)
	}
	e.putUint16(uint16(len(m.ExistingParticipants)))
	for _, p := range m.ExistingParticipants {
		e.putParticipantSnapshot(p)
	}
	e.putUint32(uint32(m.HostID))
	e.putBool(m.IsHost)
	return e.bytes()
}

func DecodeWelcome(data []byte) (Welcome, error) {
	d := newDecoder(data)
	m := Welcome{}
	m.ParticipantID = types.ParticipantID(d.getUint32())
	m.RoomID = d.getString()
	m.WorldSeed = d.getUint32()
	m.NPCSeed = d.getUint32()
	n := d.getUint32()
	if d.err == nil && n > 0 {
		m.DeadNPCIDs = make([]uint32, n)
		for i := range m.DeadNPCIDs {
			m.DeadNPCIDs[i] = d.getUint32()
		}
	}
	pc := d.getUint16()
	if d.err == nil && pc > 0 {
		m.ExistingParticipants = make([]ParticipantSnapshot, pc)
		for i := range m.ExistingParticipants {
			m.ExistingParticipants[i] = d.getParticipantSnapshot()
		}
	}
	m.HostID = types.ParticipantID(d.getUint32())
	m.IsHost = d.getBool()
	return m, d.done()
}

// PlayerJoin announces a new seated participant to everyone else.
type PlayerJoin struct {
	ParticipantID types.ParticipantID
	DisplayName   string
	Creature      types.Creature
	Transform     types.Transform
	WorldVolume   float64
}

func EncodePlayerJoin(m PlayerJoin) ([]byte, error) {
	e := &encoder{}
	e.putUint32(uint32(m.ParticipantID))
	e.putString(m.DisplayName, types.MaxDisplayNameOctets)
	e.putCreature(m.Creature)
	e.putTransform(m.Transform)
	e.putInt32(quantizeVolume(m.WorldVolume))
	return e.bytes()
}

func DecodePlayerJoin(data []byte) (PlayerJoin, error) {
	d := newDecoder(data)
	m := PlayerJoin{
		ParticipantID: types.ParticipantID(d.getUint32()),
		DisplayName:   d.getString(),
		Creature:      d.getCreature(),
		Transform:     d.getTransform(),
		WorldVolume:   dequantizeVolume(d.getInt32()),
	}
	return m, d.done()
}

// PlayerLeave announces a departed participant.
type PlayerLeave struct {
	ParticipantID types.ParticipantID
}

func EncodePlayerLeave(m PlayerLeave) ([]byte, error) {
	e := &encoder{}
	e.putUint32(uint32(m.ParticipantID))
	return e.bytes()
}

func DecodePlayerLeave(data []byte) (PlayerLeave, error) {
	d := newDecoder(data)
	m := PlayerLeave{ParticipantID: types.ParticipantID(d.getUint32())}
	return m, d.done()
}

// Position is a client's self-reported transform, optionally carrying a
// new worldVolume.
type Position struct {
	Pos       types.Vec3
	Rot       types.Vec3
	Scale     float64
	HasVolume bool
	Volume    float64
}

func EncodePosition(m Position) ([]byte, error) {
	e := &encoder{}
	e.putVec3Pos(m.Pos)
	e.putVec3Rot(m.Rot)
	e.putInt32(quantizeScale(m.Scale))
	e.putBool(m.HasVolume)
	if m.HasVolume {
		e.putInt32(quantizeVolume(m.Volume))
	}
	return e.bytes()
}

func DecodePosition(data []byte) (Position, error) {
	d := newDecoder(data)
	m := Position{Pos: d.getVec3Pos(), Rot: d.getVec3Rot(), Scale: dequantizeScale(d.getInt32())}
	m.HasVolume = d.getBool()
	if m.HasVolume {
		m.Volume = dequantizeVolume(d.getInt32())
	}
	return m, d.done()
}

// BatchEntry is one participant's latest transform inside a tick broadcast.
type BatchEntry struct {
	ID        types.ParticipantID
	Pos       types.Vec3
	Rot       types.Vec3
	Scale     float64
	HasVolume bool
	Volume    float64
}

func (e *encoder) putBatchEntry(b BatchEntry) {
	e.putUint32(uint32(b.ID))
	e.putVec3Pos(b.Pos)
	e.putVec3Rot(b.Rot)
	e.putInt32(quantizeScale(b.Scale))
	e.putBool(b.HasVolume)
	if b.HasVolume {
		e.putInt32(quantizeVolume(b.Volume))
	}
}

func (d *decoder) getBatchEntry() BatchEntry {
	b := BatchEntry{ID: types.ParticipantID(d.getUint32()), Pos: d.getVec3Pos(), Rot: d.getVec3Rot(), Scale: dequantizeScale(d.getInt32())}
	b.HasVolume = d.getBool()
	if b.HasVolume {
		b.Volume = dequantizeVolume(d.getInt32())
	}
	return b
}

// BatchPositions is the periodic tick broadcast of every changed
// participant's latest transform.
type BatchPositions struct {
	ServerTime int64
	Entries    []BatchEntry
}

func EncodeBatchPositions(m BatchPositions) ([]byte, error) {
	e := &encoder{}
	e.putInt64(m.ServerTime)
	e.putUint16(uint16(len(m.Entries)))
	for _, entry := range m.Entries {
		e.putBatchEntry(entry)
	}
	return e.bytes()
}

func DecodeBatchPositions(data []byte) (BatchPositions, error) {
	d := newDecoder(data)
	m := BatchPositions{ServerTime: d.getInt64()}
	n := d.getUint16()
	if d.err == nil && n > 0 {
		m.Entries = make([]BatchEntry, n)
		for i := range m.Entries {
			m.Entries[i] = d.getBatchEntry()
		}
	}
	return m, d.done()
}

// CreatureUpdate changes a participant's cosmetic creature tuple.
// HasParticipantID distinguishes a client-originated request (unset) from
// a server-originated broadcast (set).
type CreatureUpdate struct {
	HasParticipantID bool
	ParticipantID    types.ParticipantID
	Creature         types.Creature
}

func EncodeCreatureUpdate(m CreatureUpdate) ([]byte, error) {
	e := &encoder{}
	e.putBool(m.HasParticipantID)
	if m.HasParticipantID {
		e.putUint32(uint32(m.ParticipantID))
	}
	e.putCreature(m.Creature)
	return e.bytes()
}

func DecodeCreatureUpdate(data []byte) (CreatureUpdate, error) {
	d := newDecoder(data)
	m := CreatureUpdate{HasParticipantID: d.getBool()}
	if m.HasParticipantID {
		m.ParticipantID = types.ParticipantID(d.getUint32())
	}
	m.Creature = d.getCreature()
	return m, d.done()
}

// SizeUpdate is the scale-only message. The room sends it privately to
// an eater as the volume-gain hint on an accepted EAT_NPC; BATCH_POSITIONS'
// worldVolume field is authoritative for size (see DESIGN.md).
type SizeUpdate struct {
	ParticipantID types.ParticipantID
	Scale         float64
}

func EncodeSizeUpdate(m SizeUpdate) ([]byte, error) {
	e := &encoder{}
	e.putUint32(uint32(m.ParticipantID))
	e.putInt32(quantizeScale(m.Scale))
	return e.bytes()
}

func DecodeSizeUpdate(data []byte) (SizeUpdate, error) {
	d := newDecoder(data)
	m := SizeUpdate{ParticipantID: types.ParticipantID(d.getUint32()), Scale: dequantizeScale(d.getInt32())}
	return m, d.done()
}

// Ping/Pong carry wall-clock timestamps (unix millis) for RTT estimation.
type Ping struct {
	ClientTime int64
}

func EncodePing(m Ping) ([]byte, error) {
	e := &encoder{}
	e.putInt64(m.ClientTime)
	return e.bytes()
}

func DecodePing(data []byte) (Ping, error) {
	d := newDecoder(data)
	return Ping{ClientTime: d.getInt64()}, d.done()
}

type Pong struct {
	ClientTime int64
	ServerTime int64
}

func EncodePong(m Pong) ([]byte, error) {
	e := &encoder{}
	e.putInt64(m.ClientTime)
	e.putInt64(m.ServerTime)
	return e.bytes()
}

func DecodePong(data []byte) (Pong, error) {
	d := newDecoder(data)
	return Pong{ClientTime: d.getInt64(), ServerTime: d.getInt64()}, d.done()
}

// NPCOpaque wraps the host-authored NPC_SPAWN/NPC_BATCH_SPAWN payload,
// which the server never interprets, only relays.
type NPCOpaque struct {
	Data []byte
}

func EncodeNPCOpaque(m NPCOpaque) ([]byte, error) {
	e := &encoder{}
	e.putBytes(m.Data)
	return e.bytes()
}

func DecodeNPCOpaque(data []byte) (NPCOpaque, error) {
	d := newDecoder(data)
	return NPCOpaque{Data: d.getBytes()}, d.done()
}

// NPCDeath announces (or privately re-announces) the resolution of an eat
// claim for a given NPC.
type NPCDeath struct {
	NPCID    types.NPCID
	EatenBy  types.ParticipantID
}

func EncodeNPCDeath(m NPCDeath) ([]byte, error) {
	e := &encoder{}
	e.putUint32(uint32(m.NPCID))
	e.putUint32(uint32(m.EatenBy))
	return e.bytes()
}

func DecodeNPCDeath(data []byte) (NPCDeath, error) {
	d := newDecoder(data)
	return NPCDeath{NPCID: types.NPCID(d.getUint32()), EatenBy: types.ParticipantID(d.getUint32())}, d.done()
}

// EatNPC is a client's claim to have consumed an NPC.
type EatNPC struct {
	NPCID types.NPCID
}

func EncodeEatNPC(m EatNPC) ([]byte, error) {
	e := &encoder{}
	e.putUint32(uint32(m.NPCID))
	return e.bytes()
}

func DecodeEatNPC(data []byte) (EatNPC, error) {
	d := newDecoder(data)
	return EatNPC{NPCID: types.NPCID(d.getUint32())}, d.done()
}

// MapChange carries the freshly generated world seed, both as a request
// trigger (RequesterID ignored by the client) and as the resulting
// broadcast.
type MapChange struct {
	Seed        uint32
	RequesterID types.ParticipantID
}

func EncodeMapChange(m MapChange) ([]byte, error) {
	e := &encoder{}
	e.putUint32(m.Seed)
	e.putUint32(uint32(m.RequesterID))
	return e.bytes()
}

func DecodeMapChange(data []byte) (MapChange, error) {
	d := newDecoder(data)
	return MapChange{Seed: d.getUint32(), RequesterID: types.ParticipantID(d.getUint32())}, d.done()
}

// RequestMapChange has no payload.
type RequestMapChange struct{}

func EncodeRequestMapChange(RequestMapChange) ([]byte, error) { return nil, nil }

func DecodeRequestMapChange(data []byte) (RequestMapChange, error) {
	if len(data) != 0 {
		return RequestMapChange{}, fmt.Errorf("%w: REQUEST_MAP_CHANGE takes no payload", ErrInvalidFrame)
	}
	return RequestMapChange{}, nil
}

// HostAssigned tells a single joiner whether it is the room's host.
type HostAssigned struct {
	IsHost bool
}

func EncodeHostAssigned(m HostAssigned) ([]byte, error) {
	e := &encoder{}
	e.putBool(m.IsHost)
	return e.bytes()
}

func DecodeHostAssigned(data []byte) (HostAssigned, error) {
	d := newDecoder(data)
	return HostAssigned{IsHost: d.getBool()}, d.done()
}

// HostChanged announces the room's new host.
type HostChanged struct {
	HostID types.ParticipantID
}

func EncodeHostChanged(m HostChanged) ([]byte, error) {
	e := &encoder{}
	e.putUint32(uint32(m.HostID))
	return e.bytes()
}

func DecodeHostChanged(data []byte) (HostChanged, error) {
	d := newDecoder(data)
	return HostChanged{HostID: types.ParticipantID(d.getUint32())}, d.done()
}

// NPCSnapshot is the host's periodic simulation dump, relayed verbatim.
type NPCSnapshot struct {
	Tick uint64
	Fish []byte
}

func EncodeNPCSnapshot(m NPCSnapshot) ([]byte, error) {
	e := &encoder{}
	e.putUint64(m.Tick)
	e.putBytes(m.Fish)
	return e.bytes()
}

func DecodeNPCSnapshot(data []byte) (NPCSnapshot, error) {
	d := newDecoder(data)
	return NPCSnapshot{Tick: d.getUint64(), Fish: d.getBytes()}, d.done()
}

// AbilityEvent covers both ABILITY_START and ABILITY_STOP; the tag alone
// distinguishes them.
type AbilityEvent struct {
	ParticipantID types.ParticipantID
	Ability       types.AbilityKey
	Params        map[string]string
}

func EncodeAbilityEvent(m AbilityEvent) ([]byte, error) {
	e := &encoder{}
	e.putUint32(uint32(m.ParticipantID))
	e.putString(string(m.Ability), 0)
	e.putParams(m.Params)
	return e.bytes()
}

func DecodeAbilityEvent(data []byte) (AbilityEvent, error) {
	d := newDecoder(data)
	m := AbilityEvent{
		ParticipantID: types.ParticipantID(d.getUint32()),
		Ability:       types.AbilityKey(d.getString()),
		Params:        d.getParams(),
	}
	return m, d.done()
}

// PrismPlace registers a new placed structure.
type PrismPlace struct {
	PrismID  string
	PlacerID types.ParticipantID
	Geometry []byte
}

func EncodePrismPlace(m PrismPlace) ([]byte, error) {
	e := &encoder{}
	e.putString(m.PrismID, 0)
	e.putUint32(uint32(m.PlacerID))
	e.putBytes(m.Geometry)
	return e.bytes()
}

func DecodePrismPlace(data []byte) (PrismPlace, error) {
	d := newDecoder(data)
	m := PrismPlace{PrismID: d.getString(), PlacerID: types.ParticipantID(d.getUint32()), Geometry: d.getBytes()}
	return m, d.done()
}

// PrismRemove removes a previously placed structure.
type PrismRemove struct {
	PrismID  string
	PlacerID types.ParticipantID
}

func EncodePrismRemove(m PrismRemove) ([]byte, error) {
	e := &encoder{}
	e.putString(m.PrismID, 0)
	e.putUint32(uint32(m.PlacerID))
	return e.bytes()
}

func DecodePrismRemove(data []byte) (PrismRemove, error) {
	d := newDecoder(data)
	return PrismRemove{PrismID: d.getString(), PlacerID: types.ParticipantID(d.getUint32())}, d.done()
}

// Chat is a text or emoji message, broadcast or sent.
type Chat struct {
	SenderID      types.ParticipantID
	Text          string
	IsEmoji       bool
	ShowProximity bool
}

func EncodeChat(m Chat) ([]byte, error) {
	e := &encoder{}
	e.putUint32(uint32(m.SenderID))
	e.putString(m.Text, types.MaxChatOctets)
	e.putBool(m.IsEmoji)
	e.putBool(m.ShowProximity)
	return e.bytes()
}

func DecodeChat(data []byte) (Chat, error) {
	d := newDecoder(data)
	m := Chat{SenderID: types.ParticipantID(d.getUint32()), Text: d.getString()}
	m.IsEmoji = d.getBool()
	m.ShowProximity = d.getBool()
	return m, d.done()
}

// Passthrough carries an unrecognized extension-range frame verbatim.
type Passthrough struct {
	Tag MessageTag
	Raw []byte
}
