package filter

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reallyoldfogie/mcpr-studio/mcpr/packetlog"
	"github.com/reallyoldfogie/mcpr-studio/protocol"
)

func lifecycleDeps(t *testing.T) Deps {
	t.Helper()
	cb := protocol.ClientBound
	str := func(name string) protocol.FieldSpec { return protocol.FieldSpec{Name: name, Kind: protocol.KindString} }
	reg, err := protocol.NewBuilder().
		AddVersion(protocol.VersionSpec{Version: 47, Packets: []protocol.PacketSchema{
			{Name: "spawn_object", ID: 0x0e, Direction: cb, Fields: []protocol.FieldSpec{
				{Name: "entity", Kind: protocol.KindVarInt}, {Name: "type", Kind: protocol.KindByte},
			}},
			{Name: "spawn_mob", ID: 0x0f, Direction: cb, Fields: []protocol.FieldSpec{
				{Name: "entity", Kind: protocol.KindVarInt}, {Name: "type", Kind: protocol.KindUByte},
			}},
			{Name: "destroy_entities", ID: 0x13, Direction: cb, Fields: []protocol.FieldSpec{
				{Name: "entities", Kind: protocol.KindArray, Elem: protocol.KindVarInt},
			}},
			{Name: "entity_move", ID: 0x15, Direction: cb, Fields: []protocol.FieldSpec{
				{Name: "entity", Kind: protocol.KindVarInt}, {Name: "dx", Kind: protocol.KindByte},
			}},
			{Name: "scoreboard_objective", ID: 0x3b, Direction: cb, Fields: []protocol.FieldSpec{
				str("name"), {Name: "mode", Kind: protocol.KindByte}, {Name: "data", Kind: protocol.KindRest},
			}},
			{Name: "teams", ID: 0x3e, Direction: cb, Fields: []protocol.FieldSpec{
				str("name"), {Name: "mode", Kind: protocol.KindByte}, {Name: "data", Kind: protocol.KindRest},
			}},
		}}).
		Build()
	require.NoError(t, err)
	return Deps{Registry: reg, Version: 47, Logger: zerolog.Nop()}
}

func spawnMob(ms int64, entity, typ byte) packetlog.Record { return rec(ms, 0x0f, entity, typ) }
func move(ms int64, entity byte) packetlog.Record { return rec(ms, 0x15, entity, 0x05) }

func destroy(ms int64, ids ...byte) packetlog.Record {
	return rec(ms, append([]byte{0x13, byte(len(ids))}, ids...)...)
}

func team(ms int64, name string, mode byte, data ...byte) packetlog.Record {
	b := append([]byte{0x3e, byte(len(name))}, name...)
	return rec(ms, append(append(b, mode), data...)...)
}

func objective(ms int64, name string, mode byte, data ...byte) packetlog.Record {
	b := append([]byte{0x3b, byte(len(name))}, name...)
	return rec(ms, append(append(b, mode), data...)...)
}

func TestNeutralizer(t *testing.T) {
	deps := lifecycleDeps(t)
	f, err := New("neutralizer", nil, deps)
	require.NoError(t, err)

	in := []packetlog.Record{
		spawnMob(0, 1, 54),
		rec(10, 0x0e, 0x02, 0x3c),
		spawnMob(20, 3, 50),
		destroy(30, 2),
		team(40, "red", 0, 0xaa),
		team(50, "blue", 0, 0xbb),
		team(60, "blue", 1),
		objective(70, "kills", 0, 0x01, 'x'),
		move(80, 1),
		rec(200, 0x55),
	}
	out, stats := runAll(t, NewPipeline(Stage{Filter: f, From: Open, To: 100}), in)

	require.Len(t, out.recs, 13)
	assert.Equal(t, in[:9], out.recs[:9])
	assert.Equal(t, destroy(100, 1, 3), out.recs[9])
	assert.Equal(t, team(100, "red", 1), out.recs[10])
	assert.Equal(t, objective(100, "kills", 1), out.recs[11])
	assert.Equal(t, in[9], out.recs[12])
	assert.Equal(t, Stats{In: 10, Out: 13}, stats)
	assertMonotonic(t, out.times())

	entities, teams, objectives := f.(*Neutralizer).Open()
	assert.Equal(t, [3]int{2, 1, 1}, [3]int{entities, teams, objectives})

	// Nothing left open, nothing added.
	out, _ = runAll(t, NewPipeline(Apply(f)), []packetlog.Record{spawnMob(0, 7, 1), destroy(5, 7)})
	assert.Len(t, out.recs, 2)

	_, err = New("neutralizer", nil, Deps{})
	assert.Error(t, err, "needs protocol data")
	_, err = New("neutralizer", map[string]any{"team": "destroy_entities"}, deps)
	assert.Error(t, err, "one packet in two roles")
}

func TestNeutralizerRenamedPackets(t *testing.T) {
	deps := lifecycleDeps(t)
	f, err := New("neutralizer", map[string]any{"spawn": "entity_move", "objective": "", "remove_mode": "7"}, deps)
	require.NoError(t, err)

	in := []packetlog.Record{move(0, 4), spawnMob(10, 5, 1), team(20, "red", 0), objective(30, "kills", 0)}
	out, _ := runAll(t, NewPipeline(Apply(f)), in)
	require.Len(t, out.recs, 6)
	assert.Equal(t, destroy(30, 4), out.recs[4], "only the configured spawn packets count")
	assert.Equal(t, team(30, "red", 7), out.recs[5])
}

func TestRemoveMobs(t *testing.T) {
	deps := lifecycleDeps(t)
	f, err := New("remove_mobs", map[string]any{"types": "54"}, deps)
	require.NoError(t, err)
	rm := f.(*RemoveMobs)
	assert.True(t, rm.Types[54])

	in := []packetlog.Record{
		spawnMob(0, 1, 54),
		spawnMob(10, 2, 50),
		rec(20, 0x0e, 0x03, 54), // an object, not a mob
		move(30, 1),
		move(40, 2),
		destroy(50, 1, 2),
		spawnMob(60, 4, 54),
		destroy(70, 4),
		rec(80, 0x55),
	}
	out, stats := runAll(t, NewPipeline(Apply(f)), in)

	require.Len(t, out.recs, 5)
	assert.Equal(t, in[1], out.recs[0])
	assert.Equal(t, in[2], out.recs[1])
	assert.Equal(t, in[4], out.recs[2])
	assert.Equal(t, destroy(50, 2), out.recs[3])
	assert.Equal(t, in[8], out.recs[4])
	assert.Equal(t, 4, rm.Dropped())
	assert.Equal(t, stats.In-rm.Dropped(), stats.Out)

	f, err = New("remove_mobs", map[string]any{"types": []string{"50", "54"}, "spawn": []string{"spawn_mob", "spawn_object"}}, deps)
	require.NoError(t, err)
	out, _ = runAll(t, NewPipeline(Apply(f)), in[:3])
	assert.Empty(t, out.recs)

	_, err = New("remove_mobs", nil, deps)
	assert.Error(t, err)
	_, err = New("remove_mobs", map[string]any{"types": "54"}, Deps{})
	assert.Error(t, err)
}

func TestSquashMergesLifecycles(t *testing.T) {
	deps := lifecycleDeps(t)
	in := []packetlog.Record{
		spawnMob(0, 1, 54),
		move(10, 1),
		spawnMob(20, 2, 50),
		destroy(30, 1),
		team(40, "red", 0),
		team(50, "blue", 0),
		team(55, "red", 3, 0x01),
		team(60, "red", 1),
		move(70, 9), // spawned before the window
		destroy(80, 9),
		team(90, "green", 1),
		rec(1200, 0x55),
	}

	f, err := New("squash", nil, deps)
	require.NoError(t, err)
	out, _ := runAll(t, NewPipeline(Stage{Filter: f, From: Open, To: 1000}), in)
	assert.Equal(t, []packetlog.Record{
		spawnMob(1000, 2, 50),
		team(1000, "blue", 0),
		move(1000, 9),
		destroy(1000, 9),
		team(1000, "green", 1),
		in[11],
	}, out.recs)

	plain, err := New("squash", map[string]any{"merge": "false"}, deps)
	require.NoError(t, err)
	out, _ = runAll(t, NewPipeline(Stage{Filter: plain, From: Open, To: 1000}), in)
	assert.Len(t, out.recs, len(in))

	// A destroy naming one entity from the window and one from before keeps
	// only the second alive.
	out, _ = runAll(t, NewPipeline(Apply(f)), []packetlog.Record{spawnMob(0, 1, 1), move(5, 1), destroy(10, 1, 9)})
	assert.Equal(t, []packetlog.Record{destroy(10, 1, 9)}, out.recs)
}
