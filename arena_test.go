package main

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnerPopulatesOnReset(t *testing.T) {
	bf := newTestBattlefield(t)
	NewSpawner(bf, 2, false, zerolog.Nop())
	// walkers would take their first step during activation
	bf.SetEnemiesEnabled(false)
	require.NoError(t, bf.Reset(DefaultLevel()))

	y, g := bf.Player(Yellow), bf.Player(Green)
	assert.True(t, y.Active())
	assert.True(t, g.Active())
	assert.False(t, y.Autopilot)
	assert.Equal(t, Vec{4, 1}, y.Pos)
	assert.Equal(t, Vec{8, 1}, g.Pos)

	tanks := bf.Tanks()
	require.Len(t, tanks, 4)
	assert.Equal(t, Vec{0, 12}, tanks[2].Pos)
	assert.Equal(t, Vec{6, 12}, tanks[3].Pos)
	assert.True(t, tanks[2].Autopilot)
	assert.Equal(t, fineCell(Vec{6, 12}), tanks[3].Index())
	assertOccupancyConsistent(t, bf)
}

func TestSpawnerRespawnsExplodedTanks(t *testing.T) {
	bf := newTestBattlefield(t, func(s *Settings) { s.Rules.RespawnDelay = 3 * testTick })
	NewSpawner(bf, 1, false, zerolog.Nop())
	require.NoError(t, bf.Reset(EmptyLevel(13, 13)))

	y := bf.Player(Yellow)
	spawn := y.Pos
	_, err := y.Move()
	require.NoError(t, err)
	y.Explode("enemy-1")
	require.False(t, y.Active())

	ticks(bf, 2)
	assert.False(t, y.Active())
	ticks(bf, 1)
	assert.True(t, y.Active())
	assert.Equal(t, spawn, y.Pos)
	assert.Zero(t, y.Star)

	e := bf.Tanks()[2]
	e.Explode("yellow")
	ticks(bf, 3)
	assert.True(t, e.Active())
	assert.Len(t, bf.Tanks(), 3, "the destroyed enemy is reused")
}

func TestSpawnerSkipsRespawnWhenAlreadyBack(t *testing.T) {
	bf := newTestBattlefield(t, func(s *Settings) { s.Rules.RespawnDelay = 5 * testTick })
	NewSpawner(bf, 0, false, zerolog.Nop())
	require.NoError(t, bf.Reset(EmptyLevel(13, 13)))

	g := bf.Player(Green)
	g.Explode("")
	g.Activate(Vec{2, 2})
	ticks(bf, 5)
	assert.Equal(t, Vec{2, 2}, g.Pos, "already back, the pending respawn does nothing")
}

func TestSpawnerDropsItems(t *testing.T) {
	bf := newTestBattlefield(t, func(s *Settings) { s.Rules.ItemInterval = 10 * testTick })
	events := recordEvents(bf)
	NewSpawner(bf, 0, false, zerolog.Nop())
	require.NoError(t, bf.Reset(EmptyLevel(13, 13)))

	ticks(bf, 9)
	assert.Zero(t, events.count(EvtItemSpawned))
	ticks(bf, 1)
	assert.Equal(t, 1, events.count(EvtItemSpawned))
	ticks(bf, 10)
	assert.Equal(t, 2, events.count(EvtItemSpawned))
}

func TestSpawnerReportsLevelWithoutEnemySpawns(t *testing.T) {
	bf := newTestBattlefield(t)
	s := NewSpawner(bf, 1, false, zerolog.Nop())
	level := EmptyLevel(13, 13)
	level.EnemySpawns = nil
	require.NoError(t, bf.Reset(level))
	assert.Error(t, s.Populate())
}
