package main

import (
	"github.com/rs/zerolog"
)

// Spawner keeps an arena populated: both players, a fixed number of enemies,
// respawns after explosions and a periodic item drop.
type Spawner struct {
	bf        *Battlefield
	enemies   int
	autopilot bool
	log       zerolog.Logger
}

// NewSpawner creates a spawner for bf. With autopilot set, player tanks are
// driven by the walker too.
func NewSpawner(bf *Battlefield, enemies int, autopilot bool, log zerolog.Logger) *Spawner {
	s := &Spawner{bf: bf, enemies: enemies, autopilot: autopilot, log: log}
	bf.Observe(s)
	return s
}

// Populate spawns every tank and starts the item timer
func (s *Spawner) Populate() error {
	bf := s.bf
	for _, c := range []Color{Yellow, Green} {
		bf.Player(c).Autopilot = s.autopilot
		if _, err := bf.SpawnPlayer(c); err != nil {
			return err
		}
	}
	for i := 0; i < s.enemies; i++ {
		if _, err := bf.SpawnEnemy(i); err != nil {
			return err
		}
	}
	s.scheduleItem()
	s.log.Debug().Str("battle", bf.ID).Int("enemies", s.enemies).Msg("arena populated")
	return nil
}

func (s *Spawner) scheduleItem() {
	bf := s.bf
	d := bf.cfg.Rules.ItemInterval
	if d <= 0 {
		return
	}
	bf.sched.Delay(bf.ctx, d, func(err error) {
		if err != nil {
			return
		}
		bf.SpawnRandomItem()
		s.scheduleItem()
	})
}

// Emit respawns exploded tanks after the configured delay
func (s *Spawner) Emit(e Event) {
	switch e.Kind {
	case EvtBattleReset:
		if err := s.Populate(); err != nil {
			s.log.Error().Err(err).Msg("populate arena")
		}
	case EvtTankExploded:
		s.respawnLater(e.TankID)
	}
}

func (s *Spawner) respawnLater(id string) {
	bf := s.bf
	t := bf.TankByID(id)
	if t == nil {
		return
	}
	bf.sched.Delay(bf.ctx, bf.cfg.Rules.RespawnDelay, func(err error) {
		if err != nil || t.active {
			return
		}
		var rerr error
		if t.Kind == PlayerTank {
			_, rerr = bf.SpawnPlayer(t.Color)
		} else {
			_, rerr = bf.SpawnEnemy(bf.rng.Int())
		}
		if rerr != nil {
			s.log.Warn().Err(rerr).Str("tank", id).Msg("respawn failed")
		}
	})
}
