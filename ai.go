package main

import "context"

// walker drives an autopilot tank: pick a fresh direction, take a random
// number of moves along it, take potshots, back off when blocked.
type walker struct {
	t    *Tank
	ctx  context.Context
	dirs []Direction // candidates, never containing last
	last Direction
	left int
	gen  int
}

func (bf *Battlefield) startWalker(t *Tank) {
	if t.Kind == EnemyTank && bf.enemiesHalted {
		return
	}
	w := &walker{t: t, ctx: t.ctx, gen: bf.walkerGen}
	all := []Direction{Up, Right, Down, Left}
	i := bf.rng.IntN(len(all))
	w.last = all[i]
	w.dirs = append(all[:i:i], all[i+1:]...)
	w.pickLeg()
}

func (w *walker) alive() bool {
	if w.t.Kind == EnemyTank && w.gen != w.t.bf.walkerGen {
		return false
	}
	return w.ctx.Err() == nil && w.ctx == w.t.ctx
}

// SetEnemiesEnabled halts or resumes every enemy walker on the battlefield.
// A halted walker finishes the step in flight and then stands still; enemies
// activated while halted stay put until walkers are enabled again.
func (bf *Battlefield) SetEnemiesEnabled(on bool) {
	if on != bf.enemiesHalted {
		return
	}
	bf.enemiesHalted = !on
	bf.walkerGen++
	if !on {
		return
	}
	for _, e := range bf.enemies {
		if e.active && e.Autopilot {
			bf.startWalker(e)
		}
	}
}

// EnemiesEnabled reports whether enemy walkers are running
func (bf *Battlefield) EnemiesEnabled() bool {
	return !bf.enemiesHalted
}

func (w *walker) pickLeg() {
	bf := w.t.bf
	if w.t.Frozen() {
		w.backOff()
		return
	}
	i := bf.rng.IntN(len(w.dirs))
	dir := w.dirs[i]
	w.dirs[i] = w.last
	w.last = dir

	w.t.Dir = dir
	w.maybeShoot()
	if !w.t.CanMove(dir) {
		w.backOff()
		return
	}
	w.left = 1 + bf.rng.IntN(bf.cfg.AI.MaxLegMoves)
	w.move()
}

func (w *walker) move() {
	op, err := w.t.Move()
	if err != nil {
		w.t.bf.sched.Yield(w.ctx, w.resumeLeg)
		return
	}
	op.Then(w.settled)
}

func (w *walker) settled(r OpResult) {
	switch r {
	case OpCanceled:
		return
	case OpBlocked:
		w.backOff()
		return
	}
	if !w.alive() {
		return
	}
	w.left--
	if w.t.Frozen() {
		w.backOff()
		return
	}
	w.maybeShoot()
	if !w.t.CanMove(w.t.Dir) {
		w.backOff()
		return
	}
	if w.left <= 0 {
		w.pickLeg()
		return
	}
	w.move()
}

func (w *walker) backOff() {
	w.t.bf.sched.Delay(w.ctx, w.t.bf.cfg.AI.BlockedDelay, w.resumeLeg)
}

func (w *walker) resumeLeg(err error) {
	if err != nil || !w.alive() {
		return
	}
	w.pickLeg()
}

func (w *walker) maybeShoot() {
	bf := w.t.bf
	if bf.rng.Float64() < bf.cfg.AI.ShootChance {
		w.t.Shoot()
	}
}
