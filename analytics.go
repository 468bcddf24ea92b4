package main

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// telemetryRow is one battle event queued for persistence
type telemetryRow struct {
	Battle  string
	Kind    EventKind
	TankID  string
	OtherID string
	Detail  string
	Pos     Vec
	SimAt   time.Duration
	Width   int // set on battle_reset only
	Height  int
	Created time.Time
}

// Telemetry records battlefield events into SQLite with batched background
// writes. Emit never blocks the simulation: when the queue is full the event
// is dropped and counted.
type Telemetry struct {
	db     *DB
	log    zerolog.Logger
	bf     *Battlefield
	every  time.Duration
	events chan telemetryRow
	stop   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	dropped int
	current string
}

// NewTelemetry creates and starts the background writer. flushEvery <= 0
// falls back to five seconds.
func NewTelemetry(db *DB, flushEvery time.Duration, log zerolog.Logger) *Telemetry {
	if flushEvery <= 0 {
		flushEvery = 5 * time.Second
	}
	t := &Telemetry{
		db:     db,
		log:    log.With().Str("component", "telemetry").Logger(),
		every:  flushEvery,
		events: make(chan telemetryRow, 1024),
		stop:   make(chan struct{}),
	}
	t.wg.Add(1)
	go t.writer()
	return t
}

// Attach subscribes to bf. Call before the first Reset so the battle row is
// written.
func (t *Telemetry) Attach(bf *Battlefield) {
	t.bf = bf
	bf.Observe(t)
}

// Emit queues e. Movement events are too chatty to keep and are skipped.
func (t *Telemetry) Emit(e Event) {
	switch e.Kind {
	case EvtMoveStarted, EvtMoveEnded:
		return
	}
	row := telemetryRow{
		Battle:  e.BattleID,
		Kind:    e.Kind,
		TankID:  e.TankID,
		OtherID: e.OtherID,
		Detail:  eventDetail(e),
		Pos:     e.Pos,
		SimAt:   e.At,
		Created: time.Now().UTC(),
	}
	if e.Kind == EvtBattleReset && t.bf != nil {
		l := t.bf.Level()
		row.Width, row.Height = l.Width, l.Height
	}
	select {
	case t.events <- row:
	default:
		t.mu.Lock()
		t.dropped++
		t.mu.Unlock()
	}
}

func eventDetail(e Event) string {
	var parts []string
	if e.Item != NoItem {
		parts = append(parts, e.Item.String())
	}
	if e.Terrain != NoPlatform {
		parts = append(parts, e.Terrain.String())
	}
	if e.Cause != StopNone {
		parts = append(parts, e.Cause.String())
	}
	return strings.Join(parts, ",")
}

// Dropped returns how many events were lost to a full queue
func (t *Telemetry) Dropped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Stop drains the queue, closes the open battle row and waits for the writer.
func (t *Telemetry) Stop() {
	close(t.stop)
	t.wg.Wait()
}

func (t *Telemetry) writer() {
	defer t.wg.Done()

	batch := make([]telemetryRow, 0, 64)
	ticker := time.NewTicker(t.every)
	defer ticker.Stop()

	for {
		select {
		case row := <-t.events:
			batch = append(batch, row)
			if len(batch) >= 50 {
				t.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				t.flush(batch)
				batch = batch[:0]
			}
		case <-t.stop:
			for drained := false; !drained; {
				select {
				case row := <-t.events:
					batch = append(batch, row)
				default:
					drained = true
				}
			}
			t.flush(batch)
			t.endCurrent(time.Now().UTC())
			return
		}
	}
}

func (t *Telemetry) endCurrent(at time.Time) {
	if t.current == "" {
		return
	}
	if err := t.db.EndBattle(t.current, at); err != nil {
		t.log.Error().Err(err).Str("battle", t.current).Msg("end battle")
	}
	t.current = ""
}

// flush writes a batch in one transaction, opening and closing battle rows as
// resets go by.
func (t *Telemetry) flush(rows []telemetryRow) {
	if t.db == nil || len(rows) == 0 {
		return
	}
	for _, r := range rows {
		if r.Kind != EvtBattleReset || r.Battle == t.current {
			continue
		}
		t.endCurrent(r.Created)
		if err := t.db.StartBattle(r.Battle, r.Width, r.Height, r.Created); err != nil {
			t.log.Error().Err(err).Str("battle", r.Battle).Msg("start battle")
		}
		t.current = r.Battle
	}

	tx, err := t.db.conn.Begin()
	if err != nil {
		t.log.Error().Err(err).Msg("begin tx")
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO battle_events
		(battle_id, kind, tank_id, other_id, detail, x, y, sim_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		t.log.Error().Err(err).Msg("prepare insert")
		return
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.Exec(r.Battle, r.Kind.String(), r.TankID, r.OtherID, r.Detail,
			r.Pos.X, r.Pos.Y, r.SimAt.Milliseconds(), dbTime(r.Created))
		if err != nil {
			t.log.Warn().Err(err).Str("kind", r.Kind.String()).Msg("insert event")
		}
	}
	if err := tx.Commit(); err != nil {
		t.log.Error().Err(err).Msg("commit events")
		return
	}
	t.log.Debug().Int("rows", len(rows)).Msg("events flushed")
}

// TankStats aggregates one tank's record in a battle
type TankStats struct {
	TankID string `json:"tank_id"`
	Shots  int    `json:"shots"`
	Hits   int    `json:"hits"`
	Kills  int    `json:"kills"`
}

// EventCounts returns how often each event kind occurred in a battle
func (db *DB) EventCounts(battleID string) (map[string]int, error) {
	rows, err := db.conn.Query(`
		SELECT kind, COUNT(*) FROM battle_events
		WHERE battle_id = ?
		GROUP BY kind ORDER BY COUNT(*) DESC
	`, battleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		result[kind] = count
	}
	return result, rows.Err()
}

// TankStats returns shots fired, hits landed and kills per tank, sorted by
// kills then hits.
func (db *DB) TankStats(battleID string) ([]TankStats, error) {
	rows, err := db.conn.Query(`
		SELECT who,
			SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END),
			SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END)
		FROM (
			SELECT kind, tank_id AS who FROM battle_events WHERE battle_id = ? AND kind = ?
			UNION ALL
			SELECT kind, other_id AS who FROM battle_events
			WHERE battle_id = ? AND kind IN (?, ?) AND other_id != ''
		)
		GROUP BY who
		ORDER BY 4 DESC, 3 DESC, who
	`,
		EvtShotFired.String(), EvtTankHit.String(), EvtTankExploded.String(),
		battleID, EvtShotFired.String(),
		battleID, EvtTankHit.String(), EvtTankExploded.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TankStats
	for rows.Next() {
		var s TankStats
		if err := rows.Scan(&s.TankID, &s.Shots, &s.Hits, &s.Kills); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
