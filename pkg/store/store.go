// Package store is the durable record of gym sessions, tracks,
// exercise sets, and individual reps. Grounded on
// original_source/shared/src/gym_shared/db/models.py (GymSession,
// Track, ExerciseSet, RepEvent) and db/session.py's transactional
// session pattern.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the durable record for the exercise-analysis core. It writes
// only; reads are primary-key lookups performed internally during lazy
// bootstrap (spec.md §6).
type Store struct {
	pool *pgxpool.Pool
}

// New opens a connection pool to databaseURL.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database pool: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// TrackRecord identifies the durable (session, track, exercise_set)
// triple bootstrapped for one (camera_id, track_id) pair.
type TrackRecord struct {
	SessionID      uuid.UUID
	TrackID        uuid.UUID
	ExerciseSetID  uuid.UUID
}

// BootstrapTrack creates a GymSession, Track, and ExerciseSet in one
// transaction the first time (cameraID, localTrackID) produces a
// confident classification, per spec.md §3. The returned ExerciseSetID
// is the durable identifier the pipeline must use in every published
// event from then on — it is independent of the rep counter's own
// in-memory set_id (see pkg/pipeline).
func (s *Store) BootstrapTrack(ctx context.Context, cameraID string, localTrackID int, exerciseType string, classifierConfidence float64) (TrackRecord, error) {
	setID := uuid.New()

	var rec TrackRecord
	err := pgxTxn(ctx, s.pool, func(tx pgx.Tx) error {
		now := time.Now().UTC()

		sessionID := uuid.New()
		if err := tx.QueryRow(ctx,
			`INSERT INTO gym_sessions (id, person_id, started_at, primary_track_ids)
			 VALUES ($1, NULL, $2, '[]'::jsonb) RETURNING id`,
			sessionID, now,
		).Scan(&sessionID); err != nil {
			return fmt.Errorf("inserting gym_session: %w", err)
		}

		trackID := uuid.New()
		if err := tx.QueryRow(ctx,
			`INSERT INTO tracks (id, camera_id, local_track_id, first_seen_at, last_seen_at)
			 VALUES ($1, $2, $3, $4, $4) RETURNING id`,
			trackID, cameraID, localTrackID, now,
		).Scan(&trackID); err != nil {
			return fmt.Errorf("inserting track: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO exercise_sets (id, session_id, track_id, exercise_type, started_at, classifier_confidence)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			setID, sessionID, trackID, exerciseType, now, classifierConfidence,
		); err != nil {
			return fmt.Errorf("inserting exercise_set: %w", err)
		}

		rec = TrackRecord{SessionID: sessionID, TrackID: trackID, ExerciseSetID: setID}
		return nil
	})
	if err != nil {
		return TrackRecord{}, err
	}
	return rec, nil
}

// RecordRep persists one counted rep. A failure here does not roll back
// an already-published rep_counted stream event: persistence is
// best-effort, the stream is the at-least-once source of truth (spec.md §7).
func (s *Store) RecordRep(ctx context.Context, exerciseSetID string, repNumber int, durationMs int64, phase string, at time.Time) error {
	setID, err := uuid.Parse(exerciseSetID)
	if err != nil {
		return fmt.Errorf("parsing exercise_set_id: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO rep_events (time, exercise_set_id, rep_number, duration_ms, phase, form_flags, keypoint_snapshot)
		 VALUES ($1, $2, $3, $4, $5, '{}'::jsonb, '{}'::jsonb)
		 ON CONFLICT (time, exercise_set_id) DO NOTHING`,
		at.UTC(), setID, repNumber, durationMs, phase,
	)
	if err != nil {
		return fmt.Errorf("inserting rep_event: %w", err)
	}
	return nil
}

// pgxTxn runs fn inside a transaction, committing on success and
// rolling back on any error (including a panic re-raised by pgx).
func pgxTxn(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
