// Package pipeline binds geometry, registry, classifier, repcounter,
// formanalyzer, streambus, and store into the per-camera consumer loop
// described in spec.md §4.F. Grounded on
// original_source/services/exercise/src/exercise/pipeline.py, with the
// goroutine/cancellation lifecycle shaped after the teacher's
// pkg/miface.Tracker (MiFaceDEV/miface).
package pipeline

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gymcore/exercise/pkg/classifier"
	"github.com/gymcore/exercise/pkg/events"
	"github.com/gymcore/exercise/pkg/formanalyzer"
	"github.com/gymcore/exercise/pkg/geometry"
	"github.com/gymcore/exercise/pkg/registry"
	"github.com/gymcore/exercise/pkg/repcounter"
	"github.com/gymcore/exercise/pkg/store"
	"github.com/gymcore/exercise/pkg/streambus"
)

const (
	minClassificationConfidence = 0.5
	throughputLogInterval       = 100
)

// Config is the subset of worker configuration an ExercisePipeline needs.
type Config struct {
	ConsumerGroup  string
	ConsumerName   string
	ReadBatch      int64
	BlockMs        int64
	SetIdleTimeout time.Duration
}

// trackRecord is the cached durable identity for one local track_id.
type trackRecord struct {
	sessionID string
	trackID   string
	setID     string
}

// bus is the subset of streambus.Bus that ExercisePipeline depends on,
// narrowed so tests can supply a fake in place of live Redis.
type bus interface {
	EnsureConsumerGroup(ctx context.Context, stream, group string) error
	ReadGroup(ctx context.Context, stream, group, consumer string, count, blockMs int64) ([]streambus.Message, error)
	Ack(ctx context.Context, stream, group string, msgIDs ...string) error
	Publish(ctx context.Context, stream string, event any, maxlen int64) (string, error)
}

// db is the subset of store.Store that ExercisePipeline depends on,
// narrowed so tests can supply a fake in place of live Postgres.
type db interface {
	BootstrapTrack(ctx context.Context, cameraID string, localTrackID int, exerciseType string, classifierConfidence float64) (store.TrackRecord, error)
	RecordRep(ctx context.Context, exerciseSetID string, repNumber int, durationMs int64, phase string, at time.Time) error
}

// ExercisePipeline processes PerceptionEvents for a single camera.
type ExercisePipeline struct {
	cameraID string
	cfg      Config
	registry *registry.Registry
	bus      bus
	db       db
	inStream string

	classifier    *classifier.Classifier
	repCounters   map[string]*repcounter.RepCounter
	formAnalyzers map[string]*formanalyzer.FormAnalyzer

	trackExercise map[int]string
	trackRecords  map[int]trackRecord

	frameCount int64
	startedAt  time.Time

	logger zerolog.Logger
}

// New creates a pipeline for cameraID, constructing one RepCounter and
// one FormAnalyzer per registered exercise, per spec.md §4.F.
func New(cameraID string, cfg Config, reg *registry.Registry, b *streambus.Bus, d *store.Store) *ExercisePipeline {
	return newPipeline(cameraID, cfg, reg, b, d)
}

// newPipeline is the unexported constructor shared by New and tests;
// it accepts the narrowed bus/db interfaces directly so fakes can be
// substituted without depending on streambus.Bus or store.Store.
func newPipeline(cameraID string, cfg Config, reg *registry.Registry, b bus, d db) *ExercisePipeline {
	repCounters := make(map[string]*repcounter.RepCounter, len(reg.List()))
	formAnalyzers := make(map[string]*formanalyzer.FormAnalyzer, len(reg.List()))
	for _, name := range reg.List() {
		def, err := reg.Get(name)
		if err != nil {
			continue
		}
		repCounters[name] = repcounter.New(def, cfg.SetIdleTimeout)
		formAnalyzers[name] = formanalyzer.New(def)
	}

	return &ExercisePipeline{
		cameraID:      cameraID,
		cfg:           cfg,
		registry:      reg,
		bus:           b,
		db:            d,
		inStream:      streambus.PerceptionsStream(cameraID),
		classifier:    classifier.New(reg),
		repCounters:   repCounters,
		formAnalyzers: formAnalyzers,
		trackExercise: make(map[int]string),
		trackRecords:  make(map[int]trackRecord),
		startedAt:     time.Now(),
		logger:        log.With().Str("camera_id", cameraID).Logger(),
	}
}

// Run joins the input consumer group and processes messages until ctx
// is cancelled.
func (p *ExercisePipeline) Run(ctx context.Context) error {
	if err := p.bus.EnsureConsumerGroup(ctx, p.inStream, p.cfg.ConsumerGroup); err != nil {
		return err
	}
	p.logger.Info().Str("stream", p.inStream).Msg("exercise_pipeline_starting")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("exercise_pipeline_cancelled")
			return nil
		default:
		}

		messages, err := p.bus.ReadGroup(ctx, p.inStream, p.cfg.ConsumerGroup, p.cfg.ConsumerName, p.cfg.ReadBatch, p.cfg.BlockMs)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error().Err(err).Msg("exercise_pipeline_read_error")
			continue
		}

		for _, msg := range messages {
			p.processOne(ctx, msg)
		}
	}
}

// processOne handles one message end to end, following the error
// policy in spec.md §7: any exception is logged and the message is
// acknowledged so the loop advances past poison messages.
func (p *ExercisePipeline) processOne(ctx context.Context, msg streambus.Message) {
	defer func() {
		if err := p.bus.Ack(ctx, p.inStream, p.cfg.ConsumerGroup, msg.ID); err != nil {
			p.logger.Error().Err(err).Str("msg_id", msg.ID).Msg("exercise_pipeline_ack_error")
		}
	}()

	var event events.PerceptionEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		p.logger.Error().Err(err).Str("msg_id", msg.ID).Msg("exercise_pipeline_decode_error")
		return
	}

	if err := p.process(ctx, event); err != nil {
		p.logger.Error().Err(err).Str("msg_id", msg.ID).Msg("exercise_pipeline_error")
	}
}

func (p *ExercisePipeline) process(ctx context.Context, event events.PerceptionEvent) error {
	trackID := event.TrackID

	exerciseName, confidence := p.classifier.Update(trackID, event.Keypoints)
	if exerciseName == classifier.Unknown || confidence < minClassificationConfidence {
		return nil
	}
	p.trackExercise[trackID] = exerciseName

	rc := p.repCounters[exerciseName]
	fa := p.formAnalyzers[exerciseName]
	def, err := p.registry.Get(exerciseName)
	if err != nil {
		return err
	}

	angle, angleOK := geometry.JointAngle(event.Keypoints, def.PrimaryJoint[0], def.PrimaryJoint[1], def.PrimaryJoint[2])

	rec, err := p.ensureDBRecords(ctx, trackID, exerciseName, confidence)
	if err != nil {
		return err
	}

	repEvent, fired := rc.Update(trackID, angle, angleOK, event.TimestampNs)
	if fired {
		repEvent.CameraID = p.cameraID
		repEvent.ExerciseSetID = rec.setID
		if _, err := p.bus.Publish(ctx, streambus.StreamRepCounted, repEvent, 0); err != nil {
			return err
		}
		if err := p.db.RecordRep(ctx, rec.setID, repEvent.RepNumber, repEvent.DurationMs, repEvent.Phase, time.Now()); err != nil {
			p.logger.Error().Err(err).Str("set_id", rec.setID).Msg("rep_persist_error")
		}
		p.logger.Info().Int("track_id", trackID).Str("exercise", exerciseName).Int("rep", repEvent.RepNumber).Msg("rep_counted")
	}

	alerts := fa.Check(trackID, event.Keypoints, rec.setID, rc.RepCount(trackID), event.TimestampNs)
	for _, alert := range alerts {
		alert.CameraID = p.cameraID
		if _, err := p.bus.Publish(ctx, streambus.StreamFormAlerts, alert, 0); err != nil {
			return err
		}
		p.logger.Info().Int("track_id", trackID).Str("alert_key", alert.AlertKey).Msg("form_alert")
	}

	p.frameCount++
	if p.frameCount%throughputLogInterval == 0 {
		elapsed := time.Since(p.startedAt).Seconds()
		fps := 0.0
		if elapsed > 0 {
			fps = float64(p.frameCount) / elapsed
		}
		p.logger.Info().Int64("frames", p.frameCount).Float64("fps", roundTo1(fps)).Msg("exercise_pipeline_throughput")
	}

	return nil
}

// ensureDBRecords creates the durable GymSession/Track/ExerciseSet
// triple for trackID on first confident classification, then caches
// the ids for every subsequent frame from that track.
func (p *ExercisePipeline) ensureDBRecords(ctx context.Context, trackID int, exerciseName string, confidence float64) (trackRecord, error) {
	if rec, ok := p.trackRecords[trackID]; ok {
		return rec, nil
	}

	bootstrapped, err := p.db.BootstrapTrack(ctx, p.cameraID, trackID, exerciseName, confidence)
	if err != nil {
		return trackRecord{}, err
	}

	rec := trackRecord{
		sessionID: bootstrapped.SessionID.String(),
		trackID:   bootstrapped.TrackID.String(),
		setID:     bootstrapped.ExerciseSetID.String(),
	}
	p.trackRecords[trackID] = rec
	p.logger.Info().Int("track_id", trackID).Str("exercise", exerciseName).Str("set_id", rec.setID).Msg("db_records_created")
	return rec, nil
}

func roundTo1(v float64) float64 {
	return math.Round(v*10) / 10
}
