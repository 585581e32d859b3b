package checkin

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"time"

	"github.com/facemark/facemark/internal/camera"
	"github.com/facemark/facemark/internal/constants"
	"github.com/facemark/facemark/internal/database"
	"github.com/facemark/facemark/internal/database/mariadb"
	"github.com/facemark/facemark/internal/faceid"
	"github.com/facemark/facemark/internal/liveness"
)

// FaceDetector extracts the primary face of an encoded image.
type FaceDetector interface {
	PrimaryFace(ctx context.Context, imageData []byte) (*faceid.Face, error)
}

// AttendanceMirror pushes attendance rows to a secondary store. Mirror
// failures are logged and never fail the check-in.
type AttendanceMirror interface {
	Record(ctx context.Context, rec *mariadb.MirrorRecord) error
}

// StageEvent is the per-stage stimulus broadcast to the dashboard. The
// browser renders the color full-screen for the given duration; stage
// boundaries are driven by the server clock.
type StageEvent struct {
	Index      int    `json:"index"`
	Total      int    `json:"total"`
	Color      string `json:"color"`
	DurationMS int64  `json:"duration_ms"`
}

// Options wires the orchestrator's collaborators and tuning.
type Options struct {
	Camera     camera.FrameSource
	Faces      FaceDetector
	Identities database.IdentityReader
	Attendance database.AttendanceWriter
	Mirror     AttendanceMirror // optional
	Evaluator  *liveness.Evaluator

	TopK           int
	MaxDistance    float64
	CaptureTimeout time.Duration
	GracePeriod    time.Duration
}

// Orchestrator runs check-in attempts end to end. The identity and
// attendance collaborators are only touched after a live decision.
type Orchestrator struct {
	camera     camera.FrameSource
	faces      FaceDetector
	identities database.IdentityReader
	attendance database.AttendanceWriter
	mirror     AttendanceMirror
	evaluator  *liveness.Evaluator

	topK           int
	maxDistance    float64
	captureTimeout time.Duration
	gracePeriod    time.Duration
}

// NewOrchestrator validates the options and builds an orchestrator.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Camera == nil {
		return nil, errors.New("camera frame source is required")
	}
	if opts.Faces == nil {
		return nil, errors.New("face detector is required")
	}
	if opts.Identities == nil {
		return nil, errors.New("identity reader is required")
	}
	if opts.Attendance == nil {
		return nil, errors.New("attendance writer is required")
	}
	if opts.Evaluator == nil {
		return nil, errors.New("liveness evaluator is required")
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = constants.DefaultTopK
	}
	maxDistance := opts.MaxDistance
	if maxDistance <= 0 {
		maxDistance = constants.DefaultMatchThreshold
	}
	captureTimeout := opts.CaptureTimeout
	if captureTimeout <= 0 {
		captureTimeout = constants.DefaultCaptureTimeoutSeconds * time.Second
	}
	gracePeriod := opts.GracePeriod
	if gracePeriod <= 0 {
		gracePeriod = constants.CaptureGracePeriodSeconds * time.Second
	}

	return &Orchestrator{
		camera:         opts.Camera,
		faces:          opts.Faces,
		identities:     opts.Identities,
		attendance:     opts.Attendance,
		mirror:         opts.Mirror,
		evaluator:      opts.Evaluator,
		topK:           topK,
		maxDistance:    maxDistance,
		captureTimeout: captureTimeout,
		gracePeriod:    gracePeriod,
	}, nil
}

// Run executes one check-in attempt and stores the result on the job. The
// whole attempt is bounded by the configured capture timeout.
func (o *Orchestrator) Run(ctx context.Context, job *CheckinJob) {
	ctx, cancel := context.WithTimeout(ctx, o.captureTimeout)
	defer cancel()
	job.BindCancel(cancel)

	session, err := liveness.NewSession(job.ID, job.Pattern)
	if err != nil {
		job.fail(err)
		return
	}

	job.setStatus(JobStatusRunning)
	job.SendEvent(JobEvent{Type: "started", Message: "Check-in started"})

	result, err := o.run(ctx, job, session)
	if err != nil {
		if job.GetStatus() == JobStatusCancelled {
			return
		}
		if errors.Is(err, context.Canceled) {
			job.setStatus(JobStatusCancelled)
			return
		}
		job.fail(err)
		return
	}
	job.complete(result)
}

func (o *Orchestrator) run(ctx context.Context, job *CheckinJob, session *liveness.Session) (*Result, error) {
	if err := session.Begin(); err != nil {
		return nil, err
	}

	// Baseline: unlit frames captured before the first stimulus.
	baselineFrames, err := o.captureFrames(ctx, constants.BaselineFrameCount)
	if err != nil {
		if isTimeout(ctx, err) {
			return &Result{Outcome: OutcomeCaptureTimeout}, nil
		}
		return nil, fmt.Errorf("baseline capture: %w", err)
	}
	for _, f := range baselineFrames {
		if err := session.AppendBaseline(f); err != nil {
			return nil, err
		}
	}

	// The same detection call yields both the face region for the liveness
	// measurement and the embedding for identity matching.
	reference := baselineFrames[len(baselineFrames)-1]
	face, err := o.detectFace(ctx, reference.Image)
	if err != nil {
		if errors.Is(err, liveness.ErrNoFaceDetected) {
			return &Result{Outcome: OutcomeNoFace}, nil
		}
		if isTimeout(ctx, err) {
			return &Result{Outcome: OutcomeCaptureTimeout}, nil
		}
		return nil, fmt.Errorf("face detection: %w", err)
	}
	region := liveness.ExpandRegion(face.Region, reference.Image.Bounds(), constants.FaceRegionPadding)

	if err := session.StartStages(); err != nil {
		return nil, err
	}

	pattern := session.Pattern()
	for {
		idx, stage, err := session.CurrentStage()
		if err != nil {
			return nil, err
		}

		job.SendEvent(JobEvent{Type: "stage", Data: StageEvent{
			Index:      idx,
			Total:      len(pattern.Stages),
			Color:      stage.Hex(),
			DurationMS: stage.Duration.Milliseconds(),
		}})

		stageEnd := time.Now().Add(stage.Duration)
		stageCtx, stageCancel := context.WithTimeout(ctx, stage.Duration+o.gracePeriod)
		frames, err := o.captureFrames(stageCtx, constants.StageFrameCount)
		stageCancel()
		if len(frames) == 0 {
			if err != nil && isTimeout(ctx, err) {
				return &Result{Outcome: OutcomeCaptureTimeout}, nil
			}
			if err != nil {
				return nil, fmt.Errorf("stage %d capture: %w", idx, err)
			}
		}
		for _, f := range frames {
			if err := session.AppendFrame(f); err != nil {
				return nil, err
			}
		}

		// The dashboard keeps the stimulus up for the full stage duration;
		// hold the stage boundary to the server clock even when snapshots
		// arrive faster.
		if remaining := time.Until(stageEnd); remaining > 0 {
			select {
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return &Result{Outcome: OutcomeCaptureTimeout}, nil
				}
				return nil, ctx.Err()
			case <-time.After(remaining):
			}
		}

		done, err := session.AdvanceStage()
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
	}

	baseline, stages := session.Frames()
	decision, err := o.evaluator.Evaluate(baseline, region, pattern, stages)
	_ = session.MarkDecided()
	if err != nil {
		switch {
		case errors.Is(err, liveness.ErrNoFaceDetected):
			return &Result{Outcome: OutcomeNoFace}, nil
		case errors.Is(err, liveness.ErrInsufficientData):
			return &Result{Outcome: OutcomeInsufficientData}, nil
		default:
			return nil, fmt.Errorf("liveness evaluation: %w", err)
		}
	}

	job.SendEvent(JobEvent{Type: "decision", Data: decision})
	if !decision.Live {
		return &Result{Outcome: OutcomeSpoof, Decision: &decision}, nil
	}

	return o.matchAndRecord(ctx, face, decision)
}

// matchAndRecord resolves a live face to an enrolled identity and persists
// the attendance mark.
func (o *Orchestrator) matchAndRecord(ctx context.Context, face *faceid.Face, decision liveness.Decision) (*Result, error) {
	matches, distances, err := o.identities.FindNearest(ctx, face.Embedding, o.topK, o.maxDistance)
	if err != nil {
		return nil, fmt.Errorf("identity match: %w", err)
	}
	if len(matches) == 0 {
		return &Result{Outcome: OutcomeLiveUnmatched, Live: true, Decision: &decision}, nil
	}

	best := matches[0]
	identity := &MatchedIdentity{
		ID:         best.ID,
		Name:       best.Name,
		RollNumber: best.RollNumber,
		ClassName:  best.ClassName,
		Confidence: database.MatchConfidence(distances[0]),
		Distance:   distances[0],
	}

	result := &Result{
		Outcome:  OutcomeLiveMarked,
		Live:     true,
		Decision: &decision,
		Identity: identity,
	}

	now := time.Now()
	alreadyMarked, err := o.attendance.HasMarkedOn(ctx, best.ID, now)
	if err != nil {
		result.Outcome = OutcomeMatchedUnrecorded
		return result, nil
	}
	if alreadyMarked {
		result.AlreadyMarked = true
		return result, nil
	}

	record := &database.AttendanceRecord{
		IdentityID: best.ID,
		MarkedAt:   now,
		Confidence: identity.Confidence,
		Status:     database.AttendanceStatusPresent,
	}
	if _, err := o.attendance.Record(ctx, record); err != nil {
		// Liveness and matching already succeeded; the caller can retry
		// recording without re-running the flash check.
		result.Outcome = OutcomeMatchedUnrecorded
		return result, nil
	}
	result.AttendanceID = record.ID

	if o.mirror != nil {
		mirrorRec := &mariadb.MirrorRecord{
			SourceID:     record.ID,
			IdentityID:   best.ID,
			IdentityName: best.Name,
			RollNumber:   best.RollNumber,
			MarkedAt:     record.MarkedAt,
			Confidence:   record.Confidence,
			Status:       record.Status,
		}
		if err := o.mirror.Record(ctx, mirrorRec); err != nil {
			log.Printf("attendance mirror failed for record %d: %v", record.ID, err)
		}
	}

	return result, nil
}

// captureFrames pulls up to n frames from the camera. It returns the frames
// captured so far together with the error that stopped the loop.
func (o *Orchestrator) captureFrames(ctx context.Context, n int) ([]liveness.Frame, error) {
	frames := make([]liveness.Frame, 0, n)
	for range n {
		frame, err := o.camera.NextFrame(ctx)
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// detectFace encodes the frame and asks the embedding service for the
// highest-scored face.
func (o *Orchestrator) detectFace(ctx context.Context, img image.Image) (*faceid.Face, error) {
	data, err := faceid.EncodeJPEG(img)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return o.faces.PrimaryFace(ctx, data)
}

// isTimeout reports whether the error means the attempt ran out of capture
// time rather than hitting a transport failure.
func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, liveness.ErrCaptureTimeout) {
		return true
	}
	return ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)
}
