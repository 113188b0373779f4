package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"jordanella.com/linemod/internal/cv"
	"jordanella.com/linemod/internal/events"
	"jordanella.com/linemod/internal/logging"
)

var (
	// ErrLoadIntegrity means a template set could not be loaded consistently:
	// its sequences disagree in length, an index did not line up with its
	// position, or the identity was already loaded.
	ErrLoadIntegrity = errors.New("load integrity fault")
	// ErrLookupFault means a match could not be resolved to a template pose
	ErrLookupFault = errors.New("lookup fault")
)

// Config is passed explicitly to every session
type Config struct {
	Threshold    float64 // default percent used by Run
	MaxColorRows int     // taller color frames are cropped and halved, 0 disables
	Match        *cv.MatchConfig
}

// DefaultConfig returns the stock detector settings
func DefaultConfig() Config {
	return Config{
		Threshold:    90,
		MaxColorRows: DefaultMaxColorRows,
		Match:        cv.DefaultMatchConfig(),
	}
}

// ObjectSource supplies complete template sets, e.g. the model database or a
// manifest directory
type ObjectSource interface {
	ObjectSets() ([]cv.ObjectSet, error)
}

// Stats summarizes a session
type Stats struct {
	SessionID       string        `json:"session_id"`
	Objects         int           `json:"objects"`
	Templates       int           `json:"templates"`
	FramesProcessed int           `json:"frames_processed"`
	LastDetections  int           `json:"last_detections"`
	LastDuration    time.Duration `json:"last_duration_ns"`
}

// Session owns a template store and turns frames into pose-annotated results.
type Session struct {
	id      string
	config  Config
	store   *cv.Store
	matcher *cv.Matcher
	logger  *logging.Logger
	faults  *logging.ErrorReporter

	mu             sync.Mutex
	bus            events.EventBus
	frames         int
	lastDetections int
	lastDuration   time.Duration
}

// NewSession creates an empty session
func NewSession(config Config, logger *logging.Logger) (*Session, error) {
	if config.Match == nil {
		config.Match = cv.DefaultMatchConfig()
	}
	if config.Threshold < 0 || config.Threshold > 100 {
		return nil, fmt.Errorf("%w: %v", cv.ErrInvalidThreshold, config.Threshold)
	}
	store, err := cv.NewStore(config.Match)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewLogger("Detection")
	}

	s := &Session{
		id:      uuid.NewString(),
		config:  config,
		store:   store,
		matcher: cv.NewMatcher(store),
		logger:  logger,
		faults:  logging.NewErrorReporter(logger.Child("faults"), 100),
	}
	s.faults.OnError(func(r logging.ErrorReport) {
		s.publish(events.NewFaultEvent(s.id, string(r.Category), string(r.Severity), r.Message, r.Error, r.Context))
	})
	logger.InfoWithContext("session created", map[string]interface{}{
		"session_id":     s.id,
		"threshold":      config.Threshold,
		"max_color_rows": config.MaxColorRows,
		"levels":         len(config.Match.SpreadT),
	})
	return s, nil
}

// ID returns the session's unique id
func (s *Session) ID() string {
	return s.id
}

// Config returns the session configuration
func (s *Session) Config() Config {
	return s.config
}

// Store exposes the template store
func (s *Session) Store() *cv.Store {
	return s.store
}

// Faults returns the reporter recording load and lookup faults
func (s *Session) Faults() *logging.ErrorReporter {
	return s.faults
}

// SetEventBus makes the session publish load, frame and fault events on bus,
// replacing any earlier bus. nil stops publishing. Events are dropped rather
// than stalling detection when the bus is full.
func (s *Session) SetEventBus(bus events.EventBus) {
	s.mu.Lock()
	s.bus = bus
	s.mu.Unlock()
}

func (s *Session) publish(event events.Event) {
	s.mu.Lock()
	bus := s.bus
	s.mu.Unlock()
	if bus != nil {
		bus.TryPublish(event)
	}
}

// LoadObject builds one template per view and stores the view's rotation and
// translation with it. All sequences must have the same length. The identity
// must not be loaded yet; nothing is stored unless every view succeeds.
func (s *Session) LoadObject(objectID string, images []*image.RGBA, depths []*image.Gray16,
	masks []*image.Gray, rotations []*mat.Dense, translations []*mat.VecDense) error {

	n := len(images)
	if len(depths) != n || len(masks) != n || len(rotations) != n || len(translations) != n {
		err := fmt.Errorf("%w: %q has %d images, %d depths, %d masks, %d rotations, %d translations",
			ErrLoadIntegrity, objectID, n, len(depths), len(masks), len(rotations), len(translations))
		s.reportLoad(objectID, err)
		return err
	}

	sources := make([]cv.TemplateSource, n)
	for i := 0; i < n; i++ {
		pose, err := cv.NewPose(rotations[i], translations[i])
		if err != nil {
			err = fmt.Errorf("%w: %q view %d: %v", ErrLoadIntegrity, objectID, i, err)
			s.reportLoad(objectID, err)
			return err
		}
		sources[i] = cv.TemplateSource{
			Frame: cv.Frame{Color: images[i], Depth: depths[i]},
			Mask:  masks[i],
			Pose:  pose,
		}
	}

	indices, err := s.store.AddObject(objectID, sources)
	if errors.Is(err, cv.ErrObjectExists) {
		err = fmt.Errorf("%w: %v", ErrLoadIntegrity, err)
	}
	if err != nil {
		s.reportLoad(objectID, err)
		return err
	}
	for i, index := range indices {
		if index != i {
			err := fmt.Errorf("%w: %q view %d was stored as template %d", ErrLoadIntegrity, objectID, i, index)
			s.reportLoad(objectID, err)
			return err
		}
	}

	s.logger.InfoWithContext("loaded object", map[string]interface{}{
		"object_id": objectID,
		"templates": n,
	})
	s.publish(events.NewObjectLoadedEvent(s.id, objectID, n))
	return nil
}

// LoadObjectSet is LoadObject for a set delivered as one value
func (s *Session) LoadObjectSet(set cv.ObjectSet) error {
	return s.LoadObject(set.ObjectID, set.Images, set.Depths, set.Masks, set.Rotations, set.Translations)
}

// LoadFrom loads every set src provides, stopping at the first failure
func (s *Session) LoadFrom(src ObjectSource) error {
	sets, err := src.ObjectSets()
	if err != nil {
		return fmt.Errorf("failed to read object sets: %w", err)
	}
	for _, set := range sets {
		if err := s.LoadObjectSet(set); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) reportLoad(objectID string, err error) {
	s.faults.Report(logging.ErrorCategoryLoad, logging.ErrorSeverityHigh, "session",
		"failed to load object", err, map[string]interface{}{"object_id": objectID})
}

// Detect matches one color+depth frame against every loaded template and
// attaches each match's pose. Color frames taller than MaxColorRows are
// cropped and halved first; depth is used as given.
func (s *Session) Detect(color *image.RGBA, depth *image.Gray16, threshold float64) ([]Result, error) {
	if color == nil || depth == nil {
		return nil, cv.ErrInvalidImage
	}

	frame := cv.Frame{Color: DownsampleColor(color, s.config.MaxColorRows), Depth: depth}
	if err := frame.Validate(); err != nil {
		if errors.Is(err, cv.ErrDimensionMismatch) {
			s.faults.Report(logging.ErrorCategoryFrame, logging.ErrorSeverityLow, "session",
				"frame rejected", err, nil)
		}
		return nil, err
	}

	matches, stats, err := s.matcher.MatchWithStats(frame, threshold)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		tmpl, ok := s.store.Template(m.ObjectID, m.TemplateIndex)
		if !ok || tmpl.Pose == nil {
			err := fmt.Errorf("%w: %q template %d", ErrLookupFault, m.ObjectID, m.TemplateIndex)
			s.faults.Report(logging.ErrorCategoryLookup, logging.ErrorSeverityCritical, "session",
				"match without pose", err, map[string]interface{}{"object_id": m.ObjectID})
			return nil, err
		}
		pose := tmpl.Pose.Clone()
		results = append(results, Result{
			ObjectID:      m.ObjectID,
			TemplateIndex: m.TemplateIndex,
			Location:      m.Location,
			Score:         m.Score,
			Rotation:      pose.R,
			Translation:   pose.T,
		})
	}

	s.mu.Lock()
	frameNo := s.frames
	s.frames++
	s.lastDetections = len(results)
	s.lastDuration = stats.Duration
	s.mu.Unlock()
	s.publish(events.NewFrameProcessedEvent(s.id, frameNo, len(results), stats.Duration))

	s.logger.DebugWithContext("frame processed", map[string]interface{}{
		"detections": len(results),
		"evaluated":  stats.TemplatesEvaluated,
		"skipped":    stats.TemplatesSkipped,
		"seeds":      stats.Seeds,
		"duration":   stats.Duration,
	})
	return results, nil
}

// Run detects on every frame from src at the configured threshold and hands
// the results to fn. It stops when src is exhausted, fn fails or ctx ends.
func (s *Session) Run(ctx context.Context, src cv.FrameSource, fn func([]Result) error) error {
	return cv.Drain(ctx, src, func(frame cv.Frame) error {
		results, err := s.Detect(frame.Color, frame.Depth, s.config.Threshold)
		if err != nil {
			return err
		}
		return fn(results)
	})
}

// Stats returns a snapshot of the session counters
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		SessionID:       s.id,
		Objects:         s.store.NumObjects(),
		Templates:       s.store.Count(),
		FramesProcessed: s.frames,
		LastDetections:  s.lastDetections,
		LastDuration:    s.lastDuration,
	}
}
