package controller

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/deckfanctl/internal/ec"
	"codeberg.org/mutker/deckfanctl/internal/errors"
	"codeberg.org/mutker/deckfanctl/internal/fan"
	"codeberg.org/mutker/deckfanctl/internal/hardware"
	"codeberg.org/mutker/deckfanctl/internal/logger"
	"codeberg.org/mutker/deckfanctl/internal/metrics"
)

// Params are the collaborators of a Controller.
type Params struct {
	Registry *fan.Registry
	Provider hardware.Provider
	EC       ec.Controller
	// Metrics is optional; nil records nothing.
	Metrics metrics.Collector
	// Feeds maps a zone identity to the source that feeds it directly.
	Feeds map[string]string
	// Monitor runs passes without ever writing to the fan.
	Monitor bool
	Logger  logger.Logger
}

// ZoneState is the per-pass state of one zone.
type ZoneState struct {
	Zone       string
	Policy     fan.Policy
	Reading    float64
	HasReading bool
	RPM        fan.RPM
	HasRPM     bool
	Valid      bool
}

// Result is the public outcome of one pass.
type Result struct {
	Mode       fan.Mode
	Desired    fan.RPM
	Target     fan.RPM
	Current    fan.RPM
	AnyInvalid bool
	Invalid    []string
	Zones      []ZoneState
	Walk       hardware.WalkStats
	Duration   time.Duration
}

// Controller owns the zone registry and runs sampling passes against the
// embedded controller. Passes and mode changes are serialized.
type Controller struct {
	mu sync.Mutex

	registry *fan.Registry
	provider hardware.Provider
	walker   *hardware.Walker
	ec       ec.Controller
	metrics  metrics.Collector
	feeds    []directFeed
	monitor  bool
	log      logger.Logger

	mode    fan.Mode
	current fan.RPM
	desired fan.RPM
}

func New(p Params) (*Controller, error) {
	errFactory := errors.New()

	switch {
	case p.Registry == nil:
		return nil, errFactory.WithData(ErrInvalidParams, "registry is nil")
	case p.Provider == nil:
		return nil, errFactory.WithData(ErrInvalidParams, "provider is nil")
	case p.EC == nil:
		return nil, errFactory.WithData(ErrInvalidParams, "embedded controller is nil")
	}

	log := p.Logger
	if log == nil {
		log = logger.Get().With("controller")
	}

	collector := p.Metrics
	if collector == nil {
		collector = metrics.NewNoop()
	}

	feeds, err := resolveFeeds(p.Registry, p.Feeds)
	if err != nil {
		return nil, err
	}

	return &Controller{
		registry: p.Registry,
		provider: p.Provider,
		walker:   hardware.NewWalker(p.Registry, log),
		ec:       p.EC,
		metrics:  collector,
		feeds:    feeds,
		monitor:  p.Monitor,
		log:      log,
		mode:     fan.ModeDefault,
	}, nil
}

// SetMode switches the active mode. Default hands the fan back to the
// embedded controller; every other mode takes it over. The enable call is
// issued on every invocation. On failure the previous mode is kept.
func (c *Controller) SetMode(mode fan.Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	errFactory := errors.New()
	if !mode.Valid() {
		return errFactory.WithData(errors.ErrInvalidMode, int(mode))
	}

	if c.monitor {
		c.log.Debug().Str("mode", mode.String()).Msg("Monitor mode, not touching fan control")
	} else if err := c.ec.SetFanControlEnabled(mode.Autonomous()); err != nil {
		return errFactory.Wrap(ErrSetModeFailed, err).WithData(mode.String())
	}

	if mode != c.mode {
		c.log.Info().Str("from", c.mode.String()).Str("to", mode.String()).Msg("Mode changed")
	}
	c.mode = mode

	return nil
}

// Update runs one pass: reset zones, walk the hardware topology, apply
// direct feeds, aggregate, write the desired RPM and read back the fan.
// Collaborator failures abort the pass before anything is written; zone
// state remains available through Zones.
func (c *Controller) Update(ctx context.Context) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	errFactory := errors.New()
	mode := c.mode

	c.registry.Reset()

	roots, err := c.provider.Hardware(ctx)
	if err != nil {
		return Result{}, errFactory.Wrap(ErrPassFailed, err)
	}

	walk, err := c.walker.Walk(ctx, roots, mode)
	if err != nil {
		return Result{}, errFactory.Wrap(ErrPassFailed, err)
	}

	for _, f := range c.feeds {
		value, err := f.read(c.ec)
		if err != nil {
			return Result{}, errFactory.Wrap(ErrPassFailed, err).WithData(string(f.source))
		}
		if err := f.zone.UpdateDirect(f.zone.ID(), value, mode); err != nil {
			return Result{}, errFactory.Wrap(ErrPassFailed, err)
		}
	}

	desired := c.registry.DesiredRPM()

	if !c.monitor {
		if err := c.ec.SetFanDesiredRPM(desired); err != nil {
			return Result{}, errFactory.Wrap(ErrPassFailed, err)
		}
		c.desired = desired
	}

	current, err := c.ec.GetFanRPM()
	if err != nil {
		return Result{}, errFactory.Wrap(ErrPassFailed, err)
	}
	target, err := c.ec.GetFanDesiredRPM()
	if err != nil {
		return Result{}, errFactory.Wrap(ErrPassFailed, err)
	}
	c.current = current

	result := Result{
		Mode:     mode,
		Desired:  desired,
		Target:   target,
		Current:  current,
		Invalid:  c.registry.Invalid(mode),
		Zones:    c.zones(mode),
		Walk:     walk,
		Duration: time.Since(start),
	}
	result.AnyInvalid = len(result.Invalid) > 0

	c.log.Debug().
		Str("mode", mode.String()).
		Int("desired", int(desired)).
		Int("target", int(target)).
		Int("current", int(current)).
		Int("updates", walk.Updates).
		Bool("invalid", result.AnyInvalid).
		Msg("Pass complete")

	if err := c.metrics.Record(ctx, snapshot(start, &result)); err != nil {
		c.log.Warn().Err(err).Msg("Failed to record metrics")
	}

	return result, nil
}

// Restore hands fan control back to the embedded controller.
func (c *Controller) Restore() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.monitor {
		return nil
	}
	if err := c.ec.SetFanControlEnabled(true); err != nil {
		return errors.New().Wrap(ErrRestoreFailed, err)
	}
	c.log.Debug().Msg("Fan control returned to embedded controller")

	return nil
}

// IsAnyInvalid reports whether any zone is invalid under the current mode.
func (c *Controller) IsAnyInvalid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.registry.IsAnyInvalid(c.mode)
}

func (c *Controller) Mode() fan.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.mode
}

// CurrentRPM is the fan speed read back by the last successful pass.
func (c *Controller) CurrentRPM() fan.RPM {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.current
}

// DesiredRPM is the last RPM written to the fan.
func (c *Controller) DesiredRPM() fan.RPM {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.desired
}

// Zones returns the state of every zone, including after a failed pass.
func (c *Controller) Zones() []ZoneState {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.zones(c.mode)
}

func (c *Controller) zones(mode fan.Mode) []ZoneState {
	zones := c.registry.Zones()
	out := make([]ZoneState, 0, len(zones))

	for _, z := range zones {
		s := ZoneState{
			Zone:   z.ID(),
			Policy: z.Policy(mode),
			Valid:  z.IsValid(mode),
		}
		s.Reading, s.HasReading = z.LastReading()
		s.RPM, s.HasRPM = z.CalculatedRPM()
		out = append(out, s)
	}

	return out
}

func snapshot(ts time.Time, r *Result) *metrics.Snapshot {
	s := &metrics.Snapshot{
		Timestamp:  ts,
		Mode:       r.Mode.String(),
		Desired:    int(r.Desired),
		Target:     int(r.Target),
		Current:    int(r.Current),
		AnyInvalid: r.AnyInvalid,
		Duration:   r.Duration,
		Zones:      make([]metrics.ZoneSample, 0, len(r.Zones)),
	}
	for _, z := range r.Zones {
		s.Zones = append(s.Zones, metrics.ZoneSample{
			Zone:       z.Zone,
			Policy:     z.Policy.String(),
			Reading:    z.Reading,
			HasReading: z.HasReading,
			RPM:        int(z.RPM),
			HasRPM:     z.HasRPM,
			Valid:      z.Valid,
		})
	}

	return s
}
