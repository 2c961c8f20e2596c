package hardware

import (
	"context"
	"fmt"

	"codeberg.org/mutker/deckfanctl/internal/errors"
	"codeberg.org/mutker/deckfanctl/internal/fan"
	"codeberg.org/mutker/deckfanctl/internal/logger"
)

// WalkStats summarizes one walk over a topology.
type WalkStats struct {
	Nodes           int
	Refreshed       int
	RefreshFailures int
	Updates         int
}

// Walker feeds hardware readings into the zones of a registry.
type Walker struct {
	registry *fan.Registry
	log      logger.Logger
}

type match struct {
	zone   *fan.Sensor
	sensor Sensor
}

func NewWalker(registry *fan.Registry, log logger.Logger) *Walker {
	return &Walker{
		registry: registry,
		log:      log,
	}
}

// Walk visits every node under roots depth-first. For each node with at least
// one reading matching a zone, the node is refreshed once and each matched zone
// is updated with its refreshed value. A node that fails to refresh is skipped
// but its children are still visited. A zone matched by more than one reading
// in the same walk is a configuration error.
func (w *Walker) Walk(ctx context.Context, roots []Node, mode fan.Mode) (WalkStats, error) {
	var stats WalkStats
	claimed := make(map[string]string, w.registry.Len())

	for _, root := range roots {
		if err := w.visit(ctx, root, mode, claimed, &stats); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

func (w *Walker) visit(ctx context.Context, node Node, mode fan.Mode, claimed map[string]string, stats *WalkStats) error {
	if node == nil {
		return nil
	}
	stats.Nodes++

	matches, err := w.match(node, claimed)
	if err != nil {
		return err
	}

	if len(matches) > 0 {
		if err := node.Refresh(ctx); err != nil {
			stats.RefreshFailures++
			w.log.Warn().
				Err(err).
				Str("node", node.Identifier()).
				Int("zones", len(matches)).
				Msg("Failed to refresh hardware node, skipping its readings")
		} else {
			stats.Refreshed++
			for _, m := range matches {
				value, ok := m.sensor.Value()
				if !ok {
					w.log.Debug().
						Str("zone", m.zone.ID()).
						Str("sensor", m.sensor.Identifier()).
						Msg("Sensor has no value after refresh")
					continue
				}
				m.zone.Update(value, mode)
				stats.Updates++
			}
		}
	}

	for _, child := range node.Children() {
		if err := w.visit(ctx, child, mode, claimed, stats); err != nil {
			return err
		}
	}

	return nil
}

func (w *Walker) match(node Node, claimed map[string]string) ([]match, error) {
	var matches []match

	zones := w.registry.Zones()
	for _, s := range node.Sensors() {
		probe := fan.Probe{
			HardwareType: node.Type(),
			HardwareName: node.Name(),
			SensorType:   s.Type(),
			SensorName:   s.Name(),
			Identifier:   s.Identifier(),
		}

		for _, z := range zones {
			if !z.Matches(probe) {
				continue
			}
			if prev, ok := claimed[z.ID()]; ok {
				return nil, errors.New().WithData(fan.ErrDuplicateMatch,
					fmt.Sprintf("zone %s matched by %s and %s", z.ID(), prev, s.Identifier()))
			}
			claimed[z.ID()] = s.Identifier()
			matches = append(matches, match{zone: z, sensor: s})
		}
	}

	return matches, nil
}
