package controller

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"codeberg.org/mutker/deckfanctl/internal/ec"
	"codeberg.org/mutker/deckfanctl/internal/errors"
	"codeberg.org/mutker/deckfanctl/internal/fan"
)

// Source names a reading delivered outside the hardware topology.
type Source string

const SourceECBattery Source = "ec.battery"

type sourceFunc func(ec.Controller) (float64, error)

var sources = map[Source]sourceFunc{
	SourceECBattery: ec.Controller.GetBatteryTemperature,
}

// Sources lists the known direct-feed sources.
func Sources() []Source {
	return slices.Sorted(maps.Keys(sources))
}

// ParseSource validates a configured source name.
func ParseSource(s string) (Source, error) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := sources[src]; !ok {
		return "", errors.New().WithData(ErrUnknownSource, s)
	}

	return src, nil
}

type directFeed struct {
	zone   *fan.Sensor
	source Source
	read   sourceFunc
}

// resolveFeeds binds each zone -> source pair to its zone. Zones are
// processed in identity order so passes are deterministic.
func resolveFeeds(registry *fan.Registry, feeds map[string]string) ([]directFeed, error) {
	out := make([]directFeed, 0, len(feeds))

	for _, id := range slices.Sorted(maps.Keys(feeds)) {
		zone, err := registry.Get(id)
		if err != nil {
			return nil, err
		}

		src, err := ParseSource(feeds[id])
		if err != nil {
			return nil, errors.New().Wrap(ErrUnknownSource, err).
				WithMessage(fmt.Sprintf("direct feed for zone %s", id))
		}

		out = append(out, directFeed{zone: zone, source: src, read: sources[src]})
	}

	return out, nil
}
