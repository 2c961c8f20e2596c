package hardware

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"codeberg.org/mutker/deckfanctl/internal/errors"
	"codeberg.org/mutker/deckfanctl/internal/fan"
	"codeberg.org/mutker/deckfanctl/internal/logger"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/spf13/afero"
)

const (
	minPlausibleTemp = -50.0
	maxPlausibleTemp = 150.0

	defaultHwmonRoot = "/sys/class/hwmon"
	hwmonGlob        = "hwmon*"
)

// chipTypes maps hwmon chip name prefixes to hardware types.
var chipTypes = []struct {
	prefix string
	kind   fan.HardwareType
}{
	{"k10temp", fan.HardwareCPU},
	{"coretemp", fan.HardwareCPU},
	{"zenpower", fan.HardwareCPU},
	{"cpu", fan.HardwareCPU},
	{"amdgpu", fan.HardwareGPU},
	{"radeon", fan.HardwareGPU},
	{"nouveau", fan.HardwareGPU},
	{"nvidia", fan.HardwareGPU},
	{"i915", fan.HardwareGPU},
	{"nvme", fan.HardwareStorage},
	{"drivetemp", fan.HardwareStorage},
	{"bat", fan.HardwareBattery},
	{"steamdeck", fan.HardwareEC},
	{"jupiter", fan.HardwareEC},
	{"acpitz", fan.HardwareMotherboard},
	{"nct", fan.HardwareMotherboard},
	{"it87", fan.HardwareMotherboard},
}

// SensorsFunc returns every hwmon temperature known to the system.
type SensorsFunc func(ctx context.Context) ([]host.TemperatureStat, error)

// ChipsFunc returns the names of the hwmon chips present on the system.
type ChipsFunc func() ([]string, error)

// HwmonChipNames reads the name file of every hwmon device below root.
func HwmonChipNames(fs afero.Fs, root string) ChipsFunc {
	return func() ([]string, error) {
		dirs, err := afero.Glob(fs, filepath.Join(root, hwmonGlob))
		if err != nil {
			return nil, errors.New().Wrap(ErrTopologyFailed, err)
		}

		names := make([]string, 0, len(dirs))
		for _, dir := range dirs {
			name, err := afero.ReadFile(fs, filepath.Join(dir, "name"))
			if err != nil {
				continue
			}
			if n := strings.TrimSpace(string(name)); n != "" {
				names = append(names, n)
			}
		}

		return names, nil
	}
}

// HwmonProvider exposes hwmon temperatures as a tree: a "hwmon" root
// with one child per chip instance.
type HwmonProvider struct {
	sensors SensorsFunc
	chips   ChipsFunc
	log     logger.Logger

	mu      sync.Mutex
	known   []string
	entries []entry
	fresh   map[string]bool
}

func NewHwmonProvider(log logger.Logger) *HwmonProvider {
	return NewHwmonProviderWithSource(
		host.SensorsTemperaturesWithContext,
		HwmonChipNames(afero.NewOsFs(), defaultHwmonRoot),
		log,
	)
}

func NewHwmonProviderWithSource(sensors SensorsFunc, chips ChipsFunc, log logger.Logger) *HwmonProvider {
	return &HwmonProvider{
		sensors: sensors,
		chips:   chips,
		log:     log,
	}
}

func (p *HwmonProvider) Name() string {
	return "hwmon"
}

func (p *HwmonProvider) Close() error {
	return nil
}

// Hardware reads the current chip list and builds the topology from it.
// The read is kept so that each chip's first refresh afterwards does not
// rescan sysfs.
func (p *HwmonProvider) Hardware(ctx context.Context) ([]Node, error) {
	stats, err := p.read(ctx)
	if err != nil {
		return nil, err
	}

	known := p.chipNames()
	entries := index(stats, known)

	root := &BasicNode{
		ID:    "/hwmon",
		Label: "hwmon",
		Kind:  fan.HardwareOther,
	}

	chips := make(map[string]*BasicNode)
	for _, e := range entries {
		node, ok := chips[e.nodeID]
		if !ok {
			node = &BasicNode{
				ID:          e.nodeID,
				Label:       e.chip,
				Kind:        chipType(e.chip),
				RefreshFunc: p.refresh,
			}
			chips[e.nodeID] = node
			root.Nodes = append(root.Nodes, node)
		}
		node.Readings = append(node.Readings, &Reading{
			ID:    e.readingID,
			Label: e.label,
			Kind:  fan.SensorTemperature,
		})
	}

	p.mu.Lock()
	p.known = known
	p.store(entries, "")
	p.mu.Unlock()

	p.log.Debug().Int("chips", len(root.Nodes)).Int("sensors", len(stats)).Msg("hwmon topology")

	return []Node{root}, nil
}

// refresh loads the readings owned by n. Every chip consumes the last
// read once; a chip refreshed again triggers a new read for everyone.
func (p *HwmonProvider) refresh(ctx context.Context, n *BasicNode) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fresh[n.ID] {
		delete(p.fresh, n.ID)
	} else {
		stats, err := p.read(ctx)
		if err != nil {
			return errors.New().Wrap(ErrRefreshFailed, err)
		}
		p.store(index(stats, p.known), n.ID)
	}

	for _, r := range n.Readings {
		r.Invalidate()
	}
	for _, e := range p.entries {
		if e.nodeID != n.ID {
			continue
		}
		r, ok := n.Reading(e.readingID)
		if !ok {
			continue
		}
		if e.temp < minPlausibleTemp || e.temp > maxPlausibleTemp {
			p.log.Debug().Str("sensor", e.readingID).Float64("temperature", e.temp).Msg("Ignoring implausible temperature")
			continue
		}
		r.Set(e.temp)
	}

	return nil
}

// store replaces the cached read and marks every node except consumer
// as not having seen it. Callers hold p.mu.
func (p *HwmonProvider) store(entries []entry, consumer string) {
	p.entries = entries
	p.fresh = make(map[string]bool)
	for _, e := range entries {
		if e.nodeID != consumer {
			p.fresh[e.nodeID] = true
		}
	}
}

func (p *HwmonProvider) chipNames() []string {
	if p.chips == nil {
		return nil
	}

	names, err := p.chips()
	if err != nil {
		p.log.Debug().Err(err).Msg("Failed to resolve hwmon chip names")
		return nil
	}

	return names
}

func (p *HwmonProvider) read(ctx context.Context) ([]host.TemperatureStat, error) {
	stats, err := p.sensors(ctx)
	if err != nil {
		// gopsutil reports unreadable sensors as warnings next to partial results
		if len(stats) == 0 {
			return nil, errors.New().Wrap(ErrTopologyFailed, err)
		}
		p.log.Debug().Err(err).Msg("Partial hwmon read")
	}

	return stats, nil
}

type entry struct {
	chip      string
	label     string
	nodeID    string
	readingID string
	temp      float64
}

// index assigns every stat to a chip instance. gopsutil reports keys as
// "<chip>_<label>"; the n-th occurrence of the same key belongs to the
// n-th instance of that chip.
func index(stats []host.TemperatureStat, chips []string) []entry {
	known := make([]string, 0, len(chips))
	for _, c := range chips {
		known = append(known, strings.ToLower(c))
	}
	sort.SliceStable(known, func(i, j int) bool { return len(known[i]) > len(known[j]) })

	seen := make(map[string]int, len(stats))
	entries := make([]entry, 0, len(stats))

	for _, s := range stats {
		chip, label := splitKey(s.SensorKey, known)
		instance := seen[s.SensorKey]
		seen[s.SensorKey]++

		nodeID := fmt.Sprintf("/hwmon/%s/%d", chip, instance)
		entries = append(entries, entry{
			chip:      chip,
			label:     label,
			nodeID:    nodeID,
			readingID: nodeID + "/" + label,
			temp:      s.Temperature,
		})
	}

	return entries
}

// splitKey separates the chip name from the label. Chip names may contain
// underscores, so the longest known chip prefix wins; the first underscore
// is used only for chips that are not known.
func splitKey(key string, known []string) (string, string) {
	key = strings.ToLower(strings.TrimSpace(key))

	for _, chip := range known {
		if key == chip {
			return chip, "temp"
		}
		if label, ok := strings.CutPrefix(key, chip+"_"); ok && label != "" {
			return chip, label
		}
	}

	chip, label, ok := strings.Cut(key, "_")
	if !ok || label == "" {
		return key, "temp"
	}

	return chip, label
}

func chipType(chip string) fan.HardwareType {
	for _, c := range chipTypes {
		if strings.HasPrefix(chip, c.prefix) {
			return c.kind
		}
	}

	return fan.HardwareOther
}
