package enclosure

import (
	"fmt"
	"sort"
)

const (
	FrontGap = "gap_front"
	BackGap  = "gap_back"
)

// Neighbor is an inter-zone air exchange edge seen from the receiving zone.
// Key names the coefficient looked up in the active CouplingSet.
type Neighbor struct {
	Zone int
	Key  string
}

// Leak is an infiltration path: Share of the named gap's mass flow.
type Leak struct {
	Gap   string
	Share float64
}

type ZoneLinks struct {
	Neighbors []Neighbor
	Leaks     []Leak
}

// Topology is the declarative adjacency table of the enclosure. Zones are
// numbered from 1.
type Topology struct {
	links []ZoneLinks
}

func NewTopology(links []ZoneLinks) (*Topology, error) {
	if len(links) == 0 {
		return nil, fmt.Errorf("empty topology: %w", ErrUnknownZoneTopology)
	}
	for i, l := range links {
		for _, n := range l.Neighbors {
			if n.Zone < 1 || n.Zone > len(links) || n.Zone == i+1 {
				return nil, fmt.Errorf("zone %d neighbor %d: %w", i+1, n.Zone, ErrUnknownZoneTopology)
			}
			if n.Key == "" {
				return nil, fmt.Errorf("zone %d neighbor %d has no coefficient key: %w", i+1, n.Zone, ErrUnknownZoneTopology)
			}
		}
		for _, lk := range l.Leaks {
			if lk.Gap == "" || !(lk.Share > 0) {
				return nil, fmt.Errorf("zone %d leak %+v: %w", i+1, lk, ErrInvalidPhysicalParameter)
			}
		}
	}
	return &Topology{links: links}, nil
}

// CoefficientKey names the coefficient applied to zone from neighbor, e.g. "f12".
func CoefficientKey(zone, neighbor int) string {
	if zone < 10 && neighbor < 10 {
		return fmt.Sprintf("f%d%d", zone, neighbor)
	}
	return fmt.Sprintf("f%d_%d", zone, neighbor)
}

// GapName names the interior gap between zone i and zone i+1.
func GapName(i int) string {
	return fmt.Sprintf("gap_%d", i)
}

// LinearChain builds the front-to-back chain of n zones. Interior gaps are
// shared half and half by the two zones they separate; the end zones also
// own the full front or back gap.
func LinearChain(n int) (*Topology, error) {
	if n < 1 {
		return nil, fmt.Errorf("chain of %d zones: %w", n, ErrUnknownZoneTopology)
	}
	links := make([]ZoneLinks, n)
	for i := 1; i <= n; i++ {
		var l ZoneLinks
		if i == 1 {
			l.Leaks = append(l.Leaks, Leak{Gap: FrontGap, Share: 1})
		} else {
			l.Neighbors = append(l.Neighbors, Neighbor{Zone: i - 1, Key: CoefficientKey(i, i-1)})
			l.Leaks = append(l.Leaks, Leak{Gap: GapName(i - 1), Share: 0.5})
		}
		if i == n {
			l.Leaks = append(l.Leaks, Leak{Gap: BackGap, Share: 1})
		} else {
			l.Neighbors = append(l.Neighbors, Neighbor{Zone: i + 1, Key: CoefficientKey(i, i+1)})
			l.Leaks = append(l.Leaks, Leak{Gap: GapName(i), Share: 0.5})
		}
		links[i-1] = l
	}
	return &Topology{links: links}, nil
}

func (t *Topology) Zones() int {
	return len(t.links)
}

func (t *Topology) Links(zone int) (ZoneLinks, error) {
	if zone < 1 || zone > len(t.links) {
		return ZoneLinks{}, fmt.Errorf("zone %d outside 1..%d: %w", zone, len(t.links), ErrUnknownZoneTopology)
	}
	return t.links[zone-1], nil
}

// Gaps lists the infiltration gap names referenced by the topology, sorted.
func (t *Topology) Gaps() []string {
	return t.collect(func(l ZoneLinks, add func(string)) {
		for _, lk := range l.Leaks {
			add(lk.Gap)
		}
	})
}

// CoefficientKeys lists the coupling coefficient keys referenced by the topology, sorted.
func (t *Topology) CoefficientKeys() []string {
	return t.collect(func(l ZoneLinks, add func(string)) {
		for _, n := range l.Neighbors {
			add(n.Key)
		}
	})
}

func (t *Topology) collect(each func(ZoneLinks, func(string))) []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range t.links {
		each(l, func(s string) {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		})
	}
	sort.Strings(out)
	return out
}
