// Package groups clusters a user's contacts into named groups, either
// deterministically (company, event, location rules) or via an LLM.
package groups

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/twpayne/go-geom"

	"github.com/tapcard/contact-search/internal/model"
)

// RulesConfig tunes the deterministic grouping engine.
type RulesConfig struct {
	// EventWindow is the maximum gap between consecutive submissions for
	// them to be treated as one event.
	EventWindow time.Duration `yaml:"event_window" mapstructure:"event_window"`
	// LocationRadiusMeters bounds a coordinate cluster.
	LocationRadiusMeters float64 `yaml:"location_radius_meters" mapstructure:"location_radius_meters"`
	// MinClusterSize is the smallest contact count that forms a group.
	MinClusterSize int `yaml:"min_cluster_size" mapstructure:"min_cluster_size"`
	// MaxGroups caps the number of groups returned.
	MaxGroups int `yaml:"max_groups" mapstructure:"max_groups"`
}

func (c RulesConfig) withDefaults() RulesConfig {
	if c.EventWindow == 0 {
		c.EventWindow = 30 * time.Minute
	}
	if c.LocationRadiusMeters == 0 {
		c.LocationRadiusMeters = 500
	}
	if c.MinClusterSize == 0 {
		c.MinClusterSize = 2
	}
	if c.MaxGroups == 0 {
		c.MaxGroups = DefaultMaxGroups
	}
	return c
}

// RulesEngine is the synchronous, zero-cost grouping path. It clusters by
// exact normalized company name (with email domain as fallback), by
// submission-time proximity, and by coordinate proximity.
type RulesEngine struct {
	cfg RulesConfig
}

func NewRulesEngine(cfg RulesConfig) *RulesEngine {
	return &RulesEngine{cfg: cfg.withDefaults()}
}

// Generate produces candidate groups from the contact set. Output is
// deterministic for a given input: groups are ordered company, event,
// location, each sub-ordered by name.
func (e *RulesEngine) Generate(userID string, contacts []model.Contact) ([]model.Group, model.GroupingStats) {
	stats := model.GroupingStats{ContactsScanned: len(contacts)}

	company := e.companyGroups(userID, contacts)
	events := e.eventGroups(userID, contacts)
	locations := e.locationGroups(userID, contacts)
	stats.CompanyGroups = len(company)
	stats.EventGroups = len(events)
	stats.LocationGroups = len(locations)

	all := make([]model.Group, 0, len(company)+len(events)+len(locations))
	all = append(all, company...)
	all = append(all, events...)
	all = append(all, locations...)

	all = Dedupe(all)
	if len(all) > e.cfg.MaxGroups {
		all = all[:e.cfg.MaxGroups]
	}
	return all, stats
}

// freeMailDomains are consumer providers that say nothing about a shared
// organization.
var freeMailDomains = map[string]struct{}{
	"gmail.com":   {},
	"yahoo.com":   {},
	"hotmail.com": {},
	"outlook.com": {},
	"icloud.com":  {},
	"aol.com":     {},
	"proton.me":   {},
	"gmx.com":     {},
}

func (e *RulesEngine) companyGroups(userID string, contacts []model.Contact) []model.Group {
	byKey := map[string][]string{}
	displayName := map[string]string{}

	for _, c := range contacts {
		key := strings.ToLower(strings.TrimSpace(c.Company))
		name := strings.TrimSpace(c.Company)
		if key == "" {
			domain := c.EmailDomain()
			if domain == "" {
				continue
			}
			if _, free := freeMailDomains[domain]; free {
				continue
			}
			key = domain
			name = domain
		}
		byKey[key] = append(byKey[key], c.ID)
		displayName[key] = name
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		if len(byKey[k]) >= e.cfg.MinClusterSize {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	groups := make([]model.Group, 0, len(keys))
	for _, k := range keys {
		groups = append(groups, model.Group{
			UserID:      userID,
			Name:        fmt.Sprintf("%s Team", displayName[k]),
			Type:        model.GroupTypeCompany,
			Description: fmt.Sprintf("Contacts sharing the company %s", displayName[k]),
			ContactIDs:  model.DedupeContactIDs(byKey[k]),
		})
	}
	return groups
}

func (e *RulesEngine) eventGroups(userID string, contacts []model.Contact) []model.Group {
	sorted := make([]model.Contact, len(contacts))
	copy(sorted, contacts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SubmittedAt.Before(sorted[j].SubmittedAt) })

	var groups []model.Group
	var cluster []model.Contact
	flush := func() {
		if len(cluster) >= e.cfg.MinClusterSize {
			ids := make([]string, 0, len(cluster))
			for _, c := range cluster {
				ids = append(ids, c.ID)
			}
			start := cluster[0].SubmittedAt.UTC()
			groups = append(groups, model.Group{
				UserID:      userID,
				Name:        fmt.Sprintf("Event on %s", start.Format("Jan 2, 2006")),
				Type:        model.GroupTypeEvent,
				Description: fmt.Sprintf("%d contacts collected within a short window starting %s", len(cluster), start.Format(time.RFC3339)),
				ContactIDs:  model.DedupeContactIDs(ids),
			})
		}
		cluster = nil
	}

	for _, c := range sorted {
		if c.SubmittedAt.IsZero() {
			continue
		}
		if len(cluster) > 0 && c.SubmittedAt.Sub(cluster[len(cluster)-1].SubmittedAt) > e.cfg.EventWindow {
			flush()
		}
		cluster = append(cluster, c)
	}
	flush()
	return groups
}

func (e *RulesEngine) locationGroups(userID string, contacts []model.Contact) []model.Group {
	type located struct {
		contact model.Contact
		point   *geom.Point
	}
	var pts []located
	for _, c := range contacts {
		if c.Latitude == nil || c.Longitude == nil {
			continue
		}
		pt := geom.NewPointFlat(geom.XY, []float64{*c.Longitude, *c.Latitude}).SetSRID(4326)
		pts = append(pts, located{contact: c, point: pt})
	}

	// Greedy single-pass clustering: each unassigned point seeds a cluster
	// of everything within the radius. Contact counts per user are small
	// enough that O(n^2) is fine.
	assigned := make([]bool, len(pts))
	var groups []model.Group
	for i := range pts {
		if assigned[i] {
			continue
		}
		cluster := []located{pts[i]}
		assigned[i] = true
		for j := i + 1; j < len(pts); j++ {
			if assigned[j] {
				continue
			}
			if haversineMeters(pts[i].point, pts[j].point) <= e.cfg.LocationRadiusMeters {
				cluster = append(cluster, pts[j])
				assigned[j] = true
			}
		}
		if len(cluster) < e.cfg.MinClusterSize {
			continue
		}

		ids := make([]string, 0, len(cluster))
		for _, l := range cluster {
			ids = append(ids, l.contact.ID)
		}
		name := clusterName(cluster[0].contact)
		g := model.Group{
			UserID:      userID,
			Name:        name,
			Type:        model.GroupTypeLocation,
			Description: fmt.Sprintf("%d contacts within %.0fm of each other", len(cluster), e.cfg.LocationRadiusMeters),
			ContactIDs:  model.DedupeContactIDs(ids),
		}
		if loc := cluster[0].contact.Location; loc != "" {
			g.Venue = &model.Venue{
				Name:      loc,
				Latitude:  cluster[0].point.Y(),
				Longitude: cluster[0].point.X(),
			}
		}
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups
}

// clusterName names a coordinate cluster after its seed contact's location
// text, falling back to rounded coordinates.
func clusterName(seed model.Contact) string {
	if loc := strings.TrimSpace(seed.Location); loc != "" {
		return fmt.Sprintf("Near %s", loc)
	}
	return fmt.Sprintf("Near %.3f, %.3f", *seed.Latitude, *seed.Longitude)
}

const earthRadiusMeters = 6371000

// haversineMeters computes the great-circle distance between two WGS84
// points.
func haversineMeters(a, b *geom.Point) float64 {
	lat1 := a.Y() * math.Pi / 180
	lat2 := b.Y() * math.Pi / 180
	dLat := lat2 - lat1
	dLng := (b.X() - a.X()) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
