package groups

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/tapcard/contact-search/internal/model"
)

func ptr(f float64) *float64 { return &f }

func newPoint(lng, lat float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{lng, lat}).SetSRID(4326)
}

func TestRulesEngine_CompanyGroups(t *testing.T) {
	t.Parallel()

	e := NewRulesEngine(RulesConfig{})
	contacts := []model.Contact{
		{ID: "c1", Name: "Alice", Company: "Acme"},
		{ID: "c2", Name: "Bob", Company: "acme "},
		{ID: "c3", Name: "Carol", Company: "Solo Corp"},
		{ID: "c4", Name: "Dan", Email: "dan@beta.io"},
		{ID: "c5", Name: "Eve", Email: "eve@beta.io"},
		{ID: "c6", Name: "Frank", Email: "frank@gmail.com"},
		{ID: "c7", Name: "Grace", Email: "grace@gmail.com"},
	}

	groups, stats := e.Generate("u1", contacts)
	assert.Equal(t, 7, stats.ContactsScanned)
	assert.Equal(t, 2, stats.CompanyGroups)

	byName := map[string]model.Group{}
	for _, g := range groups {
		byName[g.Name] = g
	}

	acme, ok := byName["Acme Team"]
	require.True(t, ok, "company matching is case-insensitive and trimmed")
	assert.ElementsMatch(t, []string{"c1", "c2"}, acme.ContactIDs)
	assert.Equal(t, model.GroupTypeCompany, acme.Type)

	beta, ok := byName["beta.io Team"]
	require.True(t, ok, "email domain groups contacts without a company")
	assert.ElementsMatch(t, []string{"c4", "c5"}, beta.ContactIDs)

	assert.NotContains(t, byName, "Solo Corp Team", "single contact does not form a group")
	assert.NotContains(t, byName, "gmail.com Team", "free-mail domains are ignored")
}

func TestRulesEngine_EventGroups(t *testing.T) {
	t.Parallel()

	e := NewRulesEngine(RulesConfig{EventWindow: 30 * time.Minute, MinClusterSize: 3})
	base := time.Date(2026, 8, 14, 18, 0, 0, 0, time.UTC)
	contacts := []model.Contact{
		// Conference burst: three submissions minutes apart.
		{ID: "c1", SubmittedAt: base},
		{ID: "c2", SubmittedAt: base.Add(5 * time.Minute)},
		{ID: "c3", SubmittedAt: base.Add(12 * time.Minute)},
		// Lone submission days later.
		{ID: "c4", SubmittedAt: base.Add(72 * time.Hour)},
	}

	groups, stats := e.Generate("u1", contacts)
	assert.Equal(t, 1, stats.EventGroups)

	var event *model.Group
	for i := range groups {
		if groups[i].Type == model.GroupTypeEvent {
			event = &groups[i]
		}
	}
	require.NotNil(t, event)
	assert.Equal(t, "Event on Aug 14, 2026", event.Name)
	assert.ElementsMatch(t, []string{"c1", "c2", "c3"}, event.ContactIDs)
}

func TestRulesEngine_LocationGroups(t *testing.T) {
	t.Parallel()

	e := NewRulesEngine(RulesConfig{LocationRadiusMeters: 500, MinClusterSize: 2})
	contacts := []model.Contact{
		// Two points ~150m apart in central Paris.
		{ID: "c1", Location: "Le Marais", Latitude: ptr(48.8590), Longitude: ptr(2.3620)},
		{ID: "c2", Latitude: ptr(48.8600), Longitude: ptr(2.3630)},
		// Lyon, hundreds of km away.
		{ID: "c3", Latitude: ptr(45.7640), Longitude: ptr(4.8357)},
		// No coordinates.
		{ID: "c4", Location: "somewhere"},
	}

	groups, stats := e.Generate("u1", contacts)
	assert.Equal(t, 1, stats.LocationGroups)

	var loc *model.Group
	for i := range groups {
		if groups[i].Type == model.GroupTypeLocation {
			loc = &groups[i]
		}
	}
	require.NotNil(t, loc)
	assert.Equal(t, "Near Le Marais", loc.Name)
	assert.ElementsMatch(t, []string{"c1", "c2"}, loc.ContactIDs)
	require.NotNil(t, loc.Venue)
	assert.Equal(t, "Le Marais", loc.Venue.Name)
	assert.InDelta(t, 48.8590, loc.Venue.Latitude, 1e-6)
}

func TestHaversineMeters(t *testing.T) {
	t.Parallel()

	// Paris to Lyon is roughly 392km.
	d := haversineMeters(
		newPoint(2.3522, 48.8566),
		newPoint(4.8357, 45.7640),
	)
	assert.InDelta(t, 392000, d, 5000)

	// A point is zero distance from itself.
	p := newPoint(2.3522, 48.8566)
	assert.Zero(t, haversineMeters(p, p))
}

func TestRulesEngine_CapsGroupCount(t *testing.T) {
	t.Parallel()

	e := NewRulesEngine(RulesConfig{MaxGroups: 2})
	contacts := []model.Contact{
		{ID: "c1", Company: "A"}, {ID: "c2", Company: "A"},
		{ID: "c3", Company: "B"}, {ID: "c4", Company: "B"},
		{ID: "c5", Company: "C"}, {ID: "c6", Company: "C"},
	}
	groups, _ := e.Generate("u1", contacts)
	assert.Len(t, groups, 2)
}

func TestDedupe(t *testing.T) {
	t.Parallel()

	in := []model.Group{
		{Name: "Acme Team", Type: model.GroupTypeCompany, ContactIDs: []string{"c1"}},
		{Name: "Paris Meetup", Type: model.GroupTypeEvent, ContactIDs: []string{"c2"}},
		{Name: "  acme team ", Type: model.GroupTypeAI, ContactIDs: []string{"c3", "c3", "c4"}},
	}

	out := Dedupe(in)
	require.Len(t, out, 2)
	// Last write wins, first-appearance order kept.
	assert.Equal(t, "  acme team ", out[0].Name)
	assert.Equal(t, model.GroupTypeAI, out[0].Type)
	assert.Equal(t, []string{"c3", "c4"}, out[0].ContactIDs, "contact ids deduplicated")
	assert.Equal(t, "Paris Meetup", out[1].Name)
}

func TestDedupe_Idempotent(t *testing.T) {
	t.Parallel()

	in := []model.Group{
		{Name: "A", ContactIDs: []string{"c1"}},
		{Name: "B", ContactIDs: []string{"c2"}},
	}
	once := Dedupe(in)
	twice := Dedupe(once)
	assert.Equal(t, once, twice)
}

func TestDedupe_EighteenWithThreeDuplicates(t *testing.T) {
	t.Parallel()

	var in []model.Group
	for i := 0; i < 15; i++ {
		in = append(in, model.Group{Name: string(rune('A' + i)), ContactIDs: []string{"c1"}})
	}
	in = append(in,
		model.Group{Name: "a", ContactIDs: []string{"c9"}},
		model.Group{Name: " B ", ContactIDs: []string{"c9"}},
		model.Group{Name: "C", ContactIDs: []string{"c9"}},
	)

	out := Dedupe(in)
	assert.Len(t, out, 15)
	assert.Len(t, Cap(out, 15), 15)
}

func TestCap(t *testing.T) {
	t.Parallel()

	in := make([]model.Group, 20)
	assert.Len(t, Cap(in, 0), DefaultMaxGroups)
	assert.Len(t, Cap(in, 5), 5)
	assert.Len(t, Cap(in[:3], 5), 3)
}
