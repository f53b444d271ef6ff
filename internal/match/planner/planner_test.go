package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"linkage/internal/match/models"
)

func testSystems() models.Systems {
	return models.Systems{
		MatchIssues:       "http://test/matchIssues",
		HumanAdjudication: "http://test/humanAdjudication",
		ClientID:          "http://test/clientid",
		InternalID:        "http://test/internalid",
		BrokenMatch:       "http://test/brokenMatch",
		GoldenRecord:      "http://test/goldenRecord",
	}
}

func ref(id string) models.Ref {
	return models.Ref{Type: "Patient", ID: id}
}

func member(id string, goldenIDs ...string) *models.Record {
	rec := &models.Record{Type: "Patient", ID: id}
	for _, g := range goldenIDs {
		rec.Links = append(rec.Links, models.Link{Kind: models.LinkRefer, Other: ref(g)})
	}
	return rec
}

func golden(id string, memberIDs ...string) *models.Record {
	rec := &models.Record{
		Type: "Patient",
		ID:   id,
		Tags: []models.Tag{{
			System: testSystems().GoldenRecord,
			Code:   models.CodeGoldenRecord,
		}},
	}
	for _, m := range memberIDs {
		rec.Links = append(rec.Links, models.Link{Kind: models.LinkSeeAlso, Other: ref(m)})
	}
	return rec
}

type ResolvePlanSuite struct {
	suite.Suite
	planner *Planner
}

func TestResolvePlanSuite(t *testing.T) {
	suite.Run(t, new(ResolvePlanSuite))
}

func (s *ResolvePlanSuite) SetupTest() {
	s.planner = New(testSystems())
}

func (s *ResolvePlanSuite) TestMoveToExistingGolden() {
	records := []*models.Record{
		member("m1", "g1"),
		golden("g1", "m1", "m2"),
		golden("g2", "m3"),
	}
	plan, err := s.planner.PlanResolve("Patient", records,
		[]models.Resolution{{ID: "m1", OldGolden: "g1", NewGolden: "g2"}})
	require.NoError(s.T(), err)

	m1, ok := plan.Get(ref("m1"))
	require.True(s.T(), ok)
	target, ok := m1.ReferTarget()
	require.True(s.T(), ok)
	assert.Equal(s.T(), ref("g2"), target)
	assert.Len(s.T(), m1.LinksOfKind(models.LinkRefer), 1)

	g1, ok := plan.Get(ref("g1"))
	require.True(s.T(), ok)
	assert.Equal(s.T(), []models.Link{{Kind: models.LinkSeeAlso, Other: ref("m2")}}, g1.Links)

	g2, ok := plan.Get(ref("g2"))
	require.True(s.T(), ok)
	assert.Contains(s.T(), g2.Links, models.Link{Kind: models.LinkSeeAlso, Other: ref("m1")})
}

func (s *ResolvePlanSuite) TestEmptiedGoldenBecomesTombstone() {
	records := []*models.Record{
		member("m1", "g1"),
		golden("g1", "m1"),
		golden("g2"),
	}
	plan, err := s.planner.PlanResolve("Patient", records,
		[]models.Resolution{{ID: "m1", OldGolden: "g1", NewGolden: "g2"}})
	require.NoError(s.T(), err)

	g1, ok := plan.Get(ref("g1"))
	require.True(s.T(), ok)
	assert.Equal(s.T(), []models.Link{{Kind: models.LinkReplacedBy, Other: ref("g2")}}, g1.Links)
}

func (s *ResolvePlanSuite) TestNewGoldenTarget() {
	records := []*models.Record{
		member("m1", "g1"),
		golden("g1", "m1"),
	}
	plan, err := s.planner.PlanResolve("Patient", records,
		[]models.Resolution{{ID: "m1", OldGolden: "g1", NewGolden: models.NewGoldenSentinel + " [1]"}})
	require.NoError(s.T(), err)

	m1, ok := plan.Get(ref("m1"))
	require.True(s.T(), ok)
	target, ok := m1.ReferTarget()
	require.True(s.T(), ok)
	assert.NotEqual(s.T(), "g1", target.ID)

	created, ok := plan.Get(target)
	require.True(s.T(), ok)
	assert.False(s.T(), plan.IsExisting(target))
	assert.True(s.T(), created.IsGolden())
	assert.Contains(s.T(), created.Links, models.Link{Kind: models.LinkSeeAlso, Other: ref("m1")})

	// the emptied old golden tombstones onto the fresh golden
	g1, ok := plan.Get(ref("g1"))
	require.True(s.T(), ok)
	assert.Equal(s.T(), []models.Link{{Kind: models.LinkReplacedBy, Other: target}}, g1.Links)
}

func (s *ResolvePlanSuite) TestUnchangedResolutionSkipped() {
	records := []*models.Record{
		member("m1", "g1"),
		golden("g1", "m1"),
	}
	plan, err := s.planner.PlanResolve("Patient", records,
		[]models.Resolution{{ID: "m1", OldGolden: "g1", NewGolden: "g1"}})
	require.NoError(s.T(), err)
	assert.Zero(s.T(), plan.Len())
}

func (s *ResolvePlanSuite) TestTwoMembersToSameExistingGolden() {
	records := []*models.Record{
		member("m1", "g1"),
		member("m2", "g1"),
		golden("g1", "m1", "m2"),
		golden("g2", "m3"),
	}
	plan, err := s.planner.PlanResolve("Patient", records, []models.Resolution{
		{ID: "m1", OldGolden: "g1", NewGolden: "g2"},
		{ID: "m2", OldGolden: "g1", NewGolden: "g2"},
	})
	require.NoError(s.T(), err)

	g1, ok := plan.Get(ref("g1"))
	require.True(s.T(), ok)
	assert.Equal(s.T(), []models.Link{{Kind: models.LinkReplacedBy, Other: ref("g2")}}, g1.Links)

	g2, ok := plan.Get(ref("g2"))
	require.True(s.T(), ok)
	assert.Contains(s.T(), g2.Links, models.Link{Kind: models.LinkSeeAlso, Other: ref("m1")})
	assert.Contains(s.T(), g2.Links, models.Link{Kind: models.LinkSeeAlso, Other: ref("m2")})
}

func (s *ResolvePlanSuite) TestMissingMemberFails() {
	records := []*models.Record{golden("g1"), golden("g2")}
	_, err := s.planner.PlanResolve("Patient", records,
		[]models.Resolution{{ID: "m1", OldGolden: "g1", NewGolden: "g2"}})
	require.Error(s.T(), err)
}

func (s *ResolvePlanSuite) TestMissingTargetGoldenFails() {
	records := []*models.Record{
		member("m1", "g1"),
		golden("g1", "m1"),
	}
	_, err := s.planner.PlanResolve("Patient", records,
		[]models.Resolution{{ID: "m1", OldGolden: "g1", NewGolden: "g2"}})
	require.Error(s.T(), err)
}

type BreakPlanSuite struct {
	suite.Suite
	planner *Planner
}

func TestBreakPlanSuite(t *testing.T) {
	suite.Run(t, new(BreakPlanSuite))
}

func (s *BreakPlanSuite) SetupTest() {
	s.planner = New(testSystems())
}

func requested(refs ...models.Ref) map[models.Ref]bool {
	out := make(map[models.Ref]bool, len(refs))
	for _, r := range refs {
		out[r] = true
	}
	return out
}

func goldenMap(goldens ...*models.Record) map[models.Ref]*models.Record {
	out := make(map[models.Ref]*models.Record, len(goldens))
	for _, g := range goldens {
		out[g.Ref()] = g
	}
	return out
}

// newGoldenOf returns the freshly created golden a planned member now refers
// to, failing the test if the member kept its old golden.
func newGoldenOf(t *testing.T, bp *BreakPlan, memberRef models.Ref) *models.Record {
	t.Helper()
	m, ok := bp.Plan.Get(memberRef)
	require.True(t, ok)
	target, ok := m.ReferTarget()
	require.True(t, ok)
	g, ok := bp.Plan.Get(target)
	require.True(t, ok)
	require.False(t, bp.Plan.IsExisting(target))
	return g
}

func (s *BreakPlanSuite) TestSameGoldenMembersShareOneNewGolden() {
	m1 := member("m1", "g1")
	m2 := member("m2", "g1")
	bp := s.planner.PlanBreak(
		[]*models.Record{m1, m2},
		goldenMap(golden("g1", "m1", "m2")),
		requested(ref("m1"), ref("m2")),
	)
	require.False(s.T(), bp.MissingGolden)

	g1 := newGoldenOf(s.T(), bp, ref("m1"))
	g2 := newGoldenOf(s.T(), bp, ref("m2"))
	assert.Equal(s.T(), g1.Ref(), g2.Ref())
	assert.True(s.T(), g1.IsGolden())
	assert.Len(s.T(), g1.LinksOfKind(models.LinkSeeAlso), 2)

	// co-requested members of the same golden stay together: no markers
	p1, _ := bp.Plan.Get(ref("m1"))
	assert.Empty(s.T(), p1.BrokenMatches)

	// the fully emptied old golden is not persisted
	_, ok := bp.Plan.Get(ref("g1"))
	assert.False(s.T(), ok)
}

func (s *BreakPlanSuite) TestDistinctGoldensGetDistinctNewGoldens() {
	m1 := member("m1", "g1")
	m3 := member("m3", "g2")
	bp := s.planner.PlanBreak(
		[]*models.Record{m1, m3},
		goldenMap(golden("g1", "m1"), golden("g2", "m3", "m4")),
		requested(ref("m1"), ref("m3")),
	)

	g1 := newGoldenOf(s.T(), bp, ref("m1"))
	g2 := newGoldenOf(s.T(), bp, ref("m3"))
	assert.NotEqual(s.T(), g1.Ref(), g2.Ref())
}

func (s *BreakPlanSuite) TestSeveranceMarkersAndCounterparts() {
	m1 := member("m1", "g1")
	bp := s.planner.PlanBreak(
		[]*models.Record{m1},
		goldenMap(golden("g1", "m1", "m2", "m3")),
		requested(ref("m1")),
	)

	p1, ok := bp.Plan.Get(ref("m1"))
	require.True(s.T(), ok)
	assert.True(s.T(), p1.HasBrokenMatch(ref("m2")))
	assert.True(s.T(), p1.HasBrokenMatch(ref("m3")))
	assert.ElementsMatch(s.T(), []models.Ref{ref("m2"), ref("m3")}, bp.Counterparts)
	assert.ElementsMatch(s.T(), []models.Ref{ref("m2"), ref("m3")}, bp.PerMember[ref("m1")].Broken)

	// surviving golden keeps its other members but loses m1
	g1, ok := bp.Plan.Get(ref("g1"))
	require.True(s.T(), ok)
	assert.ElementsMatch(s.T(), []models.Link{
		{Kind: models.LinkSeeAlso, Other: ref("m2")},
		{Kind: models.LinkSeeAlso, Other: ref("m3")},
	}, g1.LinksOfKind(models.LinkSeeAlso))
}

func (s *BreakPlanSuite) TestSymmetrizeAddsReciprocalMarkers() {
	m1 := member("m1", "g1")
	bp := s.planner.PlanBreak(
		[]*models.Record{m1},
		goldenMap(golden("g1", "m1", "m2")),
		requested(ref("m1")),
	)
	require.Equal(s.T(), []models.Ref{ref("m2")}, bp.Counterparts)

	bp.Symmetrize([]*models.Record{member("m2", "g1")})

	p2, ok := bp.Plan.Get(ref("m2"))
	require.True(s.T(), ok)
	assert.True(s.T(), p2.HasBrokenMatch(ref("m1")))
}

func (s *BreakPlanSuite) TestSymmetrizeSkipsAlreadyMarked() {
	m1 := member("m1", "g1")
	bp := s.planner.PlanBreak(
		[]*models.Record{m1},
		goldenMap(golden("g1", "m1", "m2")),
		requested(ref("m1")),
	)

	m2 := member("m2", "g1")
	m2.AddBrokenMatch(ref("m1"))
	bp.Symmetrize([]*models.Record{m2})

	// nothing changed, so the counterpart is not staged for writing
	_, ok := bp.Plan.Get(ref("m2"))
	assert.False(s.T(), ok)
}

func (s *BreakPlanSuite) TestMultiReferAnomalyKeepsLargestPartition() {
	// mx refers to both g1 and g2; my shares g1, so the g1 partition is
	// larger and wins.
	mx := member("mx", "g1", "g2")
	my := member("my", "g1")
	bp := s.planner.PlanBreak(
		[]*models.Record{mx, my},
		goldenMap(golden("g1", "mx", "my"), golden("g2", "mx")),
		requested(ref("mx"), ref("my")),
	)

	px, ok := bp.Plan.Get(ref("mx"))
	require.True(s.T(), ok)
	require.Len(s.T(), px.LinksOfKind(models.LinkRefer), 1)

	gx := newGoldenOf(s.T(), bp, ref("mx"))
	gy := newGoldenOf(s.T(), bp, ref("my"))
	assert.Equal(s.T(), gx.Ref(), gy.Ref())

	// the losing partition's golden has no members left and is dropped
	newGoldens := 0
	for _, rec := range bp.Plan.Records() {
		if rec.IsGolden() && !bp.Plan.IsExisting(rec.Ref()) {
			newGoldens++
		}
	}
	assert.Equal(s.T(), 1, newGoldens)
}

func (s *BreakPlanSuite) TestMultiReferTieKeepsFirst() {
	mx := member("mx", "g1", "g2")
	bp := s.planner.PlanBreak(
		[]*models.Record{mx},
		goldenMap(golden("g1", "mx"), golden("g2", "mx")),
		requested(ref("mx")),
	)

	px, ok := bp.Plan.Get(ref("mx"))
	require.True(s.T(), ok)
	refs := px.LinksOfKind(models.LinkRefer)
	require.Len(s.T(), refs, 1)

	gx := newGoldenOf(s.T(), bp, ref("mx"))
	assert.Equal(s.T(), refs[0].Other, gx.Ref())
}

func (s *BreakPlanSuite) TestMissingGoldenBlocksPlan() {
	m1 := member("m1", "g1")
	bp := s.planner.PlanBreak(
		[]*models.Record{m1},
		map[models.Ref]*models.Record{},
		requested(ref("m1")),
	)
	assert.True(s.T(), bp.MissingGolden)
	assert.True(s.T(), bp.PerMember[ref("m1")].MissingGolden)
}

func (s *BreakPlanSuite) TestInputRecordsNotMutated() {
	m1 := member("m1", "g1")
	g := golden("g1", "m1", "m2")
	s.planner.PlanBreak([]*models.Record{m1}, goldenMap(g), requested(ref("m1")))

	assert.Empty(s.T(), m1.BrokenMatches)
	assert.Len(s.T(), g.LinksOfKind(models.LinkSeeAlso), 2)
}

type UnbreakPlanSuite struct {
	suite.Suite
	planner *Planner
}

func TestUnbreakPlanSuite(t *testing.T) {
	suite.Run(t, new(UnbreakPlanSuite))
}

func (s *UnbreakPlanSuite) SetupTest() {
	s.planner = New(testSystems())
}

func (s *UnbreakPlanSuite) TestRemovesMarkersBothDirections() {
	m1 := member("m1", "g1")
	m1.AddBrokenMatch(ref("m2"))
	m2 := member("m2", "g2")
	m2.AddBrokenMatch(ref("m1"))

	summary := models.NewSummary("unbreak")
	plan, err := s.planner.PlanUnbreak(
		[]RefPair{{First: ref("m1"), Second: ref("m2")}},
		[]*models.Record{m1, m2},
		summary,
	)
	require.NoError(s.T(), err)

	p1, ok := plan.Get(ref("m1"))
	require.True(s.T(), ok)
	assert.False(s.T(), p1.HasBrokenMatch(ref("m2")))
	p2, ok := plan.Get(ref("m2"))
	require.True(s.T(), ok)
	assert.False(s.T(), p2.HasBrokenMatch(ref("m1")))

	entry, ok := summary.Find(ref("m1"))
	require.True(s.T(), ok)
	assert.Equal(s.T(), ref("g2"), entry.PriorGolden)
	assert.Equal(s.T(), []models.Ref{ref("m2")}, entry.Related)
}

func (s *UnbreakPlanSuite) TestUntouchedRecordsDropped() {
	m1 := member("m1", "g1")
	m2 := member("m2", "g2")

	summary := models.NewSummary("unbreak")
	plan, err := s.planner.PlanUnbreak(
		[]RefPair{{First: ref("m1"), Second: ref("m2")}},
		[]*models.Record{m1, m2},
		summary,
	)
	require.NoError(s.T(), err)
	assert.Zero(s.T(), plan.Len())
}

func (s *UnbreakPlanSuite) TestOneSidedMarkerStillRemoved() {
	m1 := member("m1", "g1")
	m1.AddBrokenMatch(ref("m2"))
	m2 := member("m2", "g2")

	plan, err := s.planner.PlanUnbreak(
		[]RefPair{{First: ref("m1"), Second: ref("m2")}},
		[]*models.Record{m1, m2},
		models.NewSummary("unbreak"),
	)
	require.NoError(s.T(), err)

	_, hasM1 := plan.Get(ref("m1"))
	assert.True(s.T(), hasM1)
	_, hasM2 := plan.Get(ref("m2"))
	assert.False(s.T(), hasM2)
}

func (s *UnbreakPlanSuite) TestSharedRecordAcrossPairs() {
	m1 := member("m1", "g1")
	m1.AddBrokenMatch(ref("m2"))
	m1.AddBrokenMatch(ref("m3"))
	m2 := member("m2", "g2")
	m2.AddBrokenMatch(ref("m1"))
	m3 := member("m3", "g3")
	m3.AddBrokenMatch(ref("m1"))

	summary := models.NewSummary("unbreak")
	plan, err := s.planner.PlanUnbreak(
		[]RefPair{
			{First: ref("m1"), Second: ref("m2")},
			{First: ref("m1"), Second: ref("m3")},
		},
		[]*models.Record{m1, m2, m3},
		summary,
	)
	require.NoError(s.T(), err)

	p1, ok := plan.Get(ref("m1"))
	require.True(s.T(), ok)
	assert.Empty(s.T(), p1.BrokenMatches)

	entry, ok := summary.Find(ref("m1"))
	require.True(s.T(), ok)
	assert.Equal(s.T(), []models.Ref{ref("m2"), ref("m3")}, entry.Related)
	assert.Len(s.T(), summary.Entries, 1)
}

func (s *UnbreakPlanSuite) TestMissingRecordFails() {
	m1 := member("m1", "g1")
	_, err := s.planner.PlanUnbreak(
		[]RefPair{{First: ref("m1"), Second: ref("m2")}},
		[]*models.Record{m1},
		models.NewSummary("unbreak"),
	)
	require.Error(s.T(), err)
}
