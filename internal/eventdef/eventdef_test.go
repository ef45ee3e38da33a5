package eventdef

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sportorg/internal/engine"
	"github.com/roach88/sportorg/internal/model"
)

func requireLoadError(t *testing.T, errs []error, code string) *LoadError {
	t.Helper()
	for _, err := range errs {
		var le *LoadError
		if errors.As(err, &le) && le.Code == code {
			return le
		}
	}
	t.Fatalf("no %s error in %v", code, errs)
	return nil
}

func TestLoadDir(t *testing.T) {
	def, errs := LoadDir("testdata/spring")
	require.Empty(t, errs)
	require.NotNil(t, def)

	assert.Equal(t, "Spring Cup", def.Name)
	assert.True(t, def.HasZeroTime)
	assert.Equal(t, 10*time.Hour, def.ZeroTime)
	assert.Equal(t, 2, def.FileCount)

	require.Len(t, def.Courses, 2)
	a := def.Courses[0]
	assert.Equal(t, "A", a.ID)
	assert.Equal(t, []string{"31", "32", "33"}, a.Controls)
	assert.Equal(t, model.OrderSequential, a.Order)
	assert.Equal(t, model.MissingDisqualify, a.MissingPolicy)
	assert.Equal(t, 90*time.Minute, a.TimeLimit)
	assert.Equal(t, model.DefaultFinishCode, a.FinishCode)

	b := def.Courses[1]
	assert.Equal(t, model.OrderFree, b.Order)
	assert.Equal(t, model.MissingPenalize, b.MissingPolicy)
	assert.Equal(t, 2*time.Minute, b.PenaltyPerMiss)

	var classIDs []string
	for _, c := range def.Classes {
		classIDs = append(classIDs, c.ID)
	}
	assert.Equal(t, []string{"M21", "Open", "W21"}, classIDs)

	require.Len(t, def.Competitors, 4)
	c1 := def.Competitors[0]
	assert.Equal(t, "Ana Berg", c1.Name)
	assert.Equal(t, "100", c1.CardID)
	assert.Equal(t, 1, c1.Bib)
	assert.Equal(t, 5*time.Minute, c1.StartTime)
	assert.Equal(t, 5*time.Minute, def.Competitors[2].StartTime, "milliseconds form")
	assert.Equal(t, "B", def.Competitors[3].CourseID)
}

func TestLoadDirErrors(t *testing.T) {
	_, errs := LoadDir("testdata/missing")
	requireLoadError(t, errs, ErrCodeNotFound)

	_, errs = LoadDir("testdata/spring/courses.cue")
	requireLoadError(t, errs, ErrCodeNotFound)

	_, errs = LoadDir(t.TempDir())
	requireLoadError(t, errs, ErrCodeNoFiles)

	_, errs = LoadDir("testdata/broken")
	le := requireLoadError(t, errs, ErrCodeSchema)
	assert.Contains(t, le.Error(), "event.cue")
}

func TestLoadStringSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown course field", `course: A: {controls: ["31"], colour: "red"}`},
		{"bad time", `course: A: {controls: ["31"], time_limit: "ninety minutes"}`},
		{"bad policy", `course: A: {controls: ["31"], missing_policy: "ignore"}`},
		{"competitor without name", `competitor: C1: {class: "M21"}`},
		{"negative bib", `competitor: C1: {name: "x", class: "M21", bib: -1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, errs := LoadString(tt.src, "event.cue")
			assert.Nil(t, def)
			requireLoadError(t, errs, ErrCodeSchema)
		})
	}
}

func TestLoadStringCrossReferences(t *testing.T) {
	src := `
course: A: controls: ["31"]
class: M21: course: "A"
class: W21: course: "Z"
competitor: C1: {name: "a", class: "M21", card: "1"}
competitor: C2: {name: "b", class: "M35", card: "1"}
competitor: C3: {name: "c", class: "M21", course: "Q"}
`
	def, errs := LoadString(src, "event.cue")
	assert.Nil(t, def)
	assert.Len(t, errs, 4)
	requireLoadError(t, errs, ErrCodeUnknownRef)
	requireLoadError(t, errs, ErrCodeDuplicateCard)
}

func TestLoadStringInvalidCourse(t *testing.T) {
	_, errs := LoadString(`course: A: controls: ["31", "finish"]`, "event.cue")
	requireLoadError(t, errs, ErrCodeInvalidCourse)

	_, errs = LoadString(`course: A: {controls: ["31"], credit_control: "40"}`, "event.cue")
	requireLoadError(t, errs, ErrCodeInvalidCourse)

	_, errs = LoadString(`course: A: {controls: ["31"], max_overrun: "0:05:00"}`, "event.cue")
	requireLoadError(t, errs, ErrCodeInvalidCourse)
}

func TestLoadStringCourseAllowances(t *testing.T) {
	src := `
course: A: {
	controls:       ["31", "32", "33"]
	time_limit:     "1:00:00"
	max_overrun:    "0:05:00"
	credit_control: "32"
}
`
	def, errs := LoadString(src, "event.cue")
	require.Empty(t, errs)
	require.Len(t, def.Courses, 1)
	assert.Equal(t, 5*time.Minute, def.Courses[0].MaxOverrun)
	assert.Equal(t, "32", def.Courses[0].CreditControl)
}

func TestApplyIntoEngine(t *testing.T) {
	def, errs := LoadDir("testdata/spring")
	require.Empty(t, errs)

	ctx := context.Background()
	s := engine.NewMemoryStore()
	require.NoError(t, def.Apply(ctx, s))

	competitors, err := s.ListCompetitors(ctx)
	require.NoError(t, err)
	assert.Len(t, competitors, 4)

	zt, err := s.GetMeta(ctx, MetaZeroTime)
	require.NoError(t, err)
	assert.Equal(t, "10:00:00", zt)

	e := engine.New(s)
	require.NoError(t, e.Load(ctx))
	assert.ElementsMatch(t, []string{"M21", "Open", "W21"}, e.Classes())
}
