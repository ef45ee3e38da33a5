// Package eventdef loads event definitions written in CUE: courses, classes
// and the start list.
//
// Event files are unified with an embedded schema, so type errors, unknown
// fields and bad enum values are reported with file positions before any
// cross-reference checks run.
package eventdef

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/sportorg/internal/model"
)

//go:embed schema.cue
var schemaSource string

// Error codes reported by the loader.
const (
	ErrCodeGeneric       = "E001"
	ErrCodeNoFiles       = "E003"
	ErrCodeLoadFailed    = "E004"
	ErrCodeNotFound      = "E005"
	ErrCodeBuildFailed   = "E006"
	ErrCodeSchema        = "E201" // value does not match the schema
	ErrCodeUnknownRef    = "E202" // class or course id that does not exist
	ErrCodeDuplicateCard = "E203"
	ErrCodeInvalidTime   = "E204"
	ErrCodeInvalidCourse = "E205"
)

// LoadError is an error found while loading an event definition.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Definition is a decoded event definition. Slices are ordered by id.
type Definition struct {
	Name        string
	ZeroTime    time.Duration // time of day of event time zero
	HasZeroTime bool
	Courses     []model.Course
	Classes     []model.Class
	Competitors []model.Competitor
	FileCount   int
}

type eventDef struct {
	Name     string `json:"name"`
	ZeroTime string `json:"zero_time"`
}

type courseDef struct {
	Name           string   `json:"name"`
	Controls       []string `json:"controls"`
	Order          string   `json:"order"`
	MissingPolicy  string   `json:"missing_policy"`
	PenaltyPerMiss string   `json:"penalty_per_miss"`
	TimeLimit      string   `json:"time_limit"`
	MaxOverrun     string   `json:"max_overrun"`
	CreditControl  string   `json:"credit_control"`
	StartCode      string   `json:"start_code"`
	FinishCode     string   `json:"finish_code"`
}

type classDef struct {
	Name   string `json:"name"`
	Course string `json:"course"`
}

type competitorDef struct {
	Name   string `json:"name"`
	Class  string `json:"class"`
	Card   string `json:"card"`
	Course string `json:"course"`
	Bib    int    `json:"bib"`
	Start  string `json:"start"`
}

// LoadDir loads every .cue file in dir as one event definition.
// All problems found are returned; the Definition is nil if any were.
func LoadDir(dir string) (*Definition, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("event directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("accessing event directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil || len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	def, errs := decode(ctx, value)
	if def != nil {
		def.FileCount = len(files)
	}
	return def, errs
}

// LoadString loads an event definition from CUE source.
func LoadString(src, filename string) (*Definition, []error) {
	ctx := cuecontext.New()
	value := ctx.CompileString(src, cue.Filename(filename))
	def, errs := decode(ctx, value)
	if def != nil {
		def.FileCount = 1
	}
	return def, errs
}

func decode(ctx *cue.Context, value cue.Value) (*Definition, []error) {
	if err := value.Err(); err != nil {
		return nil, cueErrors(ErrCodeBuildFailed, err)
	}

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("embedded schema: %v", err)}}
	}
	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, cueErrors(ErrCodeSchema, err)
	}

	def := &Definition{}
	var errs []error

	if ev := unified.LookupPath(cue.ParsePath("event")); ev.Exists() {
		var e eventDef
		if err := ev.Decode(&e); err != nil {
			errs = append(errs, cueErrors(ErrCodeSchema, err)...)
		}
		def.Name = e.Name
		if e.ZeroTime != "" {
			zt, err := model.ParseTime(e.ZeroTime)
			if err != nil {
				errs = append(errs, &LoadError{Code: ErrCodeInvalidTime, Message: fmt.Sprintf("event.zero_time: %v", err), Pos: ev.Pos()})
			}
			def.ZeroTime, def.HasZeroTime = zt, err == nil
		}
	}

	errs = append(errs, eachField(unified, "course", func(id string, v cue.Value) error {
		var c courseDef
		if err := v.Decode(&c); err != nil {
			return err
		}
		course, err := c.toModel(id)
		if err != nil {
			return &LoadError{Code: ErrCodeInvalidCourse, Message: err.Error(), Pos: v.Pos()}
		}
		def.Courses = append(def.Courses, course)
		return nil
	})...)

	errs = append(errs, eachField(unified, "class", func(id string, v cue.Value) error {
		var c classDef
		if err := v.Decode(&c); err != nil {
			return err
		}
		def.Classes = append(def.Classes, model.Class{ID: id, Name: c.Name, CourseID: c.Course})
		return nil
	})...)

	errs = append(errs, eachField(unified, "competitor", func(id string, v cue.Value) error {
		var c competitorDef
		if err := v.Decode(&c); err != nil {
			return err
		}
		var start time.Duration
		if c.Start != "" {
			var err error
			if start, err = model.ParseTime(c.Start); err != nil {
				return &LoadError{Code: ErrCodeInvalidTime, Message: fmt.Sprintf("competitor %s start: %v", id, err), Pos: v.Pos()}
			}
		}
		def.Competitors = append(def.Competitors, model.Competitor{
			ID:        id,
			Name:      c.Name,
			ClassID:   c.Class,
			CardID:    c.Card,
			CourseID:  c.Course,
			Bib:       c.Bib,
			StartTime: start,
		})
		return nil
	})...)

	if len(errs) > 0 {
		return nil, errs
	}

	slices.SortFunc(def.Courses, func(a, b model.Course) int { return strings.Compare(a.ID, b.ID) })
	slices.SortFunc(def.Classes, func(a, b model.Class) int { return strings.Compare(a.ID, b.ID) })
	slices.SortFunc(def.Competitors, func(a, b model.Competitor) int { return strings.Compare(a.ID, b.ID) })

	if errs := def.Check(); len(errs) > 0 {
		return nil, errs
	}
	return def, nil
}

// eachField calls fn for every field of the struct at path, in declaration
// order, converting failures to LoadErrors.
func eachField(v cue.Value, path string, fn func(id string, v cue.Value) error) []error {
	s := v.LookupPath(cue.ParsePath(path))
	if !s.Exists() {
		return nil
	}
	iter, err := s.Fields()
	if err != nil {
		return cueErrors(ErrCodeSchema, err)
	}
	var errs []error
	for iter.Next() {
		if err := fn(iter.Label(), iter.Value()); err != nil {
			if le, ok := err.(*LoadError); ok {
				errs = append(errs, le)
				continue
			}
			errs = append(errs, cueErrors(ErrCodeSchema, err)...)
		}
	}
	return errs
}

func (c courseDef) toModel(id string) (model.Course, error) {
	course := model.Course{
		ID:            id,
		Name:          c.Name,
		Controls:      c.Controls,
		Order:         model.OrderMode(c.Order),
		MissingPolicy: model.MissingPolicy(c.MissingPolicy),
		StartCode:     c.StartCode,
		FinishCode:    c.FinishCode,
		CreditControl: c.CreditControl,
	}
	if course.Controls == nil {
		course.Controls = []string{}
	}
	var err error
	if c.PenaltyPerMiss != "" {
		if course.PenaltyPerMiss, err = model.ParseTime(c.PenaltyPerMiss); err != nil {
			return model.Course{}, fmt.Errorf("course %s penalty_per_miss: %w", id, err)
		}
	}
	if c.TimeLimit != "" {
		if course.TimeLimit, err = model.ParseTime(c.TimeLimit); err != nil {
			return model.Course{}, fmt.Errorf("course %s time_limit: %w", id, err)
		}
	}
	if c.MaxOverrun != "" {
		if course.MaxOverrun, err = model.ParseTime(c.MaxOverrun); err != nil {
			return model.Course{}, fmt.Errorf("course %s max_overrun: %w", id, err)
		}
	}
	course = course.WithDefaults()
	if err := course.Validate(); err != nil {
		return model.Course{}, err
	}
	return course, nil
}

// cueErrors converts a CUE error list to LoadErrors with positions.
func cueErrors(code string, err error) []error {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return []error{&LoadError{Code: code, Message: err.Error()}}
	}
	out := make([]error, 0, len(list))
	for _, e := range list {
		le := &LoadError{Code: code, Message: e.Error()}
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			le.Pos = pos[0]
		}
		out = append(out, le)
	}
	return out
}

// Check verifies cross references: every class names a known course,
// every competitor a known class and course, and no card is held twice.
func (d *Definition) Check() []error {
	var errs []error
	courses := make(map[string]bool, len(d.Courses))
	for _, c := range d.Courses {
		courses[c.ID] = true
	}
	classes := make(map[string]bool, len(d.Classes))
	for _, c := range d.Classes {
		classes[c.ID] = true
		if !courses[c.CourseID] {
			errs = append(errs, &LoadError{Code: ErrCodeUnknownRef, Message: fmt.Sprintf("class %s: unknown course %s", c.ID, c.CourseID)})
		}
	}
	cards := make(map[string]string)
	for _, c := range d.Competitors {
		if !classes[c.ClassID] {
			errs = append(errs, &LoadError{Code: ErrCodeUnknownRef, Message: fmt.Sprintf("competitor %s: unknown class %s", c.ID, c.ClassID)})
		}
		if c.CourseID != "" && !courses[c.CourseID] {
			errs = append(errs, &LoadError{Code: ErrCodeUnknownRef, Message: fmt.Sprintf("competitor %s: unknown course %s", c.ID, c.CourseID)})
		}
		if c.CardID == "" {
			continue
		}
		if holder, ok := cards[c.CardID]; ok {
			errs = append(errs, &LoadError{Code: ErrCodeDuplicateCard, Message: fmt.Sprintf("card %s held by both %s and %s", c.CardID, holder, c.ID)})
			continue
		}
		cards[c.CardID] = c.ID
	}
	return errs
}

// Saver persists a definition. *store.Store and engine.MemoryStore
// implement it.
type Saver interface {
	SaveCourse(ctx context.Context, c model.Course) error
	SaveClass(ctx context.Context, c model.Class) error
	SaveCompetitor(ctx context.Context, c model.Competitor) error
	SetMeta(ctx context.Context, key, value string) error
}

// MetaEventName and MetaZeroTime are the meta keys Apply writes.
const (
	MetaEventName = "event_name"
	MetaZeroTime  = "zero_time"
)

// Apply saves courses, then classes, then competitors, so references
// resolve in that order.
func (d *Definition) Apply(ctx context.Context, s Saver) error {
	for _, c := range d.Courses {
		if err := s.SaveCourse(ctx, c); err != nil {
			return fmt.Errorf("save course %s: %w", c.ID, err)
		}
	}
	for _, c := range d.Classes {
		if err := s.SaveClass(ctx, c); err != nil {
			return fmt.Errorf("save class %s: %w", c.ID, err)
		}
	}
	for _, c := range d.Competitors {
		if err := s.SaveCompetitor(ctx, c); err != nil {
			return fmt.Errorf("save competitor %s: %w", c.ID, err)
		}
	}
	if d.Name != "" {
		if err := s.SetMeta(ctx, MetaEventName, d.Name); err != nil {
			return err
		}
	}
	if d.HasZeroTime {
		if err := s.SetMeta(ctx, MetaZeroTime, model.FormatTime(d.ZeroTime)); err != nil {
			return err
		}
	}
	return nil
}
