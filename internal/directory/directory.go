// Package directory is the person directory: identity lookup by tag or id,
// active gating, and administrative maintenance of students.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"gate-attendance-backend/internal/apperr"
	"gate-attendance-backend/internal/model"
	"gate-attendance-backend/internal/store"
)

// NewStudent is the input of Create.
type NewStudent struct {
	StudentID     string     `json:"studentId" validate:"required,max=64"`
	Tag           string     `json:"rfidTag" validate:"required,max=64"`
	Name          string     `json:"name" validate:"required,max=50"`
	Class         string     `json:"class" validate:"required,max=64"`
	Grade         string     `json:"grade" validate:"required,max=32"`
	Gender        string     `json:"gender" validate:"omitempty,oneof=male female other"`
	DateOfBirth   *time.Time `json:"dateOfBirth"`
	ParentContact string     `json:"parentContact" validate:"omitempty,max=32"`
	Address       string     `json:"address" validate:"omitempty,max=255"`
	Active        *bool      `json:"active"`
}

// StudentPatch carries the fields Update changes; nil fields are kept.
type StudentPatch struct {
	StudentID     *string    `json:"studentId" validate:"omitempty,min=1,max=64"`
	Tag           *string    `json:"rfidTag" validate:"omitempty,min=1,max=64"`
	Name          *string    `json:"name" validate:"omitempty,min=1,max=50"`
	Class         *string    `json:"class" validate:"omitempty,min=1,max=64"`
	Grade         *string    `json:"grade" validate:"omitempty,min=1,max=32"`
	Gender        *string    `json:"gender" validate:"omitempty,oneof=male female other"`
	DateOfBirth   *time.Time `json:"dateOfBirth"`
	ParentContact *string    `json:"parentContact" validate:"omitempty,max=32"`
	Address       *string    `json:"address" validate:"omitempty,max=255"`
	Active        *bool      `json:"active"`
}

// Filter narrows Search and List.
type Filter struct {
	Class  string
	Grade  string
	Search string
	Active *bool
}

// Page is a 1-based page request.
type Page struct {
	Page  int
	Limit int
}

// Service implements the directory over a StudentStore.
type Service struct {
	store    store.StudentStore
	validate *validator.Validate
}

// New returns a directory backed by st.
func New(st store.StudentStore) *Service {
	return &Service{store: st, validate: validator.New()}
}

// ResolveByTag returns the active student bound to tag. It fails with
// apperr.ErrNotFound for an unknown tag and apperr.ErrInactive when the
// student is deactivated.
func (s *Service) ResolveByTag(ctx context.Context, tag string) (*model.Student, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, apperr.Invalid("rfid tag is required")
	}
	st, err := s.store.GetStudentByTag(ctx, tag)
	if err != nil {
		return nil, err
	}
	if !st.Active {
		return st, fmt.Errorf("%w: student %s is deactivated", apperr.ErrInactive, st.ExternalID)
	}
	return st, nil
}

// ResolveByID returns a student regardless of its active flag.
func (s *Service) ResolveByID(ctx context.Context, id string) (*model.Student, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.Invalid("student id is required")
	}
	return s.store.GetStudent(ctx, id)
}

// Create adds a student. Duplicate student ids or tags fail with
// apperr.ErrConflict.
func (s *Service) Create(ctx context.Context, in NewStudent) (*model.Student, error) {
	in.StudentID = strings.TrimSpace(in.StudentID)
	in.Tag = strings.TrimSpace(in.Tag)
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return nil, invalid(err)
	}

	st := &model.Student{
		ID:            uuid.NewString(),
		ExternalID:    in.StudentID,
		Tag:           in.Tag,
		Name:          in.Name,
		Class:         strings.TrimSpace(in.Class),
		Grade:         strings.TrimSpace(in.Grade),
		Gender:        in.Gender,
		DateOfBirth:   in.DateOfBirth,
		ParentContact: in.ParentContact,
		Address:       in.Address,
		Active:        in.Active == nil || *in.Active,
	}
	if err := s.store.CreateStudent(ctx, st); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, fmt.Errorf("%w: student id %q or tag %q already in use", apperr.ErrConflict, in.StudentID, in.Tag)
		}
		return nil, err
	}
	log.Printf("directory: created student %s (%s)", st.ExternalID, st.ID)
	return st, nil
}

// Update applies patch to the student. A tag or student id already bound to
// another student fails with apperr.ErrConflict and changes nothing.
func (s *Service) Update(ctx context.Context, id string, patch StudentPatch) (*model.Student, error) {
	trim(patch.StudentID)
	trim(patch.Tag)
	trim(patch.Name)
	if err := s.validate.Struct(patch); err != nil {
		return nil, invalid(err)
	}

	current, err := s.ResolveByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Tag != nil && *patch.Tag != current.Tag {
		owner, err := s.store.GetStudentByTag(ctx, *patch.Tag)
		switch {
		case err == nil && owner.ID != current.ID:
			return nil, fmt.Errorf("%w: tag %q is bound to student %s", apperr.ErrConflict, *patch.Tag, owner.ExternalID)
		case err != nil && !errors.Is(err, apperr.ErrNotFound):
			return nil, err
		}
	}

	fields := map[string]any{}
	setIf(fields, "student_id", patch.StudentID)
	setIf(fields, "rfid_tag", patch.Tag)
	setIf(fields, "name", patch.Name)
	setIf(fields, "class", patch.Class)
	setIf(fields, "grade", patch.Grade)
	setIf(fields, "gender", patch.Gender)
	setIf(fields, "parent_contact", patch.ParentContact)
	setIf(fields, "address", patch.Address)
	setIf(fields, "active", patch.Active)
	if patch.DateOfBirth != nil {
		fields["date_of_birth"] = *patch.DateOfBirth
	}

	// The unique indexes still decide a race with a concurrent update.
	return s.store.UpdateStudent(ctx, current.ID, fields)
}

// Search returns one page of students and the total match count.
func (s *Service) Search(ctx context.Context, f Filter, p Page) ([]model.Student, int64, error) {
	return s.store.ListStudents(ctx, store.StudentQuery{
		Class:  f.Class,
		Grade:  f.Grade,
		Search: f.Search,
		Active: f.Active,
		Offset: (p.Page - 1) * p.Limit,
		Limit:  p.Limit,
	})
}

// List returns every matching student ordered by name.
func (s *Service) List(ctx context.Context, f Filter) ([]model.Student, error) {
	students, _, err := s.store.ListStudents(ctx, store.StudentQuery{
		Class: f.Class, Grade: f.Grade, Search: f.Search, Active: f.Active,
	})
	return students, err
}

// Deactivate soft-disables a student so that scans are rejected.
func (s *Service) Deactivate(ctx context.Context, id string) (*model.Student, error) {
	active := false
	return s.Update(ctx, id, StudentPatch{Active: &active})
}

// Activate re-enables a deactivated student.
func (s *Service) Activate(ctx context.Context, id string) (*model.Student, error) {
	active := true
	return s.Update(ctx, id, StudentPatch{Active: &active})
}

// Delete removes a student that has no attendance history.
func (s *Service) Delete(ctx context.Context, id string) error {
	st, err := s.ResolveByID(ctx, id)
	if err != nil {
		return err
	}
	n, err := s.store.CountAttendanceForStudent(ctx, st.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: student %s has %d attendance records; deactivate instead", apperr.ErrConflict, st.ExternalID, n)
	}
	return s.store.DeleteStudent(ctx, st.ID)
}

func invalid(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperr.Invalid("%s failed on '%s'", fe.Field(), fe.Tag())
	}
	return apperr.Invalid("%v", err)
}

func trim(p *string) {
	if p != nil {
		*p = strings.TrimSpace(*p)
	}
}

func setIf[T any](fields map[string]any, col string, v *T) {
	if v != nil {
		fields[col] = *v
	}
}
