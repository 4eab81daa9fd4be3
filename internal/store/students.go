package store

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"gate-attendance-backend/internal/model"
)

func (s *gormStore) CreateStudent(ctx context.Context, st *model.Student) error {
	return s.exec(ctx, "student "+st.ExternalID, func(db *gorm.DB) error {
		return db.Create(st).Error
	})
}

func (s *gormStore) GetStudent(ctx context.Context, id string) (*model.Student, error) {
	var st model.Student
	err := s.read(ctx, "student "+id, func(db *gorm.DB) error {
		return db.Where("id = ?", id).First(&st).Error
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *gormStore) GetStudentByTag(ctx context.Context, tag string) (*model.Student, error) {
	var st model.Student
	err := s.read(ctx, "student with tag "+tag, func(db *gorm.DB) error {
		return db.Where("rfid_tag = ?", tag).First(&st).Error
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// UpdateStudent applies fields in one transaction and returns the fresh row.
// A unique index violation leaves the row untouched.
func (s *gormStore) UpdateStudent(ctx context.Context, id string, fields map[string]any) (*model.Student, error) {
	var st model.Student
	err := s.exec(ctx, "student "+id, func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("id = ?", id).First(&st).Error; err != nil {
				return err
			}
			if len(fields) > 0 {
				if err := tx.Model(&model.Student{}).Where("id = ?", id).Updates(fields).Error; err != nil {
					return err
				}
			}
			st = model.Student{}
			return tx.Where("id = ?", id).First(&st).Error
		})
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *gormStore) ListStudents(ctx context.Context, q StudentQuery) ([]model.Student, int64, error) {
	var (
		students []model.Student
		total    int64
	)
	err := s.read(ctx, "students", func(db *gorm.DB) error {
		base := studentFilter(db.Model(&model.Student{}), q)
		if err := base.Count(&total).Error; err != nil {
			return err
		}
		return page(studentFilter(db, q), q.Offset, q.Limit).
			Order("name ASC").Order("id ASC").
			Find(&students).Error
	})
	if err != nil {
		return nil, 0, err
	}
	return students, total, nil
}

func studentFilter(db *gorm.DB, q StudentQuery) *gorm.DB {
	if q.Class != "" {
		db = db.Where("class = ?", q.Class)
	}
	if q.Grade != "" {
		db = db.Where("grade = ?", q.Grade)
	}
	if q.Active != nil {
		db = db.Where("active = ?", *q.Active)
	}
	if term := strings.TrimSpace(q.Search); term != "" {
		like := "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
		db = db.Where(`LOWER(name) LIKE ? ESCAPE '\' OR LOWER(student_id) LIKE ? ESCAPE '\' OR LOWER(rfid_tag) LIKE ? ESCAPE '\'`,
			like, like, like)
	}
	return db
}

// likeEscaper makes a search term match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *gormStore) DeleteStudent(ctx context.Context, id string) error {
	return s.exec(ctx, "student "+id, func(db *gorm.DB) error {
		res := db.Where("id = ?", id).Delete(&model.Student{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (s *gormStore) CountAttendanceForStudent(ctx context.Context, studentID string) (int64, error) {
	var n int64
	err := s.read(ctx, "attendance of student "+studentID, func(db *gorm.DB) error {
		return db.Model(&model.Attendance{}).Where("student_id = ?", studentID).Count(&n).Error
	})
	return n, err
}
