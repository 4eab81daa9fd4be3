package model

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

func TestAttendanceBelongsToStudent(t *testing.T) {
	s, err := schema.Parse(&Attendance{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	rel, ok := s.Relationships.Relations["Student"]
	require.True(t, ok)
	assert.Equal(t, schema.BelongsTo, rel.Type)
	require.Len(t, rel.References, 1)
	assert.Equal(t, "student_id", rel.References[0].ForeignKey.DBName)
	assert.Equal(t, "attendances", rel.References[0].ForeignKey.Schema.Table)
	assert.Equal(t, "id", rel.References[0].PrimaryKey.DBName)
	assert.Equal(t, "students", rel.References[0].PrimaryKey.Schema.Table)
}

func TestStudentExternalIDColumn(t *testing.T) {
	s, err := schema.Parse(&Student{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	f := s.LookUpField("student_id")
	require.NotNil(t, f)
	assert.Equal(t, "ExternalID", f.Name)
	assert.Equal(t, "1001", Student{ExternalID: "1001"}.Summary().StudentID)
}
