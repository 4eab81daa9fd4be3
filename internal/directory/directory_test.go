package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gate-attendance-backend/internal/apperr"
	"gate-attendance-backend/internal/model"
	"gate-attendance-backend/internal/store"
)

func newService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	gormDB, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, gormDB.AutoMigrate(&model.Student{}, &model.Attendance{}, &model.Device{}))

	st := store.NewGormStore(gormDB, store.Options{})
	return New(st), st
}

func newStudent(id, tag, name string) NewStudent {
	return NewStudent{StudentID: id, Tag: tag, Name: name, Class: "7A", Grade: "7"}
}

func TestService_CreateAndResolve(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	created, err := svc.Create(ctx, newStudent(" 1001 ", " A1B2C3 ", "Ayu"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "1001", created.ExternalID)
	assert.True(t, created.Active)

	got, err := svc.ResolveByTag(ctx, "A1B2C3")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.ResolveByTag(ctx, "FFFF")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.ResolveByTag(ctx, "  ")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	testCases := []struct {
		name string
		in   NewStudent
	}{
		{"missing tag", NewStudent{StudentID: "1", Name: "A", Class: "7A", Grade: "7"}},
		{"name too long", newStudent("1", "T", "ABCDEFGHIJKLMNOPQRSTUVWXYZABCDEFGHIJKLMNOPQRSTUVWXYZ")},
		{"bad gender", func() NewStudent { s := newStudent("1", "T", "A"); s.Gender = "x"; return s }()},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.in)
			assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
		})
	}
}

func TestService_CreateConflict(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.Create(ctx, newStudent("1001", "TAG1", "Ayu"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, newStudent("1002", "TAG1", "Budi"))
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = svc.Create(ctx, newStudent("1001", "TAG2", "Citra"))
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestService_UpdateTagConflictLeavesBothUnchanged(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	a, err := svc.Create(ctx, newStudent("1001", "TAG1", "Ayu"))
	require.NoError(t, err)
	b, err := svc.Create(ctx, newStudent("1002", "TAG2", "Budi"))
	require.NoError(t, err)

	tag := "TAG1"
	_, err = svc.Update(ctx, b.ID, StudentPatch{Tag: &tag})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	a2, err := svc.ResolveByID(ctx, a.ID)
	require.NoError(t, err)
	b2, err := svc.ResolveByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "TAG1", a2.Tag)
	assert.Equal(t, "TAG2", b2.Tag)

	free := "TAG3"
	name := "Budi S."
	updated, err := svc.Update(ctx, b.ID, StudentPatch{Tag: &free, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "TAG3", updated.Tag)
	assert.Equal(t, "Budi S.", updated.Name)
}

func TestService_DeactivateGatesResolve(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	st, err := svc.Create(ctx, newStudent("1001", "TAG1", "Ayu"))
	require.NoError(t, err)

	_, err = svc.Deactivate(ctx, st.ID)
	require.NoError(t, err)
	_, err = svc.ResolveByTag(ctx, "TAG1")
	assert.ErrorIs(t, err, apperr.ErrInactive)

	_, err = svc.Activate(ctx, st.ID)
	require.NoError(t, err)
	_, err = svc.ResolveByTag(ctx, "TAG1")
	assert.NoError(t, err)
}

func TestService_SearchAndList(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	for _, in := range []NewStudent{
		newStudent("1001", "TAG1", "Citra"),
		newStudent("1002", "TAG2", "Ayu"),
		{StudentID: "2001", Tag: "TAG9", Name: "Budi", Class: "8B", Grade: "8"},
	} {
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}

	page, total, err := svc.Search(ctx, Filter{Grade: "7"}, Page{Page: 1, Limit: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, page, 1)
	assert.Equal(t, "Ayu", page[0].Name)

	_, total, err = svc.Search(ctx, Filter{Search: "BUD"}, Page{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	all, err := svc.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"Ayu", "Budi", "Citra"}, []string{all[0].Name, all[1].Name, all[2].Name})
}

func TestService_DeleteRejectsHistory(t *testing.T) {
	ctx := context.Background()
	svc, st := newService(t)

	a, err := svc.Create(ctx, newStudent("1001", "TAG1", "Ayu"))
	require.NoError(t, err)
	b, err := svc.Create(ctx, newStudent("1002", "TAG2", "Budi"))
	require.NoError(t, err)

	require.NoError(t, st.CreateAttendance(ctx, &model.Attendance{ID: "r1", StudentID: a.ID, Day: "2025-03-10",
		Status: model.StatusAbsent, DeviceID: model.ManualEntryDevice, Security: model.SecuritySecure}))

	assert.ErrorIs(t, svc.Delete(ctx, a.ID), apperr.ErrConflict)
	assert.NoError(t, svc.Delete(ctx, b.ID))
	_, err = svc.ResolveByID(ctx, b.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
