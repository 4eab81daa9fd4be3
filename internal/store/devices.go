package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gate-attendance-backend/internal/model"
)

// RegisterDevice creates the device offline when it is new. For an existing
// device only the non-nil label fields change; telemetry is left alone.
func (s *gormStore) RegisterDevice(ctx context.Context, id string, location, description *string) (*model.Device, error) {
	dev := model.Device{ID: id, Status: model.DeviceOffline, Location: model.DefaultDeviceLocation}
	update := []string{"updated_at"}
	if location != nil {
		dev.Location = *location
		update = append(update, "location")
	}
	if description != nil {
		dev.Description = *description
		update = append(update, "description")
	}

	var out model.Device
	err := s.exec(ctx, "device "+id, func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns(update),
			}).Create(&dev).Error
			if err != nil {
				return err
			}
			return tx.Where("id = ?", id).First(&out).Error
		})
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveHeartbeat upserts d. On an existing row every telemetry column and the
// status are overwritten; location and description are kept.
func (s *gormStore) SaveHeartbeat(ctx context.Context, d *model.Device) error {
	if d.LastHeartbeat != nil {
		t := utc(*d.LastHeartbeat)
		d.LastHeartbeat = &t
	}
	return s.exec(ctx, "heartbeat of device "+d.ID, func(db *gorm.DB) error {
		return db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "last_heartbeat", "ip_address", "wifi_signal", "uptime",
				"cache_size", "firmware", "mac_address", "telemetry", "updated_at",
			}),
		}).Create(d).Error
	})
}

func (s *gormStore) GetDevice(ctx context.Context, id string) (*model.Device, error) {
	var d model.Device
	err := s.read(ctx, "device "+id, func(db *gorm.DB) error {
		return db.Where("id = ?", id).First(&d).Error
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *gormStore) ListDevices(ctx context.Context) ([]model.Device, error) {
	var devices []model.Device
	err := s.read(ctx, "devices", func(db *gorm.DB) error {
		return db.Order("id ASC").Find(&devices).Error
	})
	if err != nil {
		return nil, err
	}
	return devices, nil
}

const staleCondition = "status <> ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)"

// StaleDevices returns non-offline devices whose last heartbeat precedes cutoff.
func (s *gormStore) StaleDevices(ctx context.Context, cutoff time.Time) ([]model.Device, error) {
	var devices []model.Device
	err := s.read(ctx, "stale devices", func(db *gorm.DB) error {
		return db.Where(staleCondition, model.DeviceOffline, utc(cutoff)).Order("id ASC").Find(&devices).Error
	})
	if err != nil {
		return nil, err
	}
	return devices, nil
}

// MarkOfflineIfStale flips one device to offline only if it is still stale.
func (s *gormStore) MarkOfflineIfStale(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	var affected int64
	err := s.exec(ctx, "sweep of device "+id, func(db *gorm.DB) error {
		res := db.Model(&model.Device{}).
			Where("id = ?", id).
			Where(staleCondition, model.DeviceOffline, utc(cutoff)).
			Update("status", model.DeviceOffline)
		affected = res.RowsAffected
		return res.Error
	})
	return affected == 1, err
}

// MarkTamperedIfOnline sets tampered on a device that is not offline.
// It reports false when the device is offline and apperr.ErrNotFound when
// it does not exist.
func (s *gormStore) MarkTamperedIfOnline(ctx context.Context, id string) (bool, error) {
	var affected int64
	err := s.exec(ctx, "tamper of device "+id, func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			var d model.Device
			if err := tx.Select("id").Where("id = ?", id).First(&d).Error; err != nil {
				return err
			}
			res := tx.Model(&model.Device{}).
				Where("id = ? AND status <> ?", id, model.DeviceOffline).
				Update("status", model.DeviceTampered)
			affected = res.RowsAffected
			return res.Error
		})
	})
	return affected == 1, err
}

func (s *gormStore) UpdateDevice(ctx context.Context, id string, fields map[string]any) (*model.Device, error) {
	var d model.Device
	err := s.exec(ctx, "device "+id, func(db *gorm.DB) error {
		return db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("id = ?", id).First(&d).Error; err != nil {
				return err
			}
			if len(fields) > 0 {
				if err := tx.Model(&model.Device{}).Where("id = ?", id).Updates(fields).Error; err != nil {
					return err
				}
			}
			d = model.Device{}
			return tx.Where("id = ?", id).First(&d).Error
		})
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *gormStore) DeleteDevice(ctx context.Context, id string) error {
	return s.exec(ctx, "device "+id, func(db *gorm.DB) error {
		res := db.Where("id = ?", id).Delete(&model.Device{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
