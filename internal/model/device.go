package model

import (
	"time"

	"gorm.io/datatypes"
)

// DeviceStatus is the inferred liveness of a gate reader.
type DeviceStatus string

const (
	DeviceNormal   DeviceStatus = "normal"
	DeviceTampered DeviceStatus = "tampered"
	DeviceOffline  DeviceStatus = "offline"
)

// Device is a field reader known to the registry.
type Device struct {
	ID            string         `gorm:"primaryKey;size:64" json:"deviceId"`
	Status        DeviceStatus   `gorm:"size:16;not null;index" json:"status"`
	LastHeartbeat *time.Time     `gorm:"index" json:"lastHeartbeat"`
	IPAddress     string         `gorm:"size:64" json:"ipAddress,omitempty"`
	WifiSignal    *int           `json:"wifiSignal"`
	Uptime        int64          `gorm:"not null" json:"uptime"`
	CacheSize     int64          `gorm:"not null" json:"cacheSize"`
	Firmware      string         `gorm:"size:64" json:"firmware,omitempty"`
	MACAddress    string         `gorm:"size:32" json:"macAddress,omitempty"`
	Location      string         `gorm:"size:128;not null" json:"location"`
	Description   string         `gorm:"size:255" json:"description"`
	Telemetry     datatypes.JSON `json:"telemetry,omitempty"` // Last heartbeat payload, verbatim
	CreatedAt     time.Time      `gorm:"not null" json:"createdAt"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updatedAt"`
}

// DefaultDeviceLocation is used when registration omits a location.
const DefaultDeviceLocation = "Unknown"
