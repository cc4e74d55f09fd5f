package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// JSON type for PostgreSQL JSONB
type JSON map[string]interface{}

func (j JSON) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSON)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// ImportSessionRecord stores one serialized ImportSession per owner
type ImportSessionRecord struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TenantID    string         `json:"tenantId" gorm:"type:varchar(255);not null;index"`
	OwnerKey    string         `json:"ownerKey" gorm:"type:varchar(512);not null;uniqueIndex"`
	SessionID   uuid.UUID      `json:"sessionId" gorm:"type:uuid;not null;index"`
	CurrentStep int            `json:"currentStep" gorm:"not null;default:1"`
	Document    datatypes.JSON `json:"document" gorm:"type:jsonb;not null"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func (ImportSessionRecord) TableName() string {
	return "import_sessions"
}

// PointStatus represents the status of an inventory point
type PointStatus string

const (
	PointStatusActive   PointStatus = "ACTIVE"
	PointStatusInactive PointStatus = "INACTIVE"
)

// Point is an outdoor advertising location persisted by the bulk save endpoint
type Point struct {
	ID       int64       `json:"id" gorm:"primaryKey;autoIncrement"`
	TenantID string      `json:"tenantId" gorm:"type:varchar(255);not null;index;uniqueIndex:idx_tenant_point_code"`
	OwnerID  int64       `json:"ownerId" gorm:"not null;index"`
	Code     string      `json:"code" gorm:"type:varchar(100);not null;uniqueIndex:idx_tenant_point_code"`
	Status   PointStatus `json:"status" gorm:"type:varchar(20);not null;default:'ACTIVE'"`

	// Location
	Address   string  `json:"address" gorm:"type:varchar(500);not null"`
	Latitude  float64 `json:"latitude" gorm:"type:decimal(10,7);not null"`
	Longitude float64 `json:"longitude" gorm:"type:decimal(10,7);not null"`
	City      *string `json:"city,omitempty" gorm:"type:varchar(100)"`
	State     *string `json:"state,omitempty" gorm:"type:varchar(10)"`
	Country   string  `json:"country" gorm:"type:varchar(100);not null;default:'Brasil'"`

	// Media details
	Dimensions   *string `json:"dimensions,omitempty" gorm:"type:varchar(50)"`
	DailyTraffic *int64  `json:"dailyTraffic,omitempty"`
	MediaTypes   *string `json:"mediaTypes,omitempty" gorm:"type:varchar(255)"`
	Notes        *string `json:"notes,omitempty" gorm:"type:text"`
	Landmark     *string `json:"landmark,omitempty" gorm:"type:varchar(255)"`
	Metadata     *JSON   `json:"metadata,omitempty" gorm:"type:jsonb"`

	Products []PointProduct `json:"products,omitempty" gorm:"foreignKey:PointID"`
	Images   []PointImage   `json:"images,omitempty" gorm:"foreignKey:PointID"`

	// Audit fields
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	DeletedAt *gorm.DeletedAt `json:"deletedAt,omitempty" gorm:"index"`
}

func (Point) TableName() string {
	return "points"
}

// PointProduct is a price line of a point
type PointProduct struct {
	ID            int64       `json:"id" gorm:"primaryKey;autoIncrement"`
	PointID       int64       `json:"pointId" gorm:"not null;index"`
	Type          ProductType `json:"productType" gorm:"type:varchar(20);not null"`
	Price         float64     `json:"price" gorm:"type:decimal(12,2);not null"`
	BillingPeriod *string     `json:"billingPeriod,omitempty" gorm:"type:varchar(20)"`
	CreatedAt     time.Time   `json:"createdAt"`
}

func (PointProduct) TableName() string {
	return "point_products"
}

// PointImage is a stored photo of a point; SortOrder 0 is the cover
type PointImage struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	PointID     int64     `json:"pointId" gorm:"not null;index"`
	FileName    string    `json:"fileName" gorm:"type:varchar(255)"`
	ContentType string    `json:"contentType" gorm:"type:varchar(100)"`
	Data        []byte    `json:"-" gorm:"type:bytea"`
	SortOrder   int       `json:"sortOrder" gorm:"not null;default:0"`
	IsCover     bool      `json:"isCover" gorm:"default:false"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (PointImage) TableName() string {
	return "point_images"
}
