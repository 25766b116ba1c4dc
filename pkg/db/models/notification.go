package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/agencyhub-backend/pkg/enums"
)

// Notification stores in-app notification payloads scoped to users.
type Notification struct {
	ID                uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	UserID            uuid.UUID                  `gorm:"column:user_id;type:uuid;not null;index"`
	Type              enums.NotificationType     `gorm:"column:type;type:text;not null"`
	Priority          enums.NotificationPriority `gorm:"column:priority;type:text;not null;default:'normal'"`
	Title             string                     `gorm:"column:title;type:text;not null"`
	Message           string                     `gorm:"column:message;type:text;not null"`
	Link              *string                    `gorm:"column:link;type:text"`
	RelatedContractID *uuid.UUID                 `gorm:"column:related_contract_id;type:uuid"`
	ReadAt            *time.Time                 `gorm:"column:read_at"`
	CreatedAt         time.Time                  `gorm:"column:created_at;autoCreateTime"`
}

func (Notification) TableName() string { return "notifications" }

func (n *Notification) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
