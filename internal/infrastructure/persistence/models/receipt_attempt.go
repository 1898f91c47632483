// Package models holds GORM persistence models and their domain mapping.
package models

import (
	"time"

	"github.com/erp/receiving/internal/domain/receiving"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReceiptAttemptModel is the persistence model for a finalization attempt
type ReceiptAttemptModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primary_key"`
	TenantID       uuid.UUID       `gorm:"type:uuid;not null;index:idx_receipt_attempt_order,priority:1"`
	OrderID        uuid.UUID       `gorm:"type:uuid;not null;index:idx_receipt_attempt_order,priority:2"`
	DeviceID       string          `gorm:"type:varchar(100);not null"`
	SessionID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	OrderNumber    string          `gorm:"type:varchar(50);not null"`
	ReceivingDate  time.Time       `gorm:"not null"`
	ItemCount      int             `gorm:"not null"`
	TotalQuantity  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	TotalValue     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Outcome        string          `gorm:"type:varchar(20);not null"`
	ErrorCode      string          `gorm:"type:varchar(50)"`
	ErrorMessage   string          `gorm:"type:text"`
	ReceiptNumber  string          `gorm:"type:varchar(50)"`
	IdempotencyKey uuid.UUID       `gorm:"type:uuid;not null;index"`
	AttemptedAt    time.Time       `gorm:"not null;index"`
	CreatedAt      time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReceiptAttemptModel) TableName() string {
	return "receipt_attempts"
}

// ToDomain converts the persistence model to a domain ReceiptAttempt
func (m *ReceiptAttemptModel) ToDomain() receiving.ReceiptAttempt {
	return receiving.ReceiptAttempt{
		ID:             m.ID,
		TenantID:       m.TenantID,
		DeviceID:       m.DeviceID,
		SessionID:      m.SessionID,
		OrderID:        m.OrderID,
		OrderNumber:    m.OrderNumber,
		ReceivingDate:  m.ReceivingDate,
		ItemCount:      m.ItemCount,
		TotalQuantity:  m.TotalQuantity,
		TotalValue:     m.TotalValue,
		Outcome:        receiving.AttemptOutcome(m.Outcome),
		ErrorCode:      m.ErrorCode,
		ErrorMessage:   m.ErrorMessage,
		ReceiptNumber:  m.ReceiptNumber,
		IdempotencyKey: m.IdempotencyKey,
		AttemptedAt:    m.AttemptedAt,
	}
}

// ReceiptAttemptModelFromDomain converts a domain ReceiptAttempt to a persistence model
func ReceiptAttemptModelFromDomain(a *receiving.ReceiptAttempt) *ReceiptAttemptModel {
	return &ReceiptAttemptModel{
		ID:             a.ID,
		TenantID:       a.TenantID,
		OrderID:        a.OrderID,
		DeviceID:       a.DeviceID,
		SessionID:      a.SessionID,
		OrderNumber:    a.OrderNumber,
		ReceivingDate:  a.ReceivingDate,
		ItemCount:      a.ItemCount,
		TotalQuantity:  a.TotalQuantity,
		TotalValue:     a.TotalValue,
		Outcome:        string(a.Outcome),
		ErrorCode:      a.ErrorCode,
		ErrorMessage:   a.ErrorMessage,
		ReceiptNumber:  a.ReceiptNumber,
		IdempotencyKey: a.IdempotencyKey,
		AttemptedAt:    a.AttemptedAt,
	}
}
