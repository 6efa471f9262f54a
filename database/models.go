package database

import "time"

// ArmedExitRecord is the audit row created when an auto-exit is armed and
// closed out when it fires or is disarmed.
type ArmedExitRecord struct {
	ID uint `gorm:"primaryKey"`

	Symbol     string  `gorm:"size:16;index;not null"`
	Side       string  `gorm:"size:8;not null"`
	Quantity   int     `gorm:"not null"`
	EntryPrice float64 `gorm:"not null"`

	StopPrice          float64
	TakeProfitPrice    float64
	SecondaryStopPrice *float64

	StopPlacementPrice float64

	ArmedAt     time.Time `gorm:"index;not null"`
	ClosedAt    *time.Time
	CloseReason *string `gorm:"size:32"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExecutionReport is one executor attempt: the order submitted, the price
// it went out at, and what came back.
type ExecutionReport struct {
	ID uint `gorm:"primaryKey"`

	ArmedExitID uint   `gorm:"index"`
	Symbol      string `gorm:"size:16;index;not null"`
	Reason      string `gorm:"size:32;not null"`

	AttemptNumber     int
	OrderID           string `gorm:"size:64"`
	OrderType         string `gorm:"size:8"`
	LimitPrice        float64
	RequestedQuantity int
	Outcome           string `gorm:"size:32"` // SUBMITTED, FILLED, NOT_FLAT, REJECTED

	CreatedAt time.Time `gorm:"index"`
}
