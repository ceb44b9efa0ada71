// Package journal mirrors control loop decisions into Postgres.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"trendbot/internal/engine"
)

type DecisionRecord struct {
	ID           uint            `gorm:"primaryKey"`
	RunID        string          `gorm:"index;size:64"`
	Timestamp    time.Time       `gorm:"index"`
	BarTime      time.Time       `gorm:"column:bar_time"`
	Pair         string          `gorm:"size:32"`
	Close        float64         `gorm:"column:close"`
	MACD         float64         `gorm:"column:macd"`
	MACDSignal   float64         `gorm:"column:macd_signal"`
	Strategy     string          `gorm:"size:16"`
	Signal       int             `gorm:"column:signal"`
	Manual       string          `gorm:"size:16"`
	Target       decimal.Decimal `gorm:"type:numeric"`
	Pseudo       decimal.Decimal `gorm:"type:numeric"`
	ToTrade      decimal.Decimal `gorm:"type:numeric"`
	Cancels      int             `gorm:"column:cancels"`
	Result       string          `gorm:"size:32;index"`
	RejectReason string          `gorm:"type:text"`
	OrderID      string          `gorm:"size:128"`
	Side         string          `gorm:"size:8"`
	Qty          decimal.Decimal `gorm:"type:numeric"`
	Price        decimal.Decimal `gorm:"type:numeric"`
}

func (DecisionRecord) TableName() string {
	return "decisions"
}

// DefaultWriteTimeout bounds each insert, since Append runs on the control loop.
const DefaultWriteTimeout = 500 * time.Millisecond

// Journal is an engine.DecisionSink. Write failures and timeouts are logged and dropped.
type Journal struct {
	db      *gorm.DB
	log     logrus.FieldLogger
	timeout time.Duration
}

func Open(dsn string, log logrus.FieldLogger) (*Journal, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	if err := db.AutoMigrate(&DecisionRecord{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return &Journal{db: db, log: log, timeout: DefaultWriteTimeout}, nil
}

func (j *Journal) Append(d engine.Decision) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	rec := toRecord(d)
	if err := j.db.WithContext(ctx).Create(&rec).Error; err != nil {
		j.log.WithError(err).WithField("result", d.Result).Warn("journal write failed")
	}
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(d engine.Decision) DecisionRecord {
	return DecisionRecord{
		RunID:        d.RunID,
		Timestamp:    d.Timestamp,
		BarTime:      d.BarTime,
		Pair:         d.Pair,
		Close:        d.Close,
		MACD:         d.MACD,
		MACDSignal:   d.MACDSignal,
		Strategy:     d.Strategy,
		Signal:       int(d.Signal),
		Manual:       d.Manual,
		Target:       d.Target,
		Pseudo:       d.Pseudo,
		ToTrade:      d.ToTrade,
		Cancels:      d.Cancels,
		Result:       d.Result,
		RejectReason: d.RejectReason,
		OrderID:      d.OrderID,
		Side:         d.Side,
		Qty:          d.Qty,
		Price:        d.Price,
	}
}
