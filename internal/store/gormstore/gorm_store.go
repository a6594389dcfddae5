// Package gormstore implements store.Store on Gorm + SQLite.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ramonzeraa/teste-crypto/internal/executor"
	"github.com/ramonzeraa/teste-crypto/internal/position"
	"github.com/ramonzeraa/teste-crypto/internal/store"
	"github.com/ramonzeraa/teste-crypto/internal/store/model"
	"github.com/ramonzeraa/teste-crypto/internal/types"
)

// GormStore persists trading state in a single SQLite file.
type GormStore struct {
	db *gorm.DB
}

var _ store.Store = (*GormStore)(nil)

// New opens (or creates) the database at path and migrates the schema.
func New(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: database path is empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&model.OrderModel{},
		&model.PositionModel{},
		&model.AccountModel{},
		&model.LedgerEntryModel{},
		&model.EventModel{},
	); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP
	// reads while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// --------------------- orders -------------------------

func (s *GormStore) SaveOrder(ctx context.Context, o executor.Order) error {
	m, err := orderToModel(o)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "client_order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"exchange_id", "state", "filled_qty", "avg_fill_price",
				"attempts", "fail_reason", "updated_at",
			}),
		}).
		Create(&m).Error
}

func (s *GormStore) ListOpenOrders(ctx context.Context) ([]executor.Order, error) {
	var models []model.OrderModel
	terminal := []string{
		string(executor.StateFilled),
		string(executor.StateRejected),
		string(executor.StateCancelled),
	}
	if err := s.db.WithContext(ctx).Where("state NOT IN ?", terminal).Find(&models).Error; err != nil {
		return nil, err
	}
	return ordersFromModels(models)
}

func (s *GormStore) ListRecentOrders(ctx context.Context, limit int) ([]executor.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []model.OrderModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	return ordersFromModels(models)
}

func orderToModel(o executor.Order) (model.OrderModel, error) {
	intentJSON, err := json.Marshal(o.Intent)
	if err != nil {
		return model.OrderModel{}, fmt.Errorf("marshal order intent: %w", err)
	}
	reduce := 0
	if o.Reduce {
		reduce = 1
	}
	now := time.Now()
	return model.OrderModel{
		ClientOrderID: o.ID,
		ExchangeID:    o.ExchangeID,
		Symbol:        o.Intent.Symbol,
		Direction:     string(o.Intent.Direction),
		OrderType:     string(o.Intent.Type),
		Size:          o.Intent.Size,
		LimitPrice:    o.Intent.LimitPrice,
		State:         string(o.State),
		FilledQty:     o.FilledQty,
		AvgFillPrice:  o.AvgFillPrice,
		Attempts:      o.Attempts,
		Reduce:        reduce,
		FailReason:    o.FailReason,
		IntentJSON:    datatypes.JSON(intentJSON),
		CreatedAtUnix: o.CreatedAt.Unix(),
		UpdatedAtUnix: now.Unix(),
	}, nil
}

func ordersFromModels(models []model.OrderModel) ([]executor.Order, error) {
	out := make([]executor.Order, 0, len(models))
	for _, m := range models {
		var intent types.OrderIntent
		if len(m.IntentJSON) > 0 {
			if err := json.Unmarshal(m.IntentJSON, &intent); err != nil {
				return nil, fmt.Errorf("order %s: decode intent: %w", m.ClientOrderID, err)
			}
		}
		state := executor.OrderState(m.State)
		o := executor.Order{
			ID:           m.ClientOrderID,
			ExchangeID:   m.ExchangeID,
			Intent:       intent,
			State:        state,
			FilledQty:    m.FilledQty,
			AvgFillPrice: m.AvgFillPrice,
			Attempts:     m.Attempts,
			Reduce:       m.Reduce != 0,
			FailReason:   m.FailReason,
			CreatedAt:    time.Unix(m.CreatedAtUnix, 0),
			StateTimes: map[executor.OrderState]time.Time{
				state: time.Unix(m.UpdatedAtUnix, 0),
			},
		}
		out = append(out, o)
	}
	return out, nil
}

// --------------------- positions -------------------------

func (s *GormStore) SavePosition(ctx context.Context, p position.Position) error {
	tpJSON, err := json.Marshal(p.TakeProfits)
	if err != nil {
		return fmt.Errorf("marshal take profits: %w", err)
	}
	trailing := 0
	if p.Trailing {
		trailing = 1
	}
	m := model.PositionModel{
		Symbol:          p.Symbol,
		Direction:       string(p.Direction),
		EntryPrice:      p.EntryPrice,
		Size:            p.Size,
		StopLoss:        p.StopLoss,
		TakeProfitsJSON: datatypes.JSON(tpJSON),
		Trailing:        trailing,
		TrailingPeak:    p.TrailingPeak,
		RealizedPnL:     p.RealizedPnL,
		OpenedAtUnix:    p.OpenedAt.Unix(),
		UpdatedAtUnix:   time.Now().Unix(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"direction", "entry_price", "size", "stop_loss",
				"take_profits_json", "trailing", "trailing_peak",
				"realized_pnl", "updated_at",
			}),
		}).
		Create(&m).Error
}

func (s *GormStore) DeletePosition(ctx context.Context, symbol string) error {
	return s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Delete(&model.PositionModel{}).Error
}

func (s *GormStore) ListPositions(ctx context.Context) ([]position.Position, error) {
	var models []model.PositionModel
	if err := s.db.WithContext(ctx).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]position.Position, 0, len(models))
	for _, m := range models {
		var tps []float64
		if len(m.TakeProfitsJSON) > 0 {
			if err := json.Unmarshal(m.TakeProfitsJSON, &tps); err != nil {
				return nil, fmt.Errorf("position %s: decode take profits: %w", m.Symbol, err)
			}
		}
		out = append(out, position.Position{
			Symbol:       m.Symbol,
			Direction:    types.Direction(m.Direction),
			EntryPrice:   m.EntryPrice,
			Size:         m.Size,
			StopLoss:     m.StopLoss,
			TakeProfits:  tps,
			Trailing:     m.Trailing != 0,
			TrailingPeak: m.TrailingPeak,
			RealizedPnL:  m.RealizedPnL,
			OpenedAt:     time.Unix(m.OpenedAtUnix, 0),
			UpdatedAt:    time.Unix(m.UpdatedAtUnix, 0),
		})
	}
	return out, nil
}

// --------------------- account -------------------------

const accountRowID = 1

func (s *GormStore) SaveAccount(ctx context.Context, snap store.AccountSnapshot) error {
	m := model.AccountModel{
		ID:            accountRowID,
		Capital:       snap.Capital,
		DailyPnL:      snap.DailyPnL,
		WeeklyPnL:     snap.WeeklyPnL,
		MonthlyPnL:    snap.MonthlyPnL,
		TradesToday:   snap.TradesToday,
		WindowAnchor:  snap.WindowAnchor,
		UpdatedAtUnix: time.Now().Unix(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&m).Error
}

func (s *GormStore) LoadAccount(ctx context.Context) (*store.AccountSnapshot, error) {
	var m model.AccountModel
	err := s.db.WithContext(ctx).First(&m, accountRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &store.AccountSnapshot{
		Capital:      m.Capital,
		DailyPnL:     m.DailyPnL,
		WeeklyPnL:    m.WeeklyPnL,
		MonthlyPnL:   m.MonthlyPnL,
		TradesToday:  m.TradesToday,
		WindowAnchor: m.WindowAnchor,
	}, nil
}

// --------------------- ledger and events -------------------------

func (s *GormStore) AppendLedger(ctx context.Context, entry store.LedgerEntry) error {
	m := model.LedgerEntryModel{
		Symbol:        entry.Symbol,
		Kind:          string(entry.Kind),
		Direction:     entry.Direction,
		Qty:           entry.Qty,
		Price:         entry.Price,
		RealizedPnL:   entry.RealizedPnL,
		ClientOrderID: entry.ClientOrderID,
		AtUnix:        time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *GormStore) ListLedger(ctx context.Context, symbol string, limit int) ([]model.LedgerEntryModel, error) {
	if limit <= 0 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Order("at DESC").Limit(limit)
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	var out []model.LedgerEntryModel
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) AppendEvent(ctx context.Context, ev store.Event) error {
	var payload datatypes.JSON
	if ev.Payload != nil {
		raw, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		payload = datatypes.JSON(raw)
	}
	m := model.EventModel{
		Kind:        ev.Kind,
		Symbol:      ev.Symbol,
		Detail:      ev.Detail,
		PayloadJSON: payload,
		AtUnix:      time.Now().Unix(),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *GormStore) ListEvents(ctx context.Context, kind string, limit int) ([]model.EventModel, error) {
	if limit <= 0 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Order("at DESC").Limit(limit)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var out []model.EventModel
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
