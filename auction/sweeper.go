package auction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"carhut/models"
)

// Sweeper 定期掃描拍賣時間已截止的車輛並觸發結標
// 結標本身的原子性由引擎保證，Sweeper 只負責挑出候選車輛
type Sweeper struct {
	engine *Engine
	db     *gorm.DB
	cron   *cron.Cron
	logger *slog.Logger
	spec   string
}

type SweeperOption func(*Sweeper)

// WithSweeperSchedule 設定掃描的排程（cron 表達式或 @every 語法）
func WithSweeperSchedule(spec string) SweeperOption {
	return func(s *Sweeper) {
		s.spec = spec
	}
}

// WithSweeperLogger 設定 Sweeper 使用的logger
func WithSweeperLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

func NewSweeper(db *gorm.DB, engine *Engine, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		engine: engine,
		db:     db,
		cron:   cron.New(),
		logger: slog.Default(),
		spec:   "@every 1m",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start 啟動定期掃描
func (s *Sweeper) Start() error {
	const op = "Sweeper.Start"
	if _, err := s.cron.AddFunc(s.spec, func() {
		s.Sweep(context.Background())
	}); err != nil {
		return fmt.Errorf("[%s] Fail to schedule sweep, err=%w", op, err)
	}
	s.cron.Start()
	s.logger.Info("Auction sweeper started", slog.String("schedule", s.spec))
	return nil
}

// Close 停止排程並等待進行中的掃描結束
func (s *Sweeper) Close() {
	<-s.cron.Stop().Done()
	s.logger.Info("Auction sweeper stopped")
}

// Sweep 結算所有拍賣已截止且尚未結標的車輛
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.engine.clock()
	var ids []uuid.UUID
	result := s.db.WithContext(ctx).Model(&models.Car{}).
		Where("auction_end_date IS NOT NULL AND auction_end_date <= ? AND auction_closed_at IS NULL", now).
		Pluck("id", &ids)
	if result.Error != nil {
		s.logger.Error("Fail to list ended auctions", slog.Any("error", result.Error))
		return
	}
	for _, id := range ids {
		outcome, err := s.engine.CloseAuction(ctx, id)
		if err != nil {
			s.logger.Error("Fail to close ended auction",
				slog.String("carID", id.String()), slog.Any("error", err))
			continue
		}
		s.logger.Info("Ended auction resolved",
			slog.String("carID", id.String()),
			slog.Bool("sold", outcome.Sold),
			slog.String("message", outcome.Message))
	}
}
