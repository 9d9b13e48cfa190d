package auction

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"carhut/models"
)

var testDBSeq atomic.Int64

// setupTestDB opens an isolated in-memory database and migrates the schema.
// A single connection keeps concurrent test writes serialized the same way
// the engine serializes them in production.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:auction_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Brand{},
		&models.Car{},
		&models.Bid{},
	))
	return db
}

type fixture struct {
	db     *gorm.DB
	engine *Engine
	seller models.User
	bidder models.User
	rival  models.User
	brand  models.Brand
}

func setupEngineTest(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{db: setupTestDB(t)}
	f.seller = models.User{Username: "seller", Password: "x"}
	f.bidder = models.User{Username: "bidder", Password: "x"}
	f.rival = models.User{Username: "rival", Password: "x"}
	f.brand = models.Brand{Name: "Toyota"}
	require.NoError(t, f.db.Create(&f.seller).Error)
	require.NoError(t, f.db.Create(&f.bidder).Error)
	require.NoError(t, f.db.Create(&f.rival).Error)
	require.NoError(t, f.db.Create(&f.brand).Error)

	f.engine = NewEngine(f.db, opts...)
	return f
}

type carOption func(*models.Car)

func withWindow(start, end time.Time) carOption {
	return func(c *models.Car) {
		c.AuctionStartDate = &start
		c.AuctionEndDate = &end
	}
}

func withReserve(amount decimal.Decimal) carOption {
	return func(c *models.Car) {
		c.ReservePrice = &amount
	}
}

func withStatus(status models.CarStatus) carOption {
	return func(c *models.Car) {
		c.Status = status
	}
}

// createCar inserts an auction listing owned by the fixture seller.
// The default window covers the present so bids are admissible.
func (f *fixture) createCar(t *testing.T, price decimal.Decimal, opts ...carOption) models.Car {
	t.Helper()

	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)
	car := models.Car{
		UserID:           f.seller.ID,
		BrandID:          f.brand.ID,
		Name:             "Corolla Altis",
		CarModel:         "Corolla",
		Year:             2021,
		Price:            price,
		Mileage:          42000,
		Status:           models.CarStatusAvailable,
		AuctionStartDate: &start,
		AuctionEndDate:   &end,
	}
	for _, opt := range opts {
		opt(&car)
	}
	require.NoError(t, f.db.Create(&car).Error)
	return car
}

func money(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	require.NoError(t, err)
	return d
}
