package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Archive persists trades, market snapshots, emitted alerts and the
// impact job queue. The path decides the driver: postgres:// DSNs use
// PostgreSQL, anything else is a SQLite file path.
type Archive struct {
	db *gorm.DB
}

// Models

// ArchivedTrade is one venue trade at rest. IDs are deterministic
// (marketId-addrPrefix-ts-seq) so replays never duplicate rows.
type ArchivedTrade struct {
	ID        string `gorm:"primaryKey"`
	MarketID  string `gorm:"index"`
	AssetID   string
	Outcome   string
	Maker     string `gorm:"index"`
	Taker     string `gorm:"index"`
	Side      string
	Price     decimal.Decimal `gorm:"type:decimal(10,6)"`
	Size      decimal.Decimal `gorm:"type:decimal(20,6)"`
	Notional  decimal.Decimal `gorm:"type:decimal(20,6)"`
	TradedAt  time.Time       `gorm:"index"`
	CreatedAt time.Time
}

// MarketSnapshot is a per-minute market observation.
type MarketSnapshot struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	AssetID    string `gorm:"index:idx_snapshot_asset_minute,unique"`
	Minute     time.Time `gorm:"index:idx_snapshot_asset_minute,unique"`
	Price      decimal.Decimal `gorm:"type:decimal(10,6)"`
	BestBid    decimal.Decimal `gorm:"type:decimal(10,6)"`
	BestAsk    decimal.Decimal `gorm:"type:decimal(10,6)"`
	Spread     decimal.Decimal `gorm:"type:decimal(10,6)"`
	TradeCount int
	Volume     decimal.Decimal `gorm:"type:decimal(20,6)"`
	CreatedAt  time.Time
}

// StoredAlert is one emitted alert at rest.
type StoredAlert struct {
	ID        string `gorm:"primaryKey"`
	Source    string `gorm:"index"`
	Priority  string
	Title     string
	Body      string
	EmittedAt time.Time `gorm:"index"`
	CreatedAt time.Time
}

// ImpactJob measures a trade's market impact after a delay. Jobs run
// through pending -> done or failed, with bounded retries.
type ImpactJob struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	TradeID    string `gorm:"index"`
	AssetID    string
	TradePrice decimal.Decimal `gorm:"type:decimal(10,6)"`
	LaterPrice decimal.Decimal `gorm:"type:decimal(10,6)"`
	Impact     decimal.Decimal `gorm:"type:decimal(10,6)"`
	Status     string          `gorm:"index"` // pending, done, failed
	Tries      int
	RunAt      time.Time `gorm:"index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// New opens the archive and migrates the schema.
func New(path string) (*Archive, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(path, "postgres://") || strings.HasPrefix(path, "postgresql://") {
		db, err = gorm.Open(postgres.Open(path), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Archive connected (PostgreSQL)")
	} else {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
		db, err = gorm.Open(sqlite.Open(path), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", path).Msg("Archive initialized (SQLite)")
	}

	if err := db.AutoMigrate(&ArchivedTrade{}, &MarketSnapshot{}, &StoredAlert{}, &ImpactJob{}); err != nil {
		return nil, err
	}
	return &Archive{db: db}, nil
}

// TradeID builds the deterministic archive key for a trade.
func TradeID(marketID, takerAddr string, ts time.Time, seq int) string {
	prefix := takerAddr
	if len(prefix) > 10 {
		prefix = prefix[:10]
	}
	return fmt.Sprintf("%s-%s-%d-%d", marketID, prefix, ts.Unix(), seq)
}

// Trade operations

func (a *Archive) SaveTrade(t *ArchivedTrade) error {
	// Deterministic IDs make replays idempotent.
	return a.db.Where(ArchivedTrade{ID: t.ID}).FirstOrCreate(t).Error
}

func (a *Archive) TradesByMarket(marketID string, since time.Time, limit int) ([]ArchivedTrade, error) {
	var trades []ArchivedTrade
	err := a.db.Where("market_id = ? AND traded_at >= ?", marketID, since).
		Order("traded_at desc").Limit(limit).Find(&trades).Error
	return trades, err
}

func (a *Archive) TradesByWallet(wallet string, since time.Time, limit int) ([]ArchivedTrade, error) {
	var trades []ArchivedTrade
	err := a.db.Where("(maker = ? OR taker = ?) AND traded_at >= ?", wallet, wallet, since).
		Order("traded_at desc").Limit(limit).Find(&trades).Error
	return trades, err
}

// Snapshot operations

func (a *Archive) SaveSnapshot(s *MarketSnapshot) error {
	return a.db.Save(s).Error
}

func (a *Archive) SnapshotsByAsset(assetID string, since time.Time) ([]MarketSnapshot, error) {
	var snaps []MarketSnapshot
	err := a.db.Where("asset_id = ? AND minute >= ?", assetID, since).
		Order("minute asc").Find(&snaps).Error
	return snaps, err
}

// Alert operations

func (a *Archive) SaveAlert(al *StoredAlert) error {
	return a.db.Save(al).Error
}

func (a *Archive) RecentAlerts(limit int) ([]StoredAlert, error) {
	var alerts []StoredAlert
	err := a.db.Order("emitted_at desc").Limit(limit).Find(&alerts).Error
	return alerts, err
}

// Impact job queue

const maxJobTries = 3

func (a *Archive) EnqueueImpactJob(tradeID, assetID string, tradePrice decimal.Decimal, runAt time.Time) error {
	job := &ImpactJob{
		TradeID:    tradeID,
		AssetID:    assetID,
		TradePrice: tradePrice,
		Status:     "pending",
		RunAt:      runAt,
	}
	return a.db.Create(job).Error
}

// DueImpactJobs returns pending jobs whose run time has passed.
func (a *Archive) DueImpactJobs(now time.Time, limit int) ([]ImpactJob, error) {
	var jobs []ImpactJob
	err := a.db.Where("status = ? AND run_at <= ?", "pending", now).
		Order("run_at asc").Limit(limit).Find(&jobs).Error
	return jobs, err
}

// CompleteImpactJob records the measured impact.
func (a *Archive) CompleteImpactJob(job *ImpactJob, laterPrice decimal.Decimal) error {
	job.LaterPrice = laterPrice
	job.Impact = laterPrice.Sub(job.TradePrice)
	job.Status = "done"
	return a.db.Save(job).Error
}

// FailImpactJob bumps the retry count, marking the job failed once the
// budget is spent.
func (a *Archive) FailImpactJob(job *ImpactJob, retryAfter time.Duration) error {
	job.Tries++
	if job.Tries >= maxJobTries {
		job.Status = "failed"
	} else {
		job.RunAt = job.RunAt.Add(retryAfter)
	}
	return a.db.Save(job).Error
}

// Close releases the underlying connection pool.
func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
