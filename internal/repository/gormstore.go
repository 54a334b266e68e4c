package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/auctionerrors"
	model "auction-engine/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Row types. Decimal amounts are stored as strings so no precision is lost
// in SQLite's numeric affinity.

type auctionRow struct {
	AuctionID     string `gorm:"primaryKey;column:auction_id"`
	Type          string
	Status        string
	CreatorID     string
	Currency      string
	Title         string
	Description   string
	DraftID       string `gorm:"index"`
	LotName       string
	TeamBudget    string
	MinSquadSize  int
	MaxSquadSize  int
	StartingPrice string
	MinIncrement  string
	CurrentPrice  string
	StartTime     time.Time
	EndTime       time.Time
}

type bidRow struct {
	BidID     string `gorm:"primaryKey;column:bid_id"`
	AuctionID string `gorm:"index"`
	UserID    string `gorm:"index"`
	Amount    string
	CreatedAt time.Time
	IsWinning bool
}

type userRow struct {
	UserID      string `gorm:"primaryKey;column:user_id"`
	Username    string
	Wallet      string
	TotalBudget string
}

type lotRow struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	DraftID   string `gorm:"index:idx_draft_winner"`
	AuctionID string
	WinnerID  string `gorm:"index:idx_draft_winner"`
	Price     string
	ClosedAt  time.Time
}

type viewRow struct {
	UserID       string `gorm:"primaryKey"`
	AuctionID    string `gorm:"primaryKey"`
	LastViewedAt time.Time
}

// GormStore is a gorm-backed implementation of AuctionStore
type GormStore struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) a SQLite-backed store at the given path and
// runs migrations for all row types.
func OpenSQLite(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite store at %s: %w", path, err)
	}
	return NewGormStore(db)
}

// NewGormStore wraps an existing gorm connection and runs migrations
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&auctionRow{}, &bidRow{}, &userRow{}, &lotRow{}, &viewRow{}); err != nil {
		return nil, fmt.Errorf("migrate auction store: %w", err)
	}
	return &GormStore{db: db}, nil
}

// CreateAuction stores a new auction record
func (s *GormStore) CreateAuction(ctx context.Context, a model.Auction) error {
	row := auctionToRow(a)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create auction %s: %w", row.AuctionID, wrapStoreErr(err))
	}
	return nil
}

// GetAuction returns the stored auction record
func (s *GormStore) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	var row auctionRow
	err := s.db.WithContext(ctx).First(&row, "auction_id = ?", auctionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("get auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get auction %s: %w", auctionID, wrapStoreErr(err))
	}
	return rowToAuction(row)
}

// AuctionsByStatus returns every stored auction in the given status
func (s *GormStore) AuctionsByStatus(ctx context.Context, status model.AuctionStatus) ([]model.Auction, error) {
	var rows []auctionRow
	if err := s.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list auctions with status %s: %w", status, wrapStoreErr(err))
	}
	auctions := make([]model.Auction, 0, len(rows))
	for _, row := range rows {
		a, err := rowToAuction(row)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}
	return auctions, nil
}

// SetStatus persists a lifecycle transition
func (s *GormStore) SetStatus(ctx context.Context, auctionID string, status model.AuctionStatus) error {
	res := s.db.WithContext(ctx).Model(&auctionRow{}).
		Where("auction_id = ?", auctionID).
		Update("status", string(status))
	if res.Error != nil {
		return fmt.Errorf("set status for auction %s: %w", auctionID, wrapStoreErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("set status for auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	return nil
}

// CommitBid records the bid, flips the previous winning bid and advances the
// current price in one transaction. The commit is refused with
// ErrPriceConflict when the stored price no longer matches ExpectedPrice, so
// the conditional fence holds even if another process shares the database.
func (s *GormStore) CommitBid(ctx context.Context, commit BidCommit) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row auctionRow
		if err := tx.First(&row, "auction_id = ?", commit.AuctionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return auctionerrors.ErrAuctionNotFound
			}
			return wrapStoreErr(err)
		}

		stored, err := decimal.NewFromString(row.CurrentPrice)
		if err != nil {
			return fmt.Errorf("parse stored price %q: %w", row.CurrentPrice, err)
		}
		if !stored.Equal(commit.ExpectedPrice) {
			return auctionerrors.ErrPriceConflict
		}

		if err := tx.Model(&bidRow{}).
			Where("auction_id = ? AND is_winning = ?", commit.AuctionID, true).
			Update("is_winning", false).Error; err != nil {
			return wrapStoreErr(err)
		}

		bid := commit.Bid
		bid.IsWinning = true
		if err := tx.Create(bidToRowPtr(bid)).Error; err != nil {
			return wrapStoreErr(err)
		}

		return tx.Model(&auctionRow{}).
			Where("auction_id = ?", commit.AuctionID).
			Update("current_price", bid.Amount.String()).Error
	})
	if err != nil {
		return fmt.Errorf("commit bid for auction %s: %w", commit.AuctionID, err)
	}
	return nil
}

// BidsByAuction returns all bids for an auction in commit order
func (s *GormStore) BidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	var rows []bidRow
	if err := s.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, wrapStoreErr(err))
	}
	bids := make([]model.Bid, 0, len(rows))
	for _, r := range rows {
		b, err := rowToBid(r)
		if err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, nil
}

// WinningBid returns the bid currently flagged as winning
func (s *GormStore) WinningBid(ctx context.Context, auctionID string) (model.Bid, error) {
	var row bidRow
	err := s.db.WithContext(ctx).
		First(&row, "auction_id = ? AND is_winning = ?", auctionID, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
	}
	if err != nil {
		return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, wrapStoreErr(err))
	}
	return rowToBid(row)
}

// CreateUser stores a user record
func (s *GormStore) CreateUser(ctx context.Context, u model.User) error {
	row := userRow{
		UserID:      u.UserID,
		Username:    u.Username,
		Wallet:      u.Wallet.String(),
		TotalBudget: u.TotalBudget.String(),
	}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("create user %s: %w", u.UserID, wrapStoreErr(err))
	}
	return nil
}

// GetUser returns a user record
func (s *GormStore) GetUser(ctx context.Context, userID string) (model.User, error) {
	var row userRow
	err := s.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.User{}, fmt.Errorf("get user %s: %w", userID, auctionerrors.ErrUserNotFound)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user %s: %w", userID, wrapStoreErr(err))
	}
	wallet, err := decimal.NewFromString(row.Wallet)
	if err != nil {
		return model.User{}, fmt.Errorf("parse wallet for user %s: %w", userID, err)
	}
	budget, err := decimal.NewFromString(row.TotalBudget)
	if err != nil {
		return model.User{}, fmt.Errorf("parse budget for user %s: %w", userID, err)
	}
	return model.User{UserID: row.UserID, Username: row.Username, Wallet: wallet, TotalBudget: budget}, nil
}

// RecordLot stores a closed team-draft lot
func (s *GormStore) RecordLot(ctx context.Context, lot model.LotResult) error {
	row := lotRow{
		DraftID:   lot.DraftID,
		AuctionID: lot.AuctionID,
		WinnerID:  lot.WinnerID,
		Price:     lot.Price.String(),
		ClosedAt:  lot.ClosedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("record lot for auction %s: %w", lot.AuctionID, wrapStoreErr(err))
	}
	return nil
}

// WonLots returns the lots a user has won in a draft
func (s *GormStore) WonLots(ctx context.Context, draftID, userID string) ([]model.LotResult, error) {
	var rows []lotRow
	if err := s.db.WithContext(ctx).
		Where("draft_id = ? AND winner_id = ?", draftID, userID).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get won lots for draft %s user %s: %w", draftID, userID, wrapStoreErr(err))
	}
	lots := make([]model.LotResult, 0, len(rows))
	for _, r := range rows {
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			return nil, fmt.Errorf("parse lot price %q: %w", r.Price, err)
		}
		lots = append(lots, model.LotResult{
			DraftID:   r.DraftID,
			AuctionID: r.AuctionID,
			WinnerID:  r.WinnerID,
			Price:     price,
			ClosedAt:  r.ClosedAt,
		})
	}
	return lots, nil
}

// RecordView upserts the user's last-viewed timestamp for an auction
func (s *GormStore) RecordView(ctx context.Context, userID, auctionID string) error {
	row := viewRow{UserID: userID, AuctionID: auctionID, LastViewedAt: time.Now().UTC()}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("record view for auction %s: %w", auctionID, wrapStoreErr(err))
	}
	return nil
}

// wrapStoreErr tags unexpected database errors as transient so the state
// machine's single retry applies to them.
func wrapStoreErr(err error) error {
	return fmt.Errorf("%w: %v", auctionerrors.ErrStoreTransient, err)
}

func auctionToRow(a model.Auction) auctionRow {
	core := a.Core()
	row := auctionRow{
		AuctionID:     core.AuctionID,
		Type:          string(a.Type()),
		Status:        string(core.Status),
		CreatorID:     core.CreatorID,
		Currency:      core.Currency,
		StartingPrice: core.StartingPrice.String(),
		MinIncrement:  core.MinIncrement.String(),
		CurrentPrice:  core.CurrentPrice.String(),
		StartTime:     core.StartTime,
		EndTime:       core.EndTime,
	}
	switch v := a.(type) {
	case model.SingleItemAuction:
		row.Title = v.Title
		row.Description = v.Description
	case model.TeamDraftAuction:
		row.DraftID = v.DraftID
		row.LotName = v.LotName
		row.TeamBudget = v.TeamBudget.String()
		row.MinSquadSize = v.MinSquadSize
		row.MaxSquadSize = v.MaxSquadSize
	}
	return row
}

func rowToAuction(row auctionRow) (model.Auction, error) {
	starting, err := decimal.NewFromString(row.StartingPrice)
	if err != nil {
		return nil, fmt.Errorf("parse starting price %q: %w", row.StartingPrice, err)
	}
	increment, err := decimal.NewFromString(row.MinIncrement)
	if err != nil {
		return nil, fmt.Errorf("parse min increment %q: %w", row.MinIncrement, err)
	}
	current, err := decimal.NewFromString(row.CurrentPrice)
	if err != nil {
		return nil, fmt.Errorf("parse current price %q: %w", row.CurrentPrice, err)
	}
	core := model.AuctionCore{
		AuctionID:     row.AuctionID,
		Status:        model.AuctionStatus(row.Status),
		CreatorID:     row.CreatorID,
		Currency:      row.Currency,
		StartingPrice: starting,
		MinIncrement:  increment,
		CurrentPrice:  current,
		StartTime:     row.StartTime,
		EndTime:       row.EndTime,
	}
	switch model.AuctionType(row.Type) {
	case model.TypeTeamDraft:
		budget, err := decimal.NewFromString(row.TeamBudget)
		if err != nil {
			return nil, fmt.Errorf("parse team budget %q: %w", row.TeamBudget, err)
		}
		return model.TeamDraftAuction{
			AuctionCore:  core,
			DraftID:      row.DraftID,
			LotName:      row.LotName,
			TeamBudget:   budget,
			MinSquadSize: row.MinSquadSize,
			MaxSquadSize: row.MaxSquadSize,
		}, nil
	default:
		return model.SingleItemAuction{
			AuctionCore: core,
			Title:       row.Title,
			Description: row.Description,
		}, nil
	}
}

func bidToRowPtr(b model.Bid) *bidRow {
	return &bidRow{
		BidID:     b.BidID,
		AuctionID: b.AuctionID,
		UserID:    b.UserID,
		Amount:    b.Amount.String(),
		CreatedAt: b.CreatedAt,
		IsWinning: b.IsWinning,
	}
}

func rowToBid(row bidRow) (model.Bid, error) {
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return model.Bid{}, fmt.Errorf("parse bid amount %q: %w", row.Amount, err)
	}
	return model.Bid{
		BidID:     row.BidID,
		AuctionID: row.AuctionID,
		UserID:    row.UserID,
		Amount:    amount,
		CreatedAt: row.CreatedAt,
		IsWinning: row.IsWinning,
	}, nil
}
