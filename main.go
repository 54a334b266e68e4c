package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"auction-engine/internal/config"
	"auction-engine/internal/engine"
	model "auction-engine/internal/models"
	"auction-engine/internal/realtime"
	"auction-engine/internal/repository"
	"auction-engine/internal/server"
	"auction-engine/utils"

	"github.com/shopspring/decimal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	store, err := openStore(cfg.Store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open auction store: %v\n", err)
		os.Exit(1)
	}

	if cfg.Store.Backend == "memory" {
		seedDemoData(store)
	}

	// the hub needs the engine for snapshots and bids, the engine needs the
	// hub for fanout; break the cycle by building the engine against a
	// publisher the hub fills in
	relay := &publisherRelay{}
	eng := engine.New(store, relay, engine.Options{
		LaneQueueDepth:     cfg.Engine.LaneQueueDepth,
		LaneEnqueueTimeout: cfg.Engine.LaneEnqueueTimeout,
		SweepInterval:      cfg.Engine.SweepInterval,
	})
	hub := realtime.NewHub(eng, realtime.Options{
		SendBufferSize: cfg.Realtime.SendBufferSize,
		PingInterval:   cfg.Realtime.PingInterval,
		PongWait:       cfg.Realtime.PongWait,
		WriteWait:      cfg.Realtime.WriteWait,
	})
	relay.target = hub

	eng.Start()
	defer func() {
		eng.Stop()
		hub.Close()
	}()

	router := server.SetupRouter(eng, hub)

	addr := cfg.Server.Addr()
	fmt.Printf("Starting auction server on %s...\n", addr)
	if err := router.Run(addr); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}
}

// publisherRelay forwards engine events to the hub once both exist
type publisherRelay struct {
	target engine.Publisher
}

func (r *publisherRelay) PublishBidCommitted(snap model.Snapshot, bid model.Bid) {
	if r.target != nil {
		r.target.PublishBidCommitted(snap, bid)
	}
}

func (r *publisherRelay) PublishAuctionEnded(snap model.Snapshot) {
	if r.target != nil {
		r.target.PublishAuctionEnded(snap)
	}
}

func openStore(cfg config.StoreConfig) (repository.AuctionStore, error) {
	if cfg.Backend == "sqlite" {
		return repository.OpenSQLite(cfg.DSN)
	}
	return repository.NewMemoryStore(), nil
}

// seedDemoData adds sample users and a live auction to the in-memory store
func seedDemoData(store repository.AuctionStore) {
	ctx := context.Background()
	now := time.Now().UTC()

	users := []model.User{
		{UserID: "alice", Username: "alice", Wallet: decimal.NewFromInt(5000), TotalBudget: decimal.NewFromInt(5000)},
		{UserID: "bob", Username: "bob", Wallet: decimal.NewFromInt(3000), TotalBudget: decimal.NewFromInt(3000)},
		{UserID: "carol", Username: "carol", Wallet: decimal.NewFromInt(10000), TotalBudget: decimal.NewFromInt(10000)},
	}
	for _, u := range users {
		if err := store.CreateUser(ctx, u); err != nil {
			utils.Warn("failed to seed user", map[string]any{"user_id": u.UserID, "error": err.Error()})
		}
	}

	auction := model.SingleItemAuction{
		AuctionCore: model.AuctionCore{
			AuctionID:     "demo-auction",
			Status:        model.StatusLive,
			CreatorID:     "carol",
			Currency:      "USD",
			StartingPrice: decimal.NewFromInt(100),
			MinIncrement:  decimal.NewFromInt(10),
			CurrentPrice:  decimal.NewFromInt(100),
			StartTime:     now.Add(-time.Minute),
			EndTime:       now.Add(time.Hour),
		},
		Title:       "Demo item",
		Description: "Seeded demo auction",
	}
	if err := store.CreateAuction(ctx, auction); err != nil {
		utils.Warn("failed to seed auction", map[string]any{"error": err.Error()})
	}
}
