package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"auction-engine/internal/engine"
	model "auction-engine/internal/models"
	"auction-engine/internal/realtime"
	"auction-engine/internal/repository"
	"auction-engine/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// fanoutRelay lets the hub be wired in after the engine exists
type fanoutRelay struct {
	target engine.Publisher
}

func (r *fanoutRelay) PublishBidCommitted(snap model.Snapshot, bid model.Bid) {
	if r.target != nil {
		r.target.PublishBidCommitted(snap, bid)
	}
}

func (r *fanoutRelay) PublishAuctionEnded(snap model.Snapshot) {
	if r.target != nil {
		r.target.PublishAuctionEnded(snap)
	}
}

type testEnv struct {
	store  *repository.MemoryStore
	engine *engine.Engine
	hub    *realtime.Hub
	router *gin.Engine
}

// SetupTestEnv wires a full stack over the in-memory store
func SetupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemoryStore()
	relay := &fanoutRelay{}
	eng := engine.New(store, relay, engine.Options{})
	hub := realtime.NewHub(eng, realtime.Options{})
	relay.target = hub
	t.Cleanup(hub.Close)

	return &testEnv{
		store:  store,
		engine: eng,
		hub:    hub,
		router: server.SetupRouter(eng, hub),
	}
}

// SeedUsers adds funded users to the store
func (env *testEnv) SeedUsers(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		err := env.store.CreateUser(context.Background(), model.User{
			UserID:      id,
			Username:    id,
			Wallet:      decimal.NewFromInt(100000),
			TotalBudget: decimal.NewFromInt(100000),
		})
		if err != nil {
			t.Fatalf("failed to seed user %s: %v", id, err)
		}
	}
}

// SeedPoorUser adds a user with a small wallet
func (env *testEnv) SeedPoorUser(t *testing.T, id string, wallet int64) {
	t.Helper()
	err := env.store.CreateUser(context.Background(), model.User{
		UserID:      id,
		Username:    id,
		Wallet:      decimal.NewFromInt(wallet),
		TotalBudget: decimal.NewFromInt(wallet),
	})
	if err != nil {
		t.Fatalf("failed to seed user %s: %v", id, err)
	}
}

// SeedLiveAuction adds a LIVE single-item auction priced at 100 with a 10
// increment.
func (env *testEnv) SeedLiveAuction(t *testing.T, id, creatorID string) {
	t.Helper()
	now := time.Now().UTC()
	err := env.store.CreateAuction(context.Background(), model.SingleItemAuction{
		AuctionCore: model.AuctionCore{
			AuctionID:     id,
			Status:        model.StatusLive,
			CreatorID:     creatorID,
			Currency:      "USD",
			StartingPrice: decimal.NewFromInt(100),
			MinIncrement:  decimal.NewFromInt(10),
			CurrentPrice:  decimal.NewFromInt(100),
			StartTime:     now.Add(-time.Minute),
			EndTime:       now.Add(time.Hour),
		},
		Title:       "seeded item",
		Description: "integration test auction",
	})
	if err != nil {
		t.Fatalf("failed to seed auction %s: %v", id, err)
	}
}

// ExecuteRequestAndParse executes an HTTP request on the router and parses
// the JSON response
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	var err error
	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}
	return resp, w
}

func responseData(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	data, ok := resp["data"].(map[string]any)
	if !ok {
		t.Fatalf("response has no data object: %v", resp)
	}
	return data
}
