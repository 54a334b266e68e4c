package integrationtests

import (
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"auction-engine/services/auction/helpers"

	"github.com/stretchr/testify/require"
)

func TestAuctionLifecycleOverHTTP(t *testing.T) {
	env := SetupTestEnv(t)
	env.SeedUsers(t, "alice", "bob")

	now := time.Now().UTC()
	resp, w := ExecuteRequestAndParse(t, env.router, http.MethodPost, "/auctions",
		helpers.CreateAuctionRequest{
			Type:          "SINGLE_ITEM",
			CreatorID:     "carol",
			Title:         "vintage vase",
			StartingPrice: "100",
			MinIncrement:  "10",
			StartTime:     now.Add(time.Minute),
			EndTime:       now.Add(time.Hour),
		})
	require.Equal(t, http.StatusCreated, w.Code)
	auctionID := responseData(t, resp)["auction_id"].(string)
	require.NotEmpty(t, auctionID)

	// bidding before activation is rejected with a reason
	resp, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/auctions/"+auctionID+"/bids",
		helpers.PlaceBidRequest{UserID: "alice", Amount: "110"})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "AUCTION_NOT_LIVE", responseData(t, resp)["reason"])

	_, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/auctions/"+auctionID+"/activate", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/auctions/"+auctionID+"/bids",
		helpers.PlaceBidRequest{UserID: "alice", Amount: "110"})
	require.Equal(t, http.StatusCreated, w.Code)
	data := responseData(t, resp)
	require.Equal(t, true, data["accepted"])
	require.Equal(t, "110", data["current_price"])

	// a lower follow-up is rejected
	resp, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/auctions/"+auctionID+"/bids",
		helpers.PlaceBidRequest{UserID: "bob", Amount: "115"})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "BELOW_MINIMUM_INCREMENT", responseData(t, resp)["reason"])

	resp, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/auctions/"+auctionID+"/bids",
		helpers.PlaceBidRequest{UserID: "bob", Amount: "125"})
	require.Equal(t, http.StatusCreated, w.Code)

	// only the creator may close early
	_, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/auctions/"+auctionID+"/close",
		helpers.CloseAuctionRequest{RequesterID: "alice"})
	require.Equal(t, http.StatusForbidden, w.Code)

	resp, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/auctions/"+auctionID+"/close",
		helpers.CloseAuctionRequest{RequesterID: "carol"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ENDED", responseData(t, resp)["status"])

	// the winning bid survives the close
	resp, w = ExecuteRequestAndParse(t, env.router, http.MethodGet, "/auctions/"+auctionID+"/winning", nil)
	require.Equal(t, http.StatusOK, w.Code)
	winning := responseData(t, resp)
	require.Equal(t, "bob", winning["user_id"])
	require.Equal(t, "125", winning["amount"])

	// and late bids see the expiry
	resp, w = ExecuteRequestAndParse(t, env.router, http.MethodPost, "/auctions/"+auctionID+"/bids",
		helpers.PlaceBidRequest{UserID: "alice", Amount: "200"})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "AUCTION_EXPIRED", responseData(t, resp)["reason"])
}

func TestPlaceBidValidationOverHTTP(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		amount     string
		wantStatus int
		wantReason string
	}{
		{"accepted", "alice", "110", http.StatusCreated, ""},
		{"below_increment", "alice", "105", http.StatusConflict, "BELOW_MINIMUM_INCREMENT"},
		{"self_bid", "seller", "120", http.StatusConflict, "SELF_BID"},
		{"insufficient_funds", "pauper", "150", http.StatusConflict, "INSUFFICIENT_FUNDS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := SetupTestEnv(t)
			env.SeedUsers(t, "alice", "seller")
			env.SeedLiveAuction(t, "auction1", "seller")

			if tt.userID == "pauper" {
				env.SeedPoorUser(t, "pauper", 120)
			}

			resp, w := ExecuteRequestAndParse(t, env.router, http.MethodPost, "/auctions/auction1/bids",
				helpers.PlaceBidRequest{UserID: tt.userID, Amount: tt.amount})
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantReason != "" {
				require.Equal(t, tt.wantReason, responseData(t, resp)["reason"])
			}
		})
	}
}

func TestUnknownAuctionOverHTTP(t *testing.T) {
	env := SetupTestEnv(t)
	env.SeedUsers(t, "alice")

	resp, w := ExecuteRequestAndParse(t, env.router, http.MethodPost, "/auctions/ghost/bids",
		helpers.PlaceBidRequest{UserID: "alice", Amount: "110"})
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "UNKNOWN_AUCTION", responseData(t, resp)["reason"])

	_, w = ExecuteRequestAndParse(t, env.router, http.MethodGet, "/auctions/ghost", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestConcurrentBidsOverHTTP(t *testing.T) {
	env := SetupTestEnv(t)
	env.SeedLiveAuction(t, "auction1", "seller")

	const bidders = 8
	users := make([]string, bidders)
	for i := range users {
		users[i] = "user" + string(rune('a'+i))
	}
	env.SeedUsers(t, users...)

	codes := make([]int, bidders)
	var wg sync.WaitGroup
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			amount := 110 + n*10
			_, w := ExecuteRequestAndParse(t, env.router, http.MethodPost, "/auctions/auction1/bids",
				helpers.PlaceBidRequest{UserID: users[n], Amount: strconv.Itoa(amount)})
			codes[n] = w.Code
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, code := range codes {
		switch code {
		case http.StatusCreated:
			accepted++
		case http.StatusConflict:
		default:
			t.Fatalf("unexpected status %d", code)
		}
	}
	require.GreaterOrEqual(t, accepted, 1)

	// the highest submitted amount always wins
	resp, w := ExecuteRequestAndParse(t, env.router, http.MethodGet, "/auctions/auction1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "180", responseData(t, resp)["current_price"])
}
