package integrationtests

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"auction-engine/internal/realtime"
	"auction-engine/services/auction/helpers"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, server *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) realtime.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var env realtime.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestWebsocketJoinAndBid(t *testing.T) {
	env := SetupTestEnv(t)
	env.SeedUsers(t, "alice", "bob")
	env.SeedLiveAuction(t, "auction1", "seller")

	server := httptest.NewServer(env.router)
	defer server.Close()

	alice := dialWS(t, server, "alice")
	bob := dialWS(t, server, "bob")

	for _, conn := range []*websocket.Conn{alice, bob} {
		require.NoError(t, conn.WriteJSON(realtime.ClientMessage{Type: "join", AuctionID: "auction1"}))
		snap := readEnvelope(t, conn)
		require.Equal(t, "snapshot", snap.Type)
		require.Equal(t, "auction1", snap.AuctionID)
		require.Equal(t, "100", snap.Snapshot.CurrentPrice.String())
	}

	require.NoError(t, alice.WriteJSON(realtime.ClientMessage{
		Type: "bid", AuctionID: "auction1", Amount: "110",
	}))

	// the committed event is enqueued before the private result, so alice
	// sees the broadcast first
	committed := readEnvelope(t, alice)
	require.Equal(t, "bid_committed", committed.Type)
	require.Equal(t, uint64(1), committed.Seq)
	require.Equal(t, "110", committed.Snapshot.CurrentPrice.String())
	require.Equal(t, "alice", committed.Bid.UserID)

	result := readEnvelope(t, alice)
	require.Equal(t, "bid_result", result.Type)
	require.True(t, result.Result.Accepted)

	// the other subscriber sees the same committed event
	committed = readEnvelope(t, bob)
	require.Equal(t, "bid_committed", committed.Type)
	require.Equal(t, uint64(1), committed.Seq)
}

func TestWebsocketRejectedBidGetsPrivateResult(t *testing.T) {
	env := SetupTestEnv(t)
	env.SeedUsers(t, "alice")
	env.SeedLiveAuction(t, "auction1", "seller")

	server := httptest.NewServer(env.router)
	defer server.Close()

	alice := dialWS(t, server, "alice")
	require.NoError(t, alice.WriteJSON(realtime.ClientMessage{Type: "join", AuctionID: "auction1"}))
	readEnvelope(t, alice)

	require.NoError(t, alice.WriteJSON(realtime.ClientMessage{
		Type: "bid", AuctionID: "auction1", Amount: "105",
	}))

	result := readEnvelope(t, alice)
	require.Equal(t, "bid_result", result.Type)
	require.False(t, result.Result.Accepted)
	require.Equal(t, "BELOW_MINIMUM_INCREMENT", result.Result.Reason)
}

func TestWebsocketAuctionEndedReachesSubscribers(t *testing.T) {
	env := SetupTestEnv(t)
	env.SeedUsers(t, "alice")
	env.SeedLiveAuction(t, "auction1", "seller")

	server := httptest.NewServer(env.router)
	defer server.Close()

	alice := dialWS(t, server, "alice")
	require.NoError(t, alice.WriteJSON(realtime.ClientMessage{Type: "join", AuctionID: "auction1"}))
	readEnvelope(t, alice)

	_, w := ExecuteRequestAndParse(t, env.router, http.MethodPost, "/auctions/auction1/close",
		helpers.CloseAuctionRequest{RequesterID: "seller"})
	require.Equal(t, http.StatusOK, w.Code)

	ended := readEnvelope(t, alice)
	require.Equal(t, "auction_ended", ended.Type)
	require.Equal(t, "ENDED", string(ended.Snapshot.Status))
}

func TestWebsocketRequiresUserID(t *testing.T) {
	env := SetupTestEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
