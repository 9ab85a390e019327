package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	auction "bidflow/internal/auctionService"
	bidding "bidflow/internal/biddingService"
	"bidflow/internal/middleware"
	model "bidflow/internal/models"
	order "bidflow/internal/orderService"
	"bidflow/internal/realtime"
	"bidflow/internal/repository"
	"bidflow/internal/server"
	"bidflow/internal/sweeper"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const testSecret = "integration-secret"

// manualClock only moves when the test says so
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

type testEnv struct {
	router   *gin.Engine
	clock    *manualClock
	sweeper  *sweeper.Sweeper
	repo     *repository.MemoryRepo
	resolver *middleware.JWTResolver
}

// SetupTestEnv wires the full stack on an in-memory repository.
func SetupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	repo := repository.NewMemoryRepo()
	publisher := realtime.Multi{}

	auctionSvc := auction.NewAuctionService(repo, clk, publisher)
	biddingSvc := bidding.NewBiddingService(repo, clk, publisher)
	orderSvc := order.NewOrderService(repo, clk, publisher)
	resolver := middleware.NewJWTResolver(testSecret)

	router := server.SetupRouter(server.Dependencies{
		Bidding:  biddingSvc,
		Auctions: auctionSvc,
		Orders:   orderSvc,
		Resolver: resolver,
	})

	return &testEnv{
		router:   router,
		clock:    clk,
		sweeper:  sweeper.New(auctionSvc, orderSvc, publisher, clk, time.Minute, 4, time.Second),
		repo:     repo,
		resolver: resolver,
	}
}

// Token issues a bearer token for a user with the given role.
func (e *testEnv) Token(t *testing.T, userID string, role model.Role) string {
	t.Helper()
	token, err := e.resolver.Issue(model.User{UserID: userID, Username: userID, Role: role}, time.Hour)
	require.NoError(t, err)
	return token
}

// Sweep runs one sweep at the current test time.
func (e *testEnv) Sweep(t *testing.T) []model.Event {
	t.Helper()
	events, err := e.sweeper.RunTick(context.Background(), e.clock.Now())
	require.NoError(t, err)
	return events
}

// ExecuteRequestAndParse executes an HTTP request on the router and parses the response envelope
func (e *testEnv) ExecuteRequestAndParse(t *testing.T, method, url, token string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	default:
		var err error
		reqBody, err = json.Marshal(v)
		require.NoError(t, err, "failed to marshal body")
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	e.router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "failed to unmarshal response")
	}
	return resp, w
}

// data returns the "data" object of a successful response
func data(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	d, ok := resp["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", resp)
	return d
}
