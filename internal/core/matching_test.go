package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradeapp/exchange-core/internal/domain"
)

func TestMatch_ExactFill(t *testing.T) {
	e, repo := newTestEngine()
	seedSecurity(repo, "sec-1", "ACME", "10.00", 1000)
	seedAccount(repo, "seller", "0")
	seedAccount(repo, "buyer", "1000.00")

	sell := restingSell(t, e, repo, "seller", "sec-1", 50, "9.00")

	buy, trades, err := e.PlaceBuyOrder(context.Background(), "buyer", "ACME", 50, dec("9.00"))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(50), trades[0].Quantity)
	assert.True(t, trades[0].Price.Equal(dec("9.00")))
	assert.True(t, trades[0].BalanceSettled)
	assert.True(t, trades[0].HoldingsSettled)

	assert.Equal(t, domain.Filled, orderByID(t, repo, buy.ID).Status)
	assert.Equal(t, domain.Filled, orderByID(t, repo, sell.ID).Status)
	assert.Equal(t, int64(0), orderByID(t, repo, buy.ID).Remaining)

	assert.True(t, balanceOf(t, repo, "buyer").Equal(dec("550.00")))
	assert.True(t, balanceOf(t, repo, "seller").Equal(dec("450.00")))

	h, ok := repo.Holding("buyer", "sec-1")
	require.True(t, ok)
	assert.Equal(t, int64(50), h.Quantity)
	assert.True(t, h.AverageCost.Equal(dec("9.00")))

	// Seller's holding was consumed by the admission reservation.
	_, ok = repo.Holding("seller", "sec-1")
	assert.False(t, ok)
}

func TestMatch_PartialFillAgainstThinBook(t *testing.T) {
	e, repo := newTestEngine()
	seedSecurity(repo, "sec-1", "ACME", "10.00", 1000)
	seedAccount(repo, "seller", "0")
	seedAccount(repo, "buyer", "2000.00")

	sell := restingSell(t, e, repo, "seller", "sec-1", 100, "10.00")

	buy, trades, err := e.PlaceBuyOrder(context.Background(), "buyer", "ACME", 150, dec("12.00"))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(100), trades[0].Quantity)
	assert.True(t, trades[0].Price.Equal(dec("10.00")))

	assert.Equal(t, domain.Filled, orderByID(t, repo, sell.ID).Status)
	got := orderByID(t, repo, buy.ID)
	assert.Equal(t, domain.PartiallyFilled, got.Status)
	assert.Equal(t, int64(50), got.Remaining)
	assert.True(t, got.Price.Equal(dec("12.00")))

	// Reserved 150 × 12.00 = 1800; refunded (12 − 10) × 100 = 200.
	assert.True(t, balanceOf(t, repo, "buyer").Equal(dec("400.00")))
	assert.True(t, balanceOf(t, repo, "seller").Equal(dec("1000.00")))
}

func TestMatch_WalksMultipleCandidates(t *testing.T) {
	e, repo := newTestEngine()
	seedSecurity(repo, "sec-1", "ACME", "10.00", 1000)
	seedAccount(repo, "s1", "0")
	seedAccount(repo, "s2", "0")
	seedAccount(repo, "buyer", "500.00")

	sell1 := restingSell(t, e, repo, "s1", "sec-1", 30, "8.00")
	sell2 := restingSell(t, e, repo, "s2", "sec-1", 40, "9.00")

	buy, trades, err := e.PlaceBuyOrder(context.Background(), "buyer", "ACME", 50, dec("10.00"))
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, int64(30), trades[0].Quantity)
	assert.True(t, trades[0].Price.Equal(dec("8.00")))
	assert.Equal(t, int64(20), trades[1].Quantity)
	assert.True(t, trades[1].Price.Equal(dec("9.00")))

	assert.Equal(t, domain.Filled, orderByID(t, repo, sell1.ID).Status)
	got2 := orderByID(t, repo, sell2.ID)
	assert.Equal(t, domain.PartiallyFilled, got2.Status)
	assert.Equal(t, int64(20), got2.Remaining)
	assert.Equal(t, domain.Filled, orderByID(t, repo, buy.ID).Status)

	h, ok := repo.Holding("buyer", "sec-1")
	require.True(t, ok)
	assert.Equal(t, int64(50), h.Quantity)
}

func TestMatch_NonCrossingOrdersNeverTrade(t *testing.T) {
	e, repo := newTestEngine()
	seedSecurity(repo, "sec-1", "ACME", "10.00", 1000)
	seedAccount(repo, "seller", "0")
	seedAccount(repo, "buyer", "1000.00")

	sell := restingSell(t, e, repo, "seller", "sec-1", 10, "20.00")

	buy, trades, err := e.PlaceBuyOrder(context.Background(), "buyer", "ACME", 10, dec("15.00"))
	require.NoError(t, err)
	assert.Empty(t, trades)

	assert.Equal(t, domain.Pending, orderByID(t, repo, buy.ID).Status)
	assert.Equal(t, int64(10), orderByID(t, repo, buy.ID).Remaining)
	assert.Equal(t, domain.Pending, orderByID(t, repo, sell.ID).Status)
	assert.Equal(t, int64(10), orderByID(t, repo, sell.ID).Remaining)

	// The buyer's cost stays reserved while the order rests.
	assert.True(t, balanceOf(t, repo, "buyer").Equal(dec("850.00")))
}

func TestMatch_PricePriority(t *testing.T) {
	e, repo := newTestEngine()
	seedSecurity(repo, "sec-1", "ACME", "10.00", 1000)
	seedAccount(repo, "s1", "0")
	seedAccount(repo, "s2", "0")
	seedAccount(repo, "buyer", "1000.00")

	// Worse price placed first; the better ask must still fill first.
	worse := restingSell(t, e, repo, "s1", "sec-1", 10, "9.50")
	better := restingSell(t, e, repo, "s2", "sec-1", 10, "9.00")

	_, trades, err := e.PlaceBuyOrder(context.Background(), "buyer", "ACME", 10, dec("9.75"))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(dec("9.00")))
	assert.Equal(t, domain.Filled, orderByID(t, repo, better.ID).Status)
	assert.Equal(t, domain.Pending, orderByID(t, repo, worse.ID).Status)
}

func TestMatch_FIFOWithinPriceLevel(t *testing.T) {
	e, repo := newTestEngine()
	seedSecurity(repo, "sec-1", "ACME", "10.00", 1000)
	seedAccount(repo, "s1", "0")
	seedAccount(repo, "s2", "0")
	seedAccount(repo, "buyer", "1000.00")

	first := restingSell(t, e, repo, "s1", "sec-1", 10, "9.00")
	time.Sleep(2 * time.Millisecond)
	second := restingSell(t, e, repo, "s2", "sec-1", 10, "9.00")

	_, trades, err := e.PlaceBuyOrder(context.Background(), "buyer", "ACME", 10, dec("9.00"))
	require.NoError(t, err)
	require.Len(t, trades, 1)

	assert.Equal(t, domain.Filled, orderByID(t, repo, first.ID).Status)
	assert.Equal(t, domain.Pending, orderByID(t, repo, second.ID).Status)
	assert.Equal(t, "s1", trades[0].SellerID)
}

// Pins the maker-price rule in both directions: the fill always executes
// at the resting order's limit, whichever side is aggressive.
func TestMatch_MakerPriceBothDirections(t *testing.T) {
	t.Run("aggressive buy against resting sell", func(t *testing.T) {
		e, repo := newTestEngine()
		seedSecurity(repo, "sec-1", "ACME", "10.00", 1000)
		seedAccount(repo, "seller", "0")
		seedAccount(repo, "buyer", "1000.00")

		restingSell(t, e, repo, "seller", "sec-1", 10, "9.00")
		_, trades, err := e.PlaceBuyOrder(context.Background(), "buyer", "ACME", 10, dec("11.00"))
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.True(t, trades[0].Price.Equal(dec("9.00")))

		// Buyer pays exactly 10 × 9.00 once the surplus refund lands.
		assert.True(t, balanceOf(t, repo, "buyer").Equal(dec("910.00")))
	})

	t.Run("aggressive sell against resting buy", func(t *testing.T) {
		e, repo := newTestEngine()
		seedSecurity(repo, "sec-1", "ACME", "10.00", 1000)
		seedAccount(repo, "seller", "0")
		seedAccount(repo, "buyer", "1000.00")

		buy, trades, err := e.PlaceBuyOrder(context.Background(), "buyer", "ACME", 10, dec("11.00"))
		require.NoError(t, err)
		require.Empty(t, trades)

		seedHolding(repo, "seller", "sec-1", 10, "9.00")
		_, trades, err = e.PlaceSellOrder(context.Background(), "seller", "ACME", 10, dec("9.00"))
		require.NoError(t, err)
		require.Len(t, trades, 1)
		assert.True(t, trades[0].Price.Equal(dec("11.00")))

		assert.Equal(t, domain.Filled, orderByID(t, repo, buy.ID).Status)
		assert.True(t, balanceOf(t, repo, "seller").Equal(dec("110.00")))
		// Resting buyer reserved at its own limit; no refund due.
		assert.True(t, balanceOf(t, repo, "buyer").Equal(dec("890.00")))
	})
}

func TestMatch_SecurityStateAfterTrade(t *testing.T) {
	e, repo := newTestEngine()
	seedSecurity(repo, "sec-1", "ACME", "10.00", 1000)
	seedAccount(repo, "seller", "0")
	seedAccount(repo, "buyer", "1000.00")

	restingSell(t, e, repo, "seller", "sec-1", 50, "9.00")
	_, _, err := e.PlaceBuyOrder(context.Background(), "buyer", "ACME", 50, dec("9.00"))
	require.NoError(t, err)

	sec, err := repo.SecurityBySymbol(context.Background(), "ACME")
	require.NoError(t, err)
	assert.True(t, sec.CurrentPrice.Equal(dec("9.00")))
	assert.True(t, sec.HighPrice.Equal(dec("10.00")))
	assert.True(t, sec.LowPrice.Equal(dec("9.00")))
	assert.Equal(t, int64(50), sec.TradedVolume)
	assert.True(t, sec.MarketCap.Equal(dec("9000.00")), "market cap = current price × total shares")
}

func TestMatch_AverageCostNotReaveraged(t *testing.T) {
	e, repo := newTestEngine()
	seedSecurity(repo, "sec-1", "ACME", "10.00", 1000)
	seedAccount(repo, "seller", "0")
	seedAccount(repo, "buyer", "1000.00")

	restingSell(t, e, repo, "seller", "sec-1", 10, "8.00")
	_, _, err := e.PlaceBuyOrder(context.Background(), "buyer", "ACME", 10, dec("8.00"))
	require.NoError(t, err)

	restingSell(t, e, repo, "seller", "sec-1", 10, "12.00")
	_, _, err = e.PlaceBuyOrder(context.Background(), "buyer", "ACME", 10, dec("12.00"))
	require.NoError(t, err)

	h, ok := repo.Holding("buyer", "sec-1")
	require.True(t, ok)
	assert.Equal(t, int64(20), h.Quantity)
	// Average cost keeps the first acquisition's price.
	assert.True(t, h.AverageCost.Equal(dec("8.00")))
}
