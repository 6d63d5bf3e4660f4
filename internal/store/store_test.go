package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"leftuber-api/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore connects to TEST_DATABASE_URL and applies the schema.
// Integration tests are skipped when it is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Integration test - set TEST_DATABASE_URL")
	}

	s, err := NewStore(url)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedUser(t *testing.T, s *Store, role models.Role) *models.User {
	t.Helper()
	u := &models.User{
		ID:    uuid.NewString(),
		Phone: "+20" + uuid.NewString()[:10],
		Name:  "tester",
		Role:  role,
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func seedProduct(t *testing.T, s *Store, merchantID string, quantity int) *models.Product {
	t.Helper()
	p := &models.Product{
		ID:         uuid.NewString(),
		MerchantID: merchantID,
		Title:      "Cinnamon rolls 100%_fresh",
		Image:      models.DefaultImage,
		OfferPrice: decimal.NewFromInt(100),
		Quantity:   quantity,
		Category:   models.DefaultCategory,
		PickupTime: models.DefaultPickupTime,
	}
	require.NoError(t, s.CreateProduct(context.Background(), p))
	return p
}

func newOrder(buyer *models.User, p *models.Product) *models.Order {
	return &models.Order{
		ID:           uuid.NewString(),
		BuyerID:      buyer.ID,
		MerchantID:   p.MerchantID,
		ProductID:    p.ID,
		ProductTitle: p.Title,
		ProductImage: p.Image,
		DeliveryType: models.DeliveryPickup,
		Subtotal:     p.OfferPrice,
		DeliveryFee:  decimal.NewFromInt(30),
		Total:        p.OfferPrice.Add(decimal.NewFromInt(30)),
		Status:       models.StatusPending,
	}
}

func TestPlaceOrderDecrementsStock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	merchant := seedUser(t, s, models.RoleMerchant)
	buyer := seedUser(t, s, models.RoleBuyer)
	p := seedProduct(t, s, merchant.ID, 1)

	order := newOrder(buyer, p)
	updated, err := s.PlaceOrder(ctx, order)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.Quantity)
	assert.Equal(t, 1, updated.SalesCount)

	got, err := s.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(130).Equal(got.Total))
	assert.Equal(t, p.Title, got.Product.Title)
	assert.Equal(t, merchant.Name, got.Merchant.Name)

	_, err = s.PlaceOrder(ctx, newOrder(buyer, p))
	assert.True(t, errors.Is(err, models.ErrOutOfStock))

	orders, err := s.ListOrders(ctx, models.OrderFilter{BuyerID: buyer.ID})
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestConcurrentPlaceOrderNeverOversells(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	merchant := seedUser(t, s, models.RoleMerchant)
	buyer := seedUser(t, s, models.RoleBuyer)
	p := seedProduct(t, s, merchant.ID, 3)

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.PlaceOrder(ctx, newOrder(buyer, p))
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, models.ErrOutOfStock), "unexpected error: %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, successes)
	got, err := s.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Quantity)
	assert.Equal(t, 3, got.SalesCount)
}

func TestIdempotencyKeyIsUniquePerBuyer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	merchant := seedUser(t, s, models.RoleMerchant)
	buyer := seedUser(t, s, models.RoleBuyer)
	p := seedProduct(t, s, merchant.ID, 5)
	key := "key-" + uuid.NewString()

	first := newOrder(buyer, p)
	first.IdempotencyKey = &key
	_, err := s.PlaceOrder(ctx, first)
	require.NoError(t, err)

	second := newOrder(buyer, p)
	second.IdempotencyKey = &key
	_, err = s.PlaceOrder(ctx, second)
	assert.True(t, errors.Is(err, models.ErrConflict))

	found, err := s.GetOrderByIdempotencyKey(ctx, buyer.ID, key)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)

	got, err := s.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Quantity, "rolled back insert must not take stock")
}

func TestUpdateOrderStatusRestocksOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	merchant := seedUser(t, s, models.RoleMerchant)
	buyer := seedUser(t, s, models.RoleBuyer)
	p := seedProduct(t, s, merchant.ID, 1)

	order := newOrder(buyer, p)
	_, err := s.PlaceOrder(ctx, order)
	require.NoError(t, err)

	restocked, err := s.UpdateOrderStatus(ctx, order, models.StatusCancelled)
	require.NoError(t, err)
	assert.True(t, restocked)

	// order still carries the stale PENDING status
	_, err = s.UpdateOrderStatus(ctx, order, models.StatusCancelled)
	assert.True(t, errors.Is(err, models.ErrConflict))

	got, err := s.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Quantity)
	assert.Equal(t, 0, got.SalesCount)
}

func TestRestoreOnCancelClampsSales(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	merchant := seedUser(t, s, models.RoleMerchant)
	p := seedProduct(t, s, merchant.ID, 0)

	require.NoError(t, s.RestoreOnCancel(ctx, p.ID))
	got, err := s.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Quantity)
	assert.Equal(t, 0, got.SalesCount)

	err = s.RestoreOnCancel(ctx, uuid.NewString())
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestDecrementOnSaleFlags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	merchant := seedUser(t, s, models.RoleMerchant)
	p := seedProduct(t, s, merchant.ID, 30)

	var last *models.Product
	var err error
	for i := 0; i < 26; i++ {
		last, err = s.DecrementOnSale(ctx, p.ID)
		require.NoError(t, err)
		hot, best := models.PopularityFlags(last.SalesCount)
		assert.Equal(t, hot, last.Hot, "sales %d", last.SalesCount)
		assert.Equal(t, best, last.BestSeller, "sales %d", last.SalesCount)
	}
	assert.True(t, last.BestSeller)
}

func TestListAvailableSearchIsLiteral(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	merchant := seedUser(t, s, models.RoleMerchant)
	p := seedProduct(t, s, merchant.ID, 2)
	seedProduct(t, s, merchant.ID, 0)

	found, err := s.ListAvailableProducts(ctx, models.ProductFilter{MerchantID: merchant.ID, Search: "100%_FRESH"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, p.ID, found[0].ID)

	none, err := s.ListAvailableProducts(ctx, models.ProductFilter{MerchantID: merchant.ID, Search: "100%x"})
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := s.ListProductsByMerchant(ctx, merchant.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUpdateProductLeavesUnsetFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	merchant := seedUser(t, s, models.RoleMerchant)
	p := seedProduct(t, s, merchant.ID, 2)

	updated, err := s.UpdateProduct(ctx, p.ID, models.ProductPatch{Quantity: models.SetTo(7)})
	require.NoError(t, err)
	assert.Equal(t, 7, updated.Quantity)
	assert.Equal(t, p.Title, updated.Title)
	assert.True(t, p.OfferPrice.Equal(updated.OfferPrice))

	_, err = s.UpdateProduct(ctx, uuid.NewString(), models.ProductPatch{Quantity: models.SetTo(1)})
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestConsumeOTPOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	phone := "+20" + uuid.NewString()[:10]
	now := time.Now()

	otp := &models.OtpCode{ID: uuid.NewString(), Phone: phone, Code: "0420", ExpiresAt: now.Add(5 * time.Minute)}
	require.NoError(t, s.CreateOTP(ctx, otp))

	_, err := s.ConsumeOTP(ctx, phone, "9999", now)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	var wg sync.WaitGroup
	var mu sync.Mutex
	consumed := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ConsumeOTP(ctx, phone, "0420", now); err == nil {
				mu.Lock()
				consumed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, consumed)

	expired := &models.OtpCode{ID: uuid.NewString(), Phone: phone, Code: "1111", ExpiresAt: now.Add(-time.Second)}
	require.NoError(t, s.CreateOTP(ctx, expired))
	_, err = s.ConsumeOTP(ctx, phone, "1111", now)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	n, err := s.DeleteStaleOTPs(ctx, now)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(2))
}

func TestUserLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, models.RoleBuyer)

	dup := &models.User{ID: uuid.NewString(), Phone: u.Phone, Name: "x", Role: models.RoleBuyer}
	assert.True(t, errors.Is(s.CreateUser(ctx, dup), models.ErrConflict))

	updated, err := s.UpdateUser(ctx, u.ID, models.UserPatch{
		Role:             models.SetTo(models.RoleMerchant),
		ProfileCompleted: models.SetTo(true),
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleMerchant, updated.Role)
	assert.Equal(t, u.Name, updated.Name)

	byPhone, err := s.GetUserByPhone(ctx, u.Phone)
	require.NoError(t, err)
	assert.True(t, byPhone.ProfileCompleted)

	stats, err := s.MerchantStats(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.OrderCount)
	assert.True(t, stats.TotalSales.IsZero())
}

func TestProcessedEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := uuid.NewString()

	done, err := s.IsEventProcessed(ctx, id)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, s.MarkEventProcessed(ctx, id, models.EventTypeOTPRequested))
	require.NoError(t, s.MarkEventProcessed(ctx, id, models.EventTypeOTPRequested))

	done, err = s.IsEventProcessed(ctx, id)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\% off\_now \\ later`, escapeLike(`50% off_now \ later`))
}

func TestSetBuilder(t *testing.T) {
	var b setBuilder
	assert.True(t, b.empty())

	b.add("title", "Bagels")
	b.add("quantity", 3)
	query, args := b.build("products", "p-1")

	assert.Equal(t, "UPDATE products SET title = $1, quantity = $2, updated_at = NOW() WHERE id = $3 RETURNING *", query)
	assert.Equal(t, []interface{}{"Bagels", 3, "p-1"}, args)
}
