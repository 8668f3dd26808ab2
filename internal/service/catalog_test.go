package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhzhou002/card-shop/internal/domain"
	"github.com/jhzhou002/card-shop/internal/service"
)

func TestCatalogLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 30*time.Minute)

	good, err := e.catalogSvc.CreateGood(ctx, service.CreateGoodInput{
		Name:  fmt.Sprintf("catalog-good-%d", seedSeq.Add(1)),
		Price: decimal.RequireFromString("12.50"),
	})
	require.NoError(t, err)

	// unlisted goods are not purchasable
	_, err = e.orderSvc.Create(ctx, service.CreateOrderInput{GoodID: good.ID, Quantity: 1})
	var notFoundErr *domain.NotFoundError
	require.ErrorAs(t, err, &notFoundErr)

	n, err := e.catalogSvc.ImportCards(ctx, good.ID, []string{" KEY-1 ", "KEY-2", "KEY-3"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	stock, err := e.catalogSvc.Stock(ctx, good.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stock)

	require.NoError(t, e.catalogSvc.SetListed(ctx, good.ID, true))
	order, err := e.orderSvc.Create(ctx, service.CreateOrderInput{GoodID: good.ID, Quantity: 1})
	require.NoError(t, err)

	// retiring expires the unused remainder but not the reserved card
	retired, err := e.catalogSvc.RetireStock(ctx, good.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), retired)

	stock, err = e.catalogSvc.Stock(ctx, good.ID)
	require.NoError(t, err)
	assert.Zero(t, stock)

	payAndReconcile(t, e, order)
	assert.Equal(t, domain.OrderPaid, orderStatus(t, e, order.OrderNo))

	var reserved, used, expired int
	require.NoError(t, testDB.QueryRow(`
		SELECT
			count(*) FILTER (WHERE status = 'reserved'),
			count(*) FILTER (WHERE status = 'used'),
			count(*) FILTER (WHERE status = 'expired')
		FROM cards WHERE good_id = $1`, good.ID).Scan(&reserved, &used, &expired))
	assert.Zero(t, reserved)
	assert.Equal(t, 1, used)
	assert.Equal(t, 2, expired)
}

func TestListGoodsStockCounts(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 30*time.Minute)

	stocked := seedGood(t, e, "2.00", 0, 3)
	empty := seedGood(t, e, "3.00", 0, 0)
	single := seedGood(t, e, "4.00", 0, 1)

	// a reserved card must not count as stock
	_, err := e.orderSvc.Create(ctx, service.CreateOrderInput{GoodID: stocked.ID, Quantity: 1})
	require.NoError(t, err)

	goods, err := e.catalogSvc.ListGoods(ctx)
	require.NoError(t, err)

	byID := make(map[int64]int, len(goods))
	for _, g := range goods {
		byID[g.Good.ID] = g.Stock
	}
	assert.Equal(t, 2, byID[stocked.ID])
	assert.Equal(t, 0, byID[empty.ID])
	assert.Equal(t, 1, byID[single.ID])
}

func TestImportCardsValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 30*time.Minute)
	good := seedGood(t, e, "1.00", 0, 0)

	var validationErr *domain.ValidationError
	_, err := e.catalogSvc.ImportCards(ctx, good.ID, nil)
	require.ErrorAs(t, err, &validationErr)

	_, err = e.catalogSvc.ImportCards(ctx, good.ID, []string{"KEY-1", "   "})
	require.ErrorAs(t, err, &validationErr)

	var notFoundErr *domain.NotFoundError
	_, err = e.catalogSvc.ImportCards(ctx, 999999, []string{"KEY-1"})
	require.ErrorAs(t, err, &notFoundErr)
}

func TestCreateGoodValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 30*time.Minute)

	var validationErr *domain.ValidationError
	_, err := e.catalogSvc.CreateGood(ctx, service.CreateGoodInput{
		Name: "  ", Price: decimal.RequireFromString("1.00"),
	})
	require.ErrorAs(t, err, &validationErr)

	_, err = e.catalogSvc.CreateGood(ctx, service.CreateGoodInput{
		Name: "free lunch", Price: decimal.Zero,
	})
	require.ErrorAs(t, err, &validationErr)
}
