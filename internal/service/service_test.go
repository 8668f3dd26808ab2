package service_test

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/jhzhou002/card-shop/internal/database"
	"github.com/jhzhou002/card-shop/internal/domain"
	"github.com/jhzhou002/card-shop/internal/gateway"
	"github.com/jhzhou002/card-shop/internal/repo"
	"github.com/jhzhou002/card-shop/internal/service"
)

var testDB *sql.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgc, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("cardshop_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Fatalf("start postgres container: %v", err)
	}

	dsn, err := pgc.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("connection string: %v", err)
	}
	testDB, err = database.NewPostgres(dsn)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	if err := database.Migrate(ctx, testDB); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	if err := seedMethods(ctx); err != nil {
		log.Fatalf("seed methods: %v", err)
	}

	code := m.Run()

	testDB.Close()
	if err := testcontainers.TerminateContainer(pgc); err != nil {
		log.Printf("terminate container: %v", err)
	}
	os.Exit(code)
}

func seedMethods(ctx context.Context) error {
	methods := repo.NewMethodRepo(testDB)
	for _, m := range []domain.PaymentMethod{
		{Code: "mock", Name: "Mock", Provider: "mock",
			MinAmount: decimal.RequireFromString("0.01"), Active: true},
		{Code: "balance", Name: "Account Balance", Provider: "balance",
			MinAmount: decimal.RequireFromString("0.01"), Active: true},
		{Code: "capped", Name: "Capped", Provider: "mock",
			MinAmount: decimal.RequireFromString("5.00"),
			MaxAmount: decimal.RequireFromString("10.00"), Active: true},
		{Code: "disabled", Name: "Disabled", Provider: "mock", Active: false},
	} {
		m := m
		if err := methods.Upsert(ctx, &m); err != nil {
			return err
		}
	}
	return nil
}

type env struct {
	goods    repo.GoodRepo
	cards    repo.CardRepo
	orders   repo.OrderRepo
	payments repo.PaymentRepo
	methods  repo.MethodRepo
	balances repo.BalanceRepo

	catalogSvc   service.CatalogService
	orderSvc     service.OrderService
	paymentSvc   service.PaymentService
	reconcileSvc service.ReconcileService
	balanceSvc   service.BalanceService
	providers    *gateway.Registry
}

func newEnv(t *testing.T, paymentExpiry time.Duration) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	e := &env{
		goods:    repo.NewGoodRepo(testDB),
		cards:    repo.NewCardRepo(testDB),
		orders:   repo.NewOrderRepo(testDB),
		payments: repo.NewPaymentRepo(testDB),
		methods:  repo.NewMethodRepo(testDB),
		balances: repo.NewBalanceRepo(testDB),
	}
	e.providers = gateway.NewRegistry(gateway.NewMockProvider())
	e.catalogSvc = service.NewCatalogService(e.goods, e.cards, logger)
	e.orderSvc = service.NewOrderService(testDB, e.goods, e.cards, e.orders, e.payments, e.balances, logger)
	e.paymentSvc = service.NewPaymentService(testDB, e.orders, e.payments, e.methods, e.cards, e.balances, e.providers, paymentExpiry, logger)
	e.reconcileSvc = service.NewReconcileService(testDB, e.orders, e.payments, e.methods, e.cards, logger)
	e.balanceSvc = service.NewBalanceService(testDB, e.balances, logger)
	return e
}

var seedSeq atomic.Int64

func seedGood(t *testing.T, e *env, price string, buyLimit, cardCount int) *domain.Good {
	t.Helper()
	n := seedSeq.Add(1)
	good := &domain.Good{
		Name:     fmt.Sprintf("good-%d", n),
		Price:    decimal.RequireFromString(price),
		BuyLimit: buyLimit,
		Status:   domain.GoodListed,
	}
	require.NoError(t, e.goods.Create(context.Background(), good))

	secrets := make([]string, 0, cardCount)
	for i := 0; i < cardCount; i++ {
		secrets = append(secrets, fmt.Sprintf("SECRET-%d-%d", n, i))
	}
	if len(secrets) > 0 {
		require.NoError(t, e.cards.BulkInsert(context.Background(), good.ID, secrets))
	}
	return good
}

func seedUser(t *testing.T, e *env, balance string) *domain.User {
	t.Helper()
	user := &domain.User{
		Email:   fmt.Sprintf("user-%d@example.com", seedSeq.Add(1)),
		Balance: decimal.RequireFromString(balance),
	}
	require.NoError(t, e.balances.CreateUser(context.Background(), user))
	return user
}

func cardState(t *testing.T, cardID int64) (string, sql.NullInt64) {
	t.Helper()
	var (
		status  string
		orderID sql.NullInt64
	)
	require.NoError(t, testDB.QueryRow(
		`SELECT status, order_id FROM cards WHERE id = $1`, cardID,
	).Scan(&status, &orderID))
	return status, orderID
}

func cardIDsFor(t *testing.T, goodID int64) []int64 {
	t.Helper()
	rows, err := testDB.Query(`SELECT id FROM cards WHERE good_id = $1 ORDER BY id`, goodID)
	require.NoError(t, err)
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	return ids
}

func TestCreateOrderFreezesPrice(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 30*time.Minute)
	good := seedGood(t, e, "9.99", 0, 2)

	order, err := e.orderSvc.Create(ctx, service.CreateOrderInput{GoodID: good.ID, Quantity: 2})
	require.NoError(t, err)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("19.98")),
		"total is %s", order.TotalAmount)

	// a later price edit must not reach the order
	_, err = testDB.Exec(`UPDATE goods SET price = 12.34 WHERE id = $1`, good.ID)
	require.NoError(t, err)

	fresh, err := e.orders.FindByNo(ctx, order.OrderNo)
	require.NoError(t, err)
	assert.True(t, fresh.TotalAmount.Equal(decimal.RequireFromString("19.98")))
	assert.True(t, fresh.GoodPrice.Equal(decimal.RequireFromString("9.99")))

	// paying the new price is a mismatch; the error must not echo the total
	_, err = e.paymentSvc.CreatePayment(ctx, service.CreatePaymentInput{
		OrderNo: order.OrderNo, Method: "mock",
		Amount: decimal.RequireFromString("24.68"),
	})
	var conflictErr *domain.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, domain.ReasonAmountMismatch, conflictErr.Reason)
	assert.NotContains(t, conflictErr.Message, "19.98")
}

func TestCreateOrderValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 30*time.Minute)
	good := seedGood(t, e, "5.00", 3, 10)

	var validationErr *domain.ValidationError

	_, err := e.orderSvc.Create(ctx, service.CreateOrderInput{GoodID: good.ID, Quantity: 0})
	require.ErrorAs(t, err, &validationErr)

	_, err = e.orderSvc.Create(ctx, service.CreateOrderInput{GoodID: good.ID, Quantity: 101})
	require.ErrorAs(t, err, &validationErr)

	// buy_limit 3
	_, err = e.orderSvc.Create(ctx, service.CreateOrderInput{GoodID: good.ID, Quantity: 4})
	require.ErrorAs(t, err, &validationErr)

	var notFoundErr *domain.NotFoundError
	_, err = e.orderSvc.Create(ctx, service.CreateOrderInput{GoodID: 999999, Quantity: 1})
	require.ErrorAs(t, err, &notFoundErr)

	// unlisted goods are invisible to buyers
	_, err = testDB.Exec(`UPDATE goods SET status = 0 WHERE id = $1`, good.ID)
	require.NoError(t, err)
	_, err = e.orderSvc.Create(ctx, service.CreateOrderInput{GoodID: good.ID, Quantity: 1})
	require.ErrorAs(t, err, &notFoundErr)
}

func TestInsufficientStockRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 30*time.Minute)
	good := seedGood(t, e, "3.00", 0, 1)

	_, err := e.orderSvc.Create(ctx, service.CreateOrderInput{GoodID: good.ID, Quantity: 2})
	var conflictErr *domain.ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, domain.ReasonInsufficientStock, conflictErr.Reason)
	assert.Equal(t, 1, conflictErr.Available)

	// no order row and no lingering reservation survive
	var orderCount int
	require.NoError(t, testDB.QueryRow(
		`SELECT count(*) FROM orders WHERE good_id = $1`, good.ID).Scan(&orderCount))
	assert.Zero(t, orderCount)

	status, orderID := cardState(t, cardIDsFor(t, good.ID)[0])
	assert.Equal(t, "unused", status)
	assert.False(t, orderID.Valid)
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 30*time.Minute)
	good := seedGood(t, e, "2.50", 0, 2)

	// two buyers race for the same two cards
	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.orderSvc.Create(ctx, service.CreateOrderInput{GoodID: good.ID, Quantity: 2})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		var conflictErr *domain.ConflictError
		require.ErrorAs(t, err, &conflictErr)
		assert.Equal(t, domain.ReasonInsufficientStock, conflictErr.Reason)
	}
	// Both buyers racing for the same two cards can split them and both back
	// off, but they must never both walk away with an order.
	assert.LessOrEqual(t, successes, 1)

	var reserved int
	require.NoError(t, testDB.QueryRow(
		`SELECT count(*) FROM cards WHERE good_id = $1 AND status = 'reserved'`,
		good.ID).Scan(&reserved))
	assert.Equal(t, 2*successes, reserved, "failed attempts must leave no reservation behind")
}

func TestManyConcurrentSingles(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 30*time.Minute)
	good := seedGood(t, e, "1.00", 0, 5)

	const buyers = 10
	results := make(chan error, buyers)
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.orderSvc.Create(ctx, service.CreateOrderInput{GoodID: good.ID, Quantity: 1})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		if err == nil {
			successes++
		}
	}
	// at most U concurrent reservations may succeed for U unused cards
	assert.Equal(t, 5, successes)

	var reserved int
	require.NoError(t, testDB.QueryRow(
		`SELECT count(*) FROM cards WHERE good_id = $1 AND status = 'reserved'`,
		good.ID).Scan(&reserved))
	assert.Equal(t, 5, reserved)
}

func TestCancelReleasesCards(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 30*time.Minute)
	good := seedGood(t, e, "4.00", 0, 1)

	first, err := e.orderSvc.Create(ctx, service.CreateOrderInput{GoodID: good.ID, Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, e.orderSvc.Cancel(ctx, first.OrderNo, service.Viewer{}))

	cardID := cardIDsFor(t, good.ID)[0]
	status, orderID := cardState(t, cardID)
	assert.Equal(t, "unused", status)
	assert.False(t, orderID.Valid)

	// the released card is reservable by a different order
	second, err := e.orderSvc.Create(ctx, service.CreateOrderInput{GoodID: good.ID, Quantity: 1})
	require.NoError(t, err)

	status, orderID = cardState(t, cardID)
	assert.Equal(t, "reserved", status)
	require.True(t, orderID.Valid)
	assert.Equal(t, second.ID, orderID.Int64)

	// cancelling twice is a conflict, not corruption
	err = e.orderSvc.Cancel(ctx, first.OrderNo, service.Viewer{})
	var conflictErr *domain.ConflictError
	require.ErrorAs(t, err, &conflictErr)
}

func TestCancelRequiresOwner(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 30*time.Minute)
	good := seedGood(t, e, "4.00", 0, 1)
	user := seedUser(t, e, "0.00")

	order, err := e.orderSvc.Create(ctx, service.CreateOrderInput{
		GoodID: good.ID, Quantity: 1, UserID: &user.ID,
	})
	require.NoError(t, err)

	var permissionErr *domain.PermissionError

	// holding the order number is not enough for someone else's order
	err = e.orderSvc.Cancel(ctx, order.OrderNo, service.Viewer{})
	require.ErrorAs(t, err, &permissionErr)

	strangerID := user.ID + 12345
	err = e.orderSvc.Cancel(ctx, order.OrderNo, service.Viewer{UserID: &strangerID})
	require.ErrorAs(t, err, &permissionErr)

	// the denied attempts changed nothing
	assert.Equal(t, domain.OrderPending, orderStatus(t, e, order.OrderNo))
	status, _ := cardState(t, cardIDsFor(t, good.ID)[0])
	assert.Equal(t, "reserved", status)

	require.NoError(t, e.orderSvc.Cancel(ctx, order.OrderNo, service.Viewer{UserID: &user.ID}))
	assert.Equal(t, domain.OrderCancelled, orderStatus(t, e, order.OrderNo))
}

func TestCancelAsAdmin(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 30*time.Minute)
	good := seedGood(t, e, "4.00", 0, 1)
	user := seedUser(t, e, "0.00")

	order, err := e.orderSvc.Create(ctx, service.CreateOrderInput{
		GoodID: good.ID, Quantity: 1, UserID: &user.ID,
	})
	require.NoError(t, err)

	require.NoError(t, e.orderSvc.Cancel(ctx, order.OrderNo, service.Viewer{Admin: true}))
	assert.Equal(t, domain.OrderCancelled, orderStatus(t, e, order.OrderNo))
}

func TestGuestOrderVisibility(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 30*time.Minute)
	good := seedGood(t, e, "7.00", 0, 1)

	order, err := e.orderSvc.Create(ctx, service.CreateOrderInput{GoodID: good.ID, Quantity: 1})
	require.NoError(t, err)

	// pre-payment visibility must never leak secrets, even to the holder of
	// the order number
	view, err := e.orderSvc.GetDetail(ctx, order.OrderNo, service.Viewer{})
	require.NoError(t, err)
	assert.Nil(t, view.Secrets)

	payAndReconcile(t, e, order)

	view, err = e.orderSvc.GetDetail(ctx, order.OrderNo, service.Viewer{})
	require.NoError(t, err)
	require.Len(t, view.Secrets, 1)

	// a logged-in stranger gets the public shape only
	strangerID := int64(987654)
	view, err = e.orderSvc.GetDetail(ctx, order.OrderNo, service.Viewer{UserID: &strangerID})
	require.NoError(t, err)
	assert.Nil(t, view.Secrets)
	assert.Empty(t, view.Order.ContactInfo)
}

// payAndReconcile drives an order to paid through the mock provider path and
// returns the payment number.
func payAndReconcile(t *testing.T, e *env, order *domain.Order) string {
	t.Helper()
	ctx := context.Background()

	intent, err := e.paymentSvc.CreatePayment(ctx, service.CreatePaymentInput{
		OrderNo: order.OrderNo, Method: "mock", Amount: order.TotalAmount,
	})
	require.NoError(t, err)

	require.NoError(t, e.reconcileSvc.ApplyNotification(ctx, "mock",
		intent.PaymentNo, domain.OutcomeSuccess, "txn-"+intent.PaymentNo))
	return intent.PaymentNo
}
