package checkout

import (
	"context"
	"log"
	"log/slog"
	"os"
	"testing"
	"time"

	"settlement-service/internal/checkout"
	"settlement-service/internal/db"
	"settlement-service/internal/provider"
	"settlement-service/tests/testhelpers"

	"github.com/google/uuid"
	"github.com/h2non/gock"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type CheckoutServiceTestSuite struct {
	suite.Suite
	pgContainer *testhelpers.PostgresContainer
	pool        *pgxpool.Pool
	repo        *db.SettlementRepository
	sut         *checkout.Service
	ctx         context.Context
	callerUID   string
}

func (s *CheckoutServiceTestSuite) SetupSuite() {
	time.Local = time.UTC

	os.Setenv("PROVIDER_API_URL", "http://provider.test")
	os.Setenv("PROVIDER_SECRET_KEY", "sk_test_123")
	os.Setenv("CHECKOUT_SUCCESS_URL", "https://app.test/success")
	os.Setenv("CHECKOUT_CANCEL_URL", "https://app.test/cancel")
	os.Setenv("DEFAULT_CURRENCY", "usd")

	s.ctx = context.Background()
	s.callerUID = uuid.New().String()

	pgContainer, err := testhelpers.CreatePostgresContainer(s.ctx)
	if err != nil {
		log.Fatal(err)
	}
	s.pgContainer = pgContainer

	db.RunMigrations(pgContainer.ConnectionString, "../../../migrations")

	pool, err := db.GetPool(pgContainer.ConnectionString)
	if err != nil {
		log.Fatal(err)
	}

	s.pool = pool
	s.repo = db.NewSettlementRepository(pool)
	s.sut = checkout.NewService(s.repo, provider.NewClient(), slog.Default())
}

func (s *CheckoutServiceTestSuite) TearDownSuite() {
	s.pool.Close()

	if err := s.pgContainer.Terminate(s.ctx); err != nil {
		log.Fatalf("error terminating postgres container: %s", err)
	}
}

func (s *CheckoutServiceTestSuite) SetupTest() {
	for _, table := range []string{"payment", "checkout_session"} {
		_, err := s.pool.Exec(s.ctx, "DELETE FROM "+table)
		if err != nil {
			log.Fatalf("error truncating %s table: %s", table, err)
		}
	}
}

func (s *CheckoutServiceTestSuite) TearDownTest() {
	gock.Off()
}

func (s *CheckoutServiceTestSuite) seedPayment(amount float64, status string) *db.PaymentEntity {
	now := time.Now()
	currency := "usd"
	payment := &db.PaymentEntity{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Amount:    amount,
		Currency:  &currency,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Require().NoError(s.repo.CreatePayment(s.ctx, payment))
	return payment
}

func (s *CheckoutServiceTestSuite) TestInitiate_CreatesSessionAndLedgerEntry() {
	t := s.T()

	payment := s.seedPayment(49.99, db.PaymentStatusUnpaid)

	// The provider must receive round(49.99 * 100) = 4999 minor units and the
	// payment reference in metadata.
	gock.New("http://provider.test").
		Post("/v1/checkout/sessions").
		BodyString("amount=4999&.*metadata%5Bpayment_id%5D=" + payment.ID.String()).
		Reply(200).
		JSON(map[string]string{"id": "cs_100", "url": "https://provider.test/pay/cs_100"})

	result, err := s.sut.Initiate(s.ctx, s.callerUID, payment.ID.String())
	assert.NoError(t, err)
	assert.Equal(t, "cs_100", result.SessionID)
	assert.Equal(t, "https://provider.test/pay/cs_100", result.CheckoutURL)
	assert.True(t, gock.IsDone())

	session, err := s.repo.GetCheckoutSession(s.ctx, "cs_100")
	assert.NoError(t, err)
	assert.Equal(t, db.SessionStatusCreated, session.Status)
	assert.Equal(t, payment.ID, session.PaymentID)
	assert.Equal(t, payment.UserID, session.StudentID)

	// Checkout creation never settles anything.
	untouched, err := s.repo.GetPayment(s.ctx, payment.ID)
	assert.NoError(t, err)
	assert.Equal(t, db.PaymentStatusUnpaid, untouched.Status)
}

func (s *CheckoutServiceTestSuite) TestInitiate_RetryMergesLedgerEntry() {
	t := s.T()

	payment := s.seedPayment(20, db.PaymentStatusUnpaid)

	for i := 0; i < 2; i++ {
		gock.New("http://provider.test").
			Post("/v1/checkout/sessions").
			Reply(200).
			JSON(map[string]string{"id": "cs_200", "url": "https://provider.test/pay/cs_200"})

		_, err := s.sut.Initiate(s.ctx, s.callerUID, payment.ID.String())
		assert.NoError(t, err)
	}

	session, err := s.repo.GetCheckoutSession(s.ctx, "cs_200")
	assert.NoError(t, err)
	assert.Equal(t, db.SessionStatusCreated, session.Status)
}

func (s *CheckoutServiceTestSuite) TestInitiate_AlreadyPaid() {
	t := s.T()

	payment := s.seedPayment(49.99, db.PaymentStatusPaid)

	_, err := s.sut.Initiate(s.ctx, s.callerUID, payment.ID.String())
	assert.ErrorIs(t, err, checkout.ErrAlreadyPaid)
}

func (s *CheckoutServiceTestSuite) TestInitiate_PaymentNotFound() {
	t := s.T()

	_, err := s.sut.Initiate(s.ctx, s.callerUID, uuid.New().String())
	assert.ErrorIs(t, err, checkout.ErrPaymentNotFound)
}

func (s *CheckoutServiceTestSuite) TestInitiate_InvalidPaymentID() {
	t := s.T()

	_, err := s.sut.Initiate(s.ctx, s.callerUID, "")
	assert.ErrorIs(t, err, checkout.ErrInvalidPaymentID)

	_, err = s.sut.Initiate(s.ctx, s.callerUID, "not-a-uuid")
	assert.ErrorIs(t, err, checkout.ErrInvalidPaymentID)
}

func (s *CheckoutServiceTestSuite) TestInitiate_Unauthenticated() {
	t := s.T()

	payment := s.seedPayment(49.99, db.PaymentStatusUnpaid)

	_, err := s.sut.Initiate(s.ctx, "", payment.ID.String())
	assert.ErrorIs(t, err, checkout.ErrUnauthenticated)
}

func (s *CheckoutServiceTestSuite) TestInitiate_RejectsNonPositiveAmount() {
	t := s.T()

	payment := s.seedPayment(0, db.PaymentStatusUnpaid)

	_, err := s.sut.Initiate(s.ctx, s.callerUID, payment.ID.String())
	assert.ErrorIs(t, err, checkout.ErrInvalidAmount)
}

func TestCheckoutServiceTestSuite(t *testing.T) {
	suite.Run(t, new(CheckoutServiceTestSuite))
}
