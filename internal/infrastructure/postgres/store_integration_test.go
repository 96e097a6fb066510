//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/blox-verify/internal/domain"
	"github.com/blox-verify/internal/infrastructure/postgres"
)

type PostgresStoreSuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	pool      *pgxpool.Pool
	verif     *postgres.VerificationStore
	subs      *postgres.SubmissionStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	ctx := context.Background()
	c, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("bloxbot"),
		tcpostgres.WithUsername("bloxbot"),
		tcpostgres.WithPassword("bloxbot"),
		tcpostgres.BasicWaitStrategies(),
	)
	s.Require().NoError(err)
	s.container = c

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)
	s.pool, err = postgres.Connect(ctx, dsn, 20)
	s.Require().NoError(err)
	s.Require().NoError(postgres.Migrate(ctx, s.pool))
	s.Require().NoError(postgres.Migrate(ctx, s.pool), "migrate is idempotent")

	s.verif = postgres.NewVerificationStore(s.pool)
	s.subs = postgres.NewSubmissionStore(s.pool)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		s.NoError(testcontainers.TerminateContainer(s.container))
	}
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.pool.Exec(context.Background(), `TRUNCATE verifications, ad_submissions`)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) commit(owner, handle string) *domain.CommitResult {
	res, err := s.verif.Commit(context.Background(), domain.CommitRequest{
		OwnerID: owner, ExternalHandle: handle, VerifiedAt: time.Now(), InitialCredits: 5,
	})
	s.Require().NoError(err)
	return res
}

func (s *PostgresStoreSuite) TestCommitGrantsOncePerHandle() {
	ctx := context.Background()
	res := s.commit("42", "Builderman")
	s.True(res.Granted)
	s.Equal(5, res.Record.Credits)

	_, err := s.verif.Debit(ctx, "builderman", 2)
	s.Require().NoError(err)

	res = s.commit("42", "Builderman")
	s.False(res.Granted)
	s.Equal(3, res.Record.Credits)

	res = s.commit("77", "BUILDERMAN")
	s.False(res.Granted)
	s.Equal(3, res.Record.Credits)
	s.Equal("42", res.DisplacedOwnerID)

	_, err = s.verif.GetByOwner(ctx, "42")
	s.True(errors.Is(err, domain.ErrNotFound))
}

func (s *PostgresStoreSuite) TestDebitConcurrent() {
	ctx := context.Background()
	_, created, err := s.verif.GrantInitial(ctx, "42", "Builderman", 10, time.Now())
	s.Require().NoError(err)
	s.True(created)

	var (
		wg       sync.WaitGroup
		ok, fail atomic.Int32
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.verif.Debit(ctx, "Builderman", 1)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrInsufficientCredits):
				fail.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(10), ok.Load())
	s.Equal(int32(20), fail.Load())
	rec, err := s.verif.GetByHandle(ctx, "builderman")
	s.Require().NoError(err)
	s.Equal(0, rec.Credits)
}

func (s *PostgresStoreSuite) TestDebitUnknownHandle() {
	_, err := s.verif.Debit(context.Background(), "ghost", 1)
	s.True(errors.Is(err, domain.ErrNotFound))
}

func (s *PostgresStoreSuite) TestGrantInitialNeverResets() {
	ctx := context.Background()
	s.commit("42", "Builderman")
	_, err := s.verif.AdjustCredits(ctx, "42", -4)
	s.Require().NoError(err)

	rec, created, err := s.verif.GrantInitial(ctx, "99", "builderman", 5, time.Now())
	s.Require().NoError(err)
	s.False(created)
	s.Equal("42", rec.OwnerID)
	s.Equal(1, rec.Credits)
}

func (s *PostgresStoreSuite) TestAdjustClampsAndDelete() {
	ctx := context.Background()
	s.commit("42", "Builderman")

	bal, err := s.verif.AdjustCredits(ctx, "42", -50)
	s.Require().NoError(err)
	s.Equal(0, bal)

	s.Require().NoError(s.verif.Delete(ctx, "42"))
	s.True(errors.Is(s.verif.Delete(ctx, "42"), domain.ErrNotFound))
}

func (s *PostgresStoreSuite) TestSubmissionLifecycle() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	for i, id := range []string{"01B", "01A"} {
		s.Require().NoError(s.subs.Append(ctx, &domain.Submission{
			ID: id, GuildID: "g1", OwnerID: "42", ExternalHandle: "Builderman", Text: "ad",
			Status: domain.SubmissionPending, SubmittedAt: now.Add(time.Duration(i) * time.Second),
		}))
	}
	s.True(errors.Is(s.subs.Append(ctx, &domain.Submission{ID: "01A", GuildID: "g1", SubmittedAt: now}), domain.ErrConflict))

	pending, err := s.subs.ListPending(ctx, "g1")
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal("01B", pending[0].ID)

	sub, err := s.subs.Decide(ctx, "01A", domain.Decision{
		Status: domain.SubmissionDenied, ProcessedBy: "mod", Comments: "spam", ProcessedAt: now,
	})
	s.Require().NoError(err)
	s.Equal(domain.SubmissionDenied, sub.Status)
	s.Equal("deny", sub.Decision)
	s.NotNil(sub.ProcessedAt)

	_, err = s.subs.Decide(ctx, "01A", domain.Decision{Status: domain.SubmissionApproved, ProcessedAt: now})
	s.True(errors.Is(err, domain.ErrNotPending))
	_, err = s.subs.Decide(ctx, "nope", domain.Decision{Status: domain.SubmissionApproved, ProcessedAt: now})
	s.True(errors.Is(err, domain.ErrNotFound))
}
