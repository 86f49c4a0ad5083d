//go:build integration

package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"rxvc/internal/platform/postgres"
	"rxvc/pkg/domain"
	"rxvc/pkg/platform/sentinel"
	"rxvc/pkg/testutil/containers"
)

type PostgresRegistrySuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresStore
}

func TestPostgresRegistrySuite(t *testing.T) {
	suite.Run(t, new(PostgresRegistrySuite))
}

func (s *PostgresRegistrySuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.Require().NoError(postgres.Migrate(context.Background(), s.pg.DB))
	s.store = NewPostgres(s.pg.DB)
}

func (s *PostgresRegistrySuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background(), "actors"))
}

func (s *PostgresRegistrySuite) TestRegisterFindAndAuthorize() {
	ctx := context.Background()
	auditor := Actor{
		DID:    "did:example:auditor-1",
		Role:   domain.RoleAuditor,
		Name:   "State Board",
		Active: true,
		Scopes: []string{"audit:full"},
	}
	s.Require().NoError(s.store.Register(ctx, auditor))

	got, err := s.store.Find(ctx, auditor.DID, domain.RoleAuditor)
	s.Require().NoError(err)
	s.Equal([]string{"audit:full"}, got.Scopes)
	s.Empty(got.License)

	ok, err := s.store.IsAuthorized(ctx, auditor.DID, domain.RoleAuditor)
	s.Require().NoError(err)
	s.True(ok)

	s.Require().NoError(s.store.SetActive(ctx, auditor.DID, domain.RoleAuditor, false))
	ok, err = s.store.IsAuthorized(ctx, auditor.DID, domain.RoleAuditor)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *PostgresRegistrySuite) TestUnknownActor() {
	ctx := context.Background()

	ok, err := s.store.IsAuthorized(ctx, "did:example:nobody", domain.RoleDoctor)
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.store.Find(ctx, "did:example:nobody", domain.RoleDoctor)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.SetActive(ctx, "did:example:nobody", domain.RoleDoctor, true), sentinel.ErrNotFound)
}
