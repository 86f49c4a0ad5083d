//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	platformpg "rxvc/internal/platform/postgres"
	audit "rxvc/pkg/platform/audit"
	txcontext "rxvc/pkg/platform/tx"
	"rxvc/pkg/testutil/containers"
)

type AuditPostgresSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *Store
}

func TestAuditPostgresSuite(t *testing.T) {
	suite.Run(t, new(AuditPostgresSuite))
}

func (s *AuditPostgresSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.Require().NoError(platformpg.Migrate(context.Background(), s.pg.DB))
	s.store = New(s.pg.DB)
}

func (s *AuditPostgresSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(context.Background(), "audit_events"))
}

func event(subject string, action audit.AuditEvent, at time.Time) audit.Event {
	return audit.Event{
		Timestamp: at,
		ActorID:   "did:example:doctor",
		Subject:   subject,
		Action:    string(action),
		RequestID: "req-1",
	}
}

func (s *AuditPostgresSuite) TestListBySubjectIsChronological() {
	ctx := context.Background()
	t0 := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.Append(ctx, event("rx-1", audit.EventDispensingCreated, t0.Add(time.Hour))))
	s.Require().NoError(s.store.Append(ctx, event("rx-1", audit.EventPrescriptionIssued, t0)))
	s.Require().NoError(s.store.Append(ctx, event("rx-2", audit.EventPrescriptionIssued, t0)))

	events, err := s.store.ListBySubject(ctx, "rx-1")
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(string(audit.EventPrescriptionIssued), events[0].Action)
	s.Equal(audit.CategoryCompliance, events[0].Category)
	s.NotEmpty(events[0].ID)
	s.True(events[1].Timestamp.Equal(t0.Add(time.Hour)))

	n, err := s.store.Count(ctx)
	s.Require().NoError(err)
	s.Equal(3, n)
}

func (s *AuditPostgresSuite) TestKeepsFrameVersionAndHash() {
	ctx := context.Background()
	e := event("rx-9", audit.EventAuditFullDisclosure, time.Date(2026, 10, 1, 9, 0, 0, 123456789, time.UTC))
	e.FrameVersion = "1"
	e.EntryHash = "abc"
	s.Require().NoError(s.store.Append(ctx, e))

	events, err := s.store.ListBySubject(ctx, "rx-9")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("1", events[0].FrameVersion)
	s.Equal("abc", events[0].EntryHash)
	s.True(events[0].Timestamp.Equal(e.Timestamp.Truncate(time.Microsecond)))
}

func (s *AuditPostgresSuite) TestRejectsMalformedID() {
	e := event("rx-1", audit.EventPrescriptionIssued, time.Now())
	e.ID = "not-a-uuid"
	s.Error(s.store.Append(context.Background(), e))
}

func (s *AuditPostgresSuite) TestAppendJoinsTransaction() {
	ctx := context.Background()
	tx, err := s.pg.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Append(txcontext.WithTx(ctx, tx), event("rx-1", audit.EventPrescriptionIssued, time.Now())))
	s.Require().NoError(tx.Rollback())

	events, err := s.store.ListBySubject(ctx, "rx-1")
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *AuditPostgresSuite) TestEventsAreAppendOnly() {
	ctx := context.Background()
	s.Require().NoError(s.store.Append(ctx, event("rx-1", audit.EventPrescriptionIssued, time.Now())))

	_, err := s.pg.DB.ExecContext(ctx, `UPDATE audit_events SET reason = 'edited'`)
	s.Error(err)
	_, err = s.pg.DB.ExecContext(ctx, `DELETE FROM audit_events`)
	s.Error(err)
}
