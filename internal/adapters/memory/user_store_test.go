package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/viralforge/sessionauth/internal/domain"
	"github.com/viralforge/sessionauth/internal/ports"
)

func TestScopeErrorDiscardsWrites(t *testing.T) {
	t.Parallel()
	s := NewStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context, tx ports.UserTx) error {
		if _, err := tx.Create(ctx, domain.User{Email: "a@x.com"}); err != nil {
			return err
		}
		if err := tx.Enqueue(ctx, ports.OutboxEvent{EventID: uuid.New(), EventType: "user.registered"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected scope error, got %v", err)
	}
	if _, err := s.GetByEmail(ctx, "a@x.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no user after rollback, got %v", err)
	}
	if n := len(s.Outbox()); n != 0 {
		t.Fatalf("expected empty outbox, got %d", n)
	}
}

func TestCreateSaveDelete(t *testing.T) {
	t.Parallel()
	s := NewStore()
	ctx := context.Background()

	var created domain.User
	err := s.InTx(ctx, func(ctx context.Context, tx ports.UserTx) error {
		var err error
		created, err = tx.Create(ctx, domain.User{Email: "a@x.com"})
		if err != nil {
			return err
		}
		if _, err := tx.Create(ctx, domain.User{Email: "a@x.com"}); !errors.Is(err, domain.ErrDuplicateEmail) {
			t.Errorf("expected duplicate inside scope, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.UserID == uuid.Nil {
		t.Fatal("expected assigned id")
	}

	until := time.Now().Add(time.Minute)
	err = s.InTx(ctx, func(ctx context.Context, tx ports.UserTx) error {
		u, err := tx.GetByEmail(ctx, "a@x.com")
		if err != nil {
			return err
		}
		u.LockedUntil = &until
		u.TokenVersion = 4
		return tx.Save(ctx, u)
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TokenVersion != 4 || got.LockedUntil == nil || !got.LockedUntil.Equal(until) {
		t.Fatalf("unexpected record: %+v", got)
	}
	*got.LockedUntil = time.Time{}
	again, _ := s.GetByEmail(ctx, "a@x.com")
	if !again.LockedUntil.Equal(until) {
		t.Fatal("reads must not alias stored state")
	}

	err = s.InTx(ctx, func(ctx context.Context, tx ports.UserTx) error {
		return tx.Delete(ctx, created.UserID)
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	err = s.InTx(ctx, func(ctx context.Context, tx ports.UserTx) error {
		return tx.Delete(ctx, created.UserID)
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NotFound on second delete, got %v", err)
	}
}

func TestOutboxClaimIsExclusive(t *testing.T) {
	t.Parallel()
	s := NewStore()
	ctx := context.Background()
	id := uuid.New()
	_ = s.InTx(ctx, func(ctx context.Context, tx ports.UserTx) error {
		return tx.Enqueue(ctx, ports.OutboxEvent{EventID: id, EventType: "user.deleted"})
	})

	until := time.Now().Add(time.Minute)
	first, _ := s.ClaimUnpublished(ctx, 10, "w1", until)
	second, _ := s.ClaimUnpublished(ctx, 10, "w2", until)
	if len(first) != 1 || len(second) != 0 {
		t.Fatalf("claims overlap: %d/%d", len(first), len(second))
	}

	// A foreign token cannot finish the record.
	_ = s.MarkPublished(ctx, id, "w2", time.Now())
	if s.Outbox()[0].PublishedAt != nil {
		t.Fatal("record published by non-holder")
	}
	_ = s.MarkPublished(ctx, id, "w1", time.Now())
	if rec := s.Outbox()[0]; rec.PublishedAt == nil || rec.ClaimToken != nil {
		t.Fatalf("expected published and released: %+v", rec)
	}
}
