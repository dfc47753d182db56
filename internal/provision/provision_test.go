package provision

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/viralforge/sessionauth/internal/domain"
)

type fakeRegistrar struct {
	calls []string
	err   error
}

func (f *fakeRegistrar) Register(_ context.Context, email, password, fullName string) (uuid.UUID, error) {
	f.calls = append(f.calls, email+"|"+password+"|"+fullName)
	if f.err != nil {
		return uuid.Nil, f.err
	}
	return uuid.New(), nil
}

func stubPasswords(t *testing.T, values ...string) {
	t.Helper()
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })
	readPassword = func() ([]byte, error) {
		if len(values) == 0 {
			return nil, errors.New("no more input")
		}
		v := values[0]
		values = values[1:]
		return []byte(v), nil
	}
}

func TestRunRetriesOnMismatch(t *testing.T) {
	stubPasswords(t, "pw1", "pw2", "pw1", "pw1")
	reg := &fakeRegistrar{}
	out := &bytes.Buffer{}
	in := strings.NewReader("ann@example.com\nAnn\nann@example.com\nAnn\n")

	id, err := NewPrompter(in, out, reg).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if id == uuid.Nil {
		t.Fatal("expected user id")
	}
	if len(reg.calls) != 1 || reg.calls[0] != "ann@example.com|pw1|Ann" {
		t.Fatalf("unexpected register calls: %v", reg.calls)
	}
	if !strings.Contains(out.String(), "do not match") {
		t.Fatalf("expected mismatch notice, got %q", out.String())
	}
}

func TestRunStopsOnStorageFailure(t *testing.T) {
	stubPasswords(t, "pw1", "pw1")
	reg := &fakeRegistrar{err: errors.New("db down")}
	in := strings.NewReader("ann@example.com\nAnn\n")

	if _, err := NewPrompter(in, &bytes.Buffer{}, reg).Run(context.Background()); err == nil {
		t.Fatal("expected storage error to abort")
	}
	if len(reg.calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(reg.calls))
	}
}

func TestRunGivesUpAfterRejectedInput(t *testing.T) {
	stubPasswords(t, "pw1", "pw1", "pw1", "pw1", "pw1", "pw1")
	reg := &fakeRegistrar{err: domain.ErrDuplicateEmail}
	in := strings.NewReader(strings.Repeat("ann@example.com\nAnn\n", 3))

	if _, err := NewPrompter(in, &bytes.Buffer{}, reg).Run(context.Background()); err == nil {
		t.Fatal("expected failure after retries")
	}
	if len(reg.calls) != 3 {
		t.Fatalf("expected three attempts, got %d", len(reg.calls))
	}
}
