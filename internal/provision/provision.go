// Package provision creates the first account from an interactive terminal.
// Registration over HTTP requires a bearer token, so an empty deployment
// needs one account created out of band.
package provision

import (
	"bufio"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/viralforge/sessionauth/internal/domain"
)

// readPassword is swapped in tests to avoid touching the terminal.
var readPassword = func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) }

// Registrar is the slice of the auth engine provisioning needs.
type Registrar interface {
	Register(ctx context.Context, email, password, fullName string) (uuid.UUID, error)
}

// Prompter asks for account details until a registration succeeds.
type Prompter struct {
	in          *bufio.Reader
	out         io.Writer
	registrar   Registrar
	maxAttempts int
}

func NewPrompter(in io.Reader, out io.Writer, registrar Registrar) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out, registrar: registrar, maxAttempts: 3}
}

// Run prompts for email, name and a confirmed password, then registers the account.
// Mismatched passwords and rejected input are retried; storage failures are not.
func (p *Prompter) Run(ctx context.Context) (uuid.UUID, error) {
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		email, err := p.line("Email: ")
		if err != nil {
			return uuid.Nil, err
		}
		fullName, err := p.line("Full name: ")
		if err != nil {
			return uuid.Nil, err
		}
		password, err := p.secret("Password: ")
		if err != nil {
			return uuid.Nil, err
		}
		confirm, err := p.secret("Repeat password: ")
		if err != nil {
			return uuid.Nil, err
		}
		if subtle.ConstantTimeCompare(password, confirm) != 1 {
			fmt.Fprintln(p.out, "Passwords do not match, try again.")
			continue
		}

		id, err := p.registrar.Register(ctx, email, string(password), fullName)
		switch {
		case err == nil:
			fmt.Fprintf(p.out, "User %s created.\n", email)
			return id, nil
		case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrDuplicateEmail):
			fmt.Fprintf(p.out, "Could not create user: %v\n", err)
		default:
			return uuid.Nil, err
		}
	}
	return uuid.Nil, fmt.Errorf("no account created after %d attempts", p.maxAttempts)
}

func (p *Prompter) line(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	raw, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && raw != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(raw), nil
}

func (p *Prompter) secret(prompt string) ([]byte, error) {
	fmt.Fprint(p.out, prompt)
	pw, err := readPassword()
	fmt.Fprintln(p.out)
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	return pw, nil
}
