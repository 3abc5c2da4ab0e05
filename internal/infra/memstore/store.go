// Package memstore keeps the authority's certificate material in
// process memory. It backs tests and no-db deployments with the same
// validation rules the database store enforces.
package memstore

import (
	"context"
	"sync"

	"github.com/aneury1/scsh-scripts/internal/domain"
	"github.com/aneury1/scsh-scripts/internal/infra/cvc"
	"github.com/aneury1/scsh-scripts/internal/usecase"
)

type entry struct {
	cert domain.Certificate
	role domain.CertificateRole
}

type Store struct {
	mu       sync.RWMutex
	entries  []entry
	byHolder map[string]int

	// verify checks an inserted certificate against its issuer. Nil
	// means structural checks only.
	verify func(cert, issuer *domain.Certificate) error
}

var _ usecase.CertificateStore = (*Store)(nil)

func New() *Store {
	return &Store{
		byHolder: make(map[string]int),
		verify:   cvc.VerifyCertificate,
	}
}

func (s *Store) Insert(ctx context.Context, cert *domain.Certificate, role domain.CertificateRole) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byHolder[cert.CHR]; ok {
		return domain.ErrDuplicate
	}

	var issuer *domain.Certificate
	if !cert.SelfSigned() {
		idx, ok := s.byHolder[cert.CAR]
		if !ok {
			return domain.ErrUnknownIssuer
		}
		issuer = &s.entries[idx].cert
	}
	if s.verify != nil {
		if err := s.verify(cert, issuer); err != nil {
			return domain.ErrChainSignature
		}
	}

	s.byHolder[cert.CHR] = len(s.entries)
	s.entries = append(s.entries, entry{cert: *cert, role: role})
	return nil
}

// Chain returns the cvca and dvca certificates in insertion order.
// Terminal certificates are issued, not published.
func (s *Store) Chain(ctx context.Context) ([]domain.Certificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var chain []domain.Certificate
	for _, e := range s.entries {
		if e.role == domain.RoleTerminal {
			continue
		}
		chain = append(chain, e.cert)
	}
	return chain, nil
}

func (s *Store) GetByHolder(ctx context.Context, chr string) (*domain.Certificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byHolder[chr]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cert := s.entries[idx].cert
	return &cert, nil
}

func (s *Store) CurrentHolder(ctx context.Context) (string, error) {
	return s.newestHolder(ctx, domain.RoleDVCA)
}

func (s *Store) ParentHolder(ctx context.Context) (string, error) {
	return s.newestHolder(ctx, domain.RoleCVCA)
}

func (s *Store) newestHolder(ctx context.Context, role domain.CertificateRole) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].role == role {
			return s.entries[i].cert.CHR, nil
		}
	}
	return "", domain.ErrNotFound
}

// ActiveKeySpec derives the accepted algorithm and domain parameters
// from the current dvca certificate, falling back to the cvca root
// before the first renewal completes.
func (s *Store) ActiveKeySpec(ctx context.Context) (domain.KeySpec, error) {
	if err := ctx.Err(); err != nil {
		return domain.KeySpec{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, role := range []domain.CertificateRole{domain.RoleDVCA, domain.RoleCVCA} {
		for i := len(s.entries) - 1; i >= 0; i-- {
			if s.entries[i].role != role {
				continue
			}
			pk := s.entries[i].cert.PublicKey
			return domain.KeySpec{Algorithm: pk.Algorithm, Params: pk.Params}, nil
		}
	}
	return domain.KeySpec{}, domain.ErrNotFound
}
