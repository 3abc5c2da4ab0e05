package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aneury1/scsh-scripts/internal/domain"
	"github.com/aneury1/scsh-scripts/internal/infra/cvc"
	"github.com/aneury1/scsh-scripts/internal/usecase"
)

// CertificateRepository persists certificates in postgres. Rows carry
// the raw encoding; structured fields are recovered by decoding on
// read, so the database never holds a second representation that
// could drift from the signed bytes.
type CertificateRepository struct {
	db  *gorm.DB
	now func() time.Time

	// verify checks an inserted certificate against its issuer. Nil
	// means structural checks only.
	verify func(cert, issuer *domain.Certificate) error
}

var _ usecase.CertificateStore = (*CertificateRepository)(nil)

func NewCertificateRepository(gdb *gorm.DB) *CertificateRepository {
	return &CertificateRepository{
		db:     gdb,
		now:    time.Now,
		verify: cvc.VerifyCertificate,
	}
}

func (r *CertificateRepository) Insert(ctx context.Context, cert *domain.Certificate, role domain.CertificateRole) error {
	if r.db == nil {
		return errDBUnavailable
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&CertificateModel{}).Where("chr = ?", cert.CHR).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return domain.ErrDuplicate
	}

	var issuer *domain.Certificate
	if !cert.SelfSigned() {
		parent, err := r.GetByHolder(ctx, cert.CAR)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrUnknownIssuer
			}
			return err
		}
		issuer = parent
	}
	if r.verify != nil {
		if err := r.verify(cert, issuer); err != nil {
			return domain.ErrChainSignature
		}
	}

	model := CertificateModel{
		ID:        uuid.NewString(),
		CHR:       cert.CHR,
		CAR:       cert.CAR,
		Role:      string(role),
		Raw:       copyBytes(cert.Raw),
		NotBefore: cert.NotBefore,
		NotAfter:  cert.NotAfter,
		CreatedAt: r.now().UTC(),
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *CertificateRepository) GetByHolder(ctx context.Context, chr string) (*domain.Certificate, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model CertificateModel
	err := r.db.WithContext(ctx).First(&model, "chr = ?", chr).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return cvc.Codec{}.DecodeCertificate(model.Raw)
}

// Chain returns the cvca and dvca certificates in insertion order.
func (r *CertificateRepository) Chain(ctx context.Context) ([]domain.Certificate, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []CertificateModel
	err := r.db.WithContext(ctx).
		Where("role IN ?", []string{string(domain.RoleCVCA), string(domain.RoleDVCA)}).
		Order("created_at asc, id asc").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	chain := make([]domain.Certificate, 0, len(models))
	for _, m := range models {
		cert, err := cvc.Codec{}.DecodeCertificate(m.Raw)
		if err != nil {
			return nil, err
		}
		chain = append(chain, *cert)
	}
	return chain, nil
}

func (r *CertificateRepository) CurrentHolder(ctx context.Context) (string, error) {
	return r.newestHolder(ctx, domain.RoleDVCA)
}

func (r *CertificateRepository) ParentHolder(ctx context.Context) (string, error) {
	return r.newestHolder(ctx, domain.RoleCVCA)
}

func (r *CertificateRepository) newestHolder(ctx context.Context, role domain.CertificateRole) (string, error) {
	if r.db == nil {
		return "", errDBUnavailable
	}
	var model CertificateModel
	err := r.db.WithContext(ctx).
		Where("role = ?", string(role)).
		Order("created_at desc, id desc").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domain.ErrNotFound
		}
		return "", err
	}
	return model.CHR, nil
}

// ActiveKeySpec derives the accepted algorithm and domain parameters
// from the current dvca certificate, falling back to the cvca root
// before the first renewal completes.
func (r *CertificateRepository) ActiveKeySpec(ctx context.Context) (domain.KeySpec, error) {
	if r.db == nil {
		return domain.KeySpec{}, errDBUnavailable
	}
	for _, role := range []domain.CertificateRole{domain.RoleDVCA, domain.RoleCVCA} {
		chr, err := r.newestHolder(ctx, role)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return domain.KeySpec{}, err
		}
		cert, err := r.GetByHolder(ctx, chr)
		if err != nil {
			return domain.KeySpec{}, err
		}
		return domain.KeySpec{Algorithm: cert.PublicKey.Algorithm, Params: cert.PublicKey.Params}, nil
	}
	return domain.KeySpec{}, domain.ErrNotFound
}
