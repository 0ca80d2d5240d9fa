package workflow

import (
	"context"

	"github.com/greenaudit/greenwash_backend/models"
)

// BlobStore holds the original uploaded bytes. Delete of an absent id is not an error.
type BlobStore interface {
	Put(ctx context.Context, filename string, data []byte) (string, error)
	Get(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
}

type ReportStore interface {
	Insert(ctx context.Context, report *models.Report) (string, error)
	Find(ctx context.Context, filter models.ReportFilter) ([]*models.Report, error)
	FindById(ctx context.Context, id string) (*models.Report, error)
	Delete(ctx context.Context, id string) error
}

type CompanyStore interface {
	FindById(ctx context.Context, id string) (*models.Company, error)
	List(ctx context.Context) ([]*models.Company, error)
}

type CreditStore interface {
	Insert(ctx context.Context, entry *models.CreditEntry) (string, error)
	Find(ctx context.Context, filter models.CreditFilter) ([]*models.CreditEntry, error)
	Delete(ctx context.Context, id string) (int64, error)
}

type Extractor interface {
	ExtractText(data []byte) (string, error)
	GuessCompanyName(text string) string
}

// Gatherer returns a news digest for a company. Callers treat any error as degraded, not fatal.
type Gatherer interface {
	Search(ctx context.Context, companyName string) (string, error)
}

// Oracle is the scoring backend. Its output is untrusted and always revalidated.
type Oracle interface {
	Ready() error
	Complete(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}
