package loans

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/library-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

// Policy holds the lending rules applied by the loan engine.
type Policy struct {
	LoanPeriod     time.Duration
	FinePerDay     decimal.Decimal
	MaxActiveLoans int
	MaxRenewals    int
}

// DefaultPolicy is fourteen day loans, 2.00 per late day, three concurrent
// loans and a single renewal.
func DefaultPolicy() Policy {
	return Policy{
		LoanPeriod:     14 * 24 * time.Hour,
		FinePerDay:     decimal.RequireFromString("2.00"),
		MaxActiveLoans: 3,
		MaxRenewals:    1,
	}
}

// PolicyFromConfig maps the circulation settings onto a Policy.
func PolicyFromConfig(cfg config.CirculationConfig) Policy {
	return Policy{
		LoanPeriod:     cfg.LoanPeriod,
		FinePerDay:     cfg.FinePerDay,
		MaxActiveLoans: cfg.MaxActiveLoans,
		MaxRenewals:    cfg.MaxRenewals,
	}
}

func (p Policy) validate() error {
	var msg string
	switch {
	case p.LoanPeriod <= 0:
		msg = "loan period must be positive"
	case p.FinePerDay.IsNegative():
		msg = "fine per day must not be negative"
	case p.MaxActiveLoans <= 0:
		msg = "max active loans must be positive"
	case p.MaxRenewals < 0:
		msg = "max renewals must not be negative"
	default:
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, msg)
}
