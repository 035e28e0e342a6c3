package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

// overdueFlagger marks delivered orders whose invoice window has closed.
type overdueFlagger interface {
	FlagOverdue(ctx context.Context) (int, error)
}

type InvoiceAuditJobParams struct {
	Logger  *logger.Logger
	Billing overdueFlagger
}

func NewInvoiceAuditJob(params InvoiceAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Billing == nil {
		return nil, fmt.Errorf("billing service required")
	}
	return &invoiceAuditJob{logg: params.Logger, billing: params.Billing}, nil
}

type invoiceAuditJob struct {
	logg    *logger.Logger
	billing overdueFlagger
}

func (j *invoiceAuditJob) Name() string { return "invoice-audit" }

// Run raises the audit alert on every delivered order past its invoice
// deadline. Orders already flagged are skipped by the billing service.
func (j *invoiceAuditJob) Run(ctx context.Context) error {
	flagged, err := j.billing.FlagOverdue(ctx)
	if err != nil {
		return fmt.Errorf("flag overdue invoices: %w", err)
	}
	if flagged > 0 {
		j.logg.Warn(j.logg.WithField(ctx, "flagged", flagged), "orders past their invoice deadline")
		return nil
	}
	j.logg.Info(ctx, "invoice audit complete")
	return nil
}
