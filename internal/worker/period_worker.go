package worker

import (
	"context"
	"fmt"

	"kakeibo/internal/amqp"
	"kakeibo/internal/core"
	"kakeibo/internal/log"
)

// Ledger is the part of the ledger service the worker drives.
type Ledger interface {
	WarmSummaries(ctx context.Context, periods []core.Period) error
	Settle(ctx context.Context, period core.Period) (core.Summary, core.Settlement, error)
	Periods(ctx context.Context) ([]core.PeriodCount, error)
}

// PeriodWorker reacts to replaced periods by recomputing their summaries
// and logging the resulting settlements.
type PeriodWorker struct {
	ledger      Ledger
	logger      *log.Logger
	startupWarm int
}

// NewPeriodWorker creates a worker. startupWarm is how many of the most
// recent periods StartupWarm preloads.
func NewPeriodWorker(ledger Ledger, logger *log.Logger, startupWarm int) *PeriodWorker {
	if logger == nil {
		logger = log.Nop()
	}
	return &PeriodWorker{
		ledger:      ledger,
		logger:      logger.WithComponent(log.ComponentWorker),
		startupWarm: startupWarm,
	}
}

// HandlePeriodsReplaced processes a single notification from AMQP.
func (w *PeriodWorker) HandlePeriodsReplaced(ctx context.Context, msg *amqp.PeriodsReplacedMessage) error {
	w.logger.InfoContext(ctx, "Processing periods replaced message",
		log.FieldBatchID, msg.BatchID,
		log.FieldPeriods, msg.Periods,
		log.FieldProcessed, msg.Processed)

	periods := msg.LedgerPeriods()
	if err := w.ledger.WarmSummaries(ctx, periods); err != nil {
		return fmt.Errorf("warm summaries: %w", err)
	}
	for _, p := range periods {
		if err := w.logSettlement(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// StartupWarm preloads the most recent periods so the first reads after a
// restart are served from cache.
func (w *PeriodWorker) StartupWarm(ctx context.Context) error {
	if w.startupWarm <= 0 {
		return nil
	}
	counts, err := w.ledger.Periods(ctx)
	if err != nil {
		return fmt.Errorf("list periods for startup warm: %w", err)
	}
	if len(counts) == 0 {
		w.logger.InfoContext(ctx, "No stored periods found on startup")
		return nil
	}
	periods := make([]core.Period, 0, w.startupWarm)
	for _, c := range counts {
		if len(periods) == w.startupWarm {
			break
		}
		periods = append(periods, c.Period)
	}
	if err := w.ledger.WarmSummaries(ctx, periods); err != nil {
		return fmt.Errorf("startup warm: %w", err)
	}
	w.logger.InfoContext(ctx, "Startup warm complete", log.FieldPeriods, periods)
	return nil
}

func (w *PeriodWorker) logSettlement(ctx context.Context, period core.Period) error {
	sum, settlement, err := w.ledger.Settle(ctx, period)
	if err != nil {
		return fmt.Errorf("settle %s: %w", period, err)
	}
	w.logger.InfoContext(ctx, "Period settled",
		log.FieldPeriod, string(period),
		log.FieldGrandTotal, sum.GrandTotal,
		log.FieldPersons, sum.PersonCount,
		"fair_share", settlement.FairShare,
		log.FieldTransfers, len(settlement.Transfers))
	for _, t := range settlement.Transfers {
		w.logger.InfoContext(ctx, "Settlement transfer",
			log.FieldPeriod, string(period),
			"from", t.From,
			"to", t.To,
			"amount", t.Amount)
	}
	return nil
}
