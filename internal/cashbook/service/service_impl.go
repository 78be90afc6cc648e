package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/schuelerfirma/kiosk/internal/cashbook/domain"
	"github.com/schuelerfirma/kiosk/internal/clock"
	"github.com/schuelerfirma/kiosk/internal/config"
	obsmetrics "github.com/schuelerfirma/kiosk/internal/observability/metrics"
	"github.com/schuelerfirma/kiosk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Holder     *config.CashbookConfigHolder
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	holder     *config.CashbookConfigHolder
	obsMetrics *obsmetrics.Metrics

	// Mutations are serialized per company. Two concurrent
	// read-recompute-write sequences on the same company would otherwise
	// interleave and leave a stale balance chain behind.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("cashbook.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		holder:     p.Holder,
		obsMetrics: p.ObsMetrics,
		locks:      make(map[string]*sync.Mutex),
	}
}

func (s *Service) companyLock(company string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[company]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[company] = lock
	}
	return lock
}

func (s *Service) validCompany(company string) error {
	if strings.TrimSpace(company) == "" {
		return domain.ErrUnknownCompany
	}
	if s.holder != nil && !s.holder.Knows(company) {
		return domain.ErrUnknownCompany
	}
	return nil
}

func (s *Service) NextReceiptNumber(ctx context.Context, company string) (int, error) {
	if err := s.validCompany(company); err != nil {
		return 0, err
	}
	return s.nextReceiptNumber(ctx, s.db, company)
}

func (s *Service) nextReceiptNumber(ctx context.Context, tx *gorm.DB, company string) (int, error) {
	var last domain.Entry
	err := tx.WithContext(ctx).
		Where("company = ?", company).
		Order("receipt_number desc").
		First(&last).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 1, nil
		}
		return 0, err
	}
	return last.ReceiptNumber + 1, nil
}

func (s *Service) CurrentBalance(ctx context.Context, company string) (int64, error) {
	if err := s.validCompany(company); err != nil {
		return 0, err
	}
	var last domain.Entry
	err := s.db.WithContext(ctx).
		Where("company = ?", company).
		Order("entry_date desc, id desc").
		First(&last).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, err
	}
	return last.BalanceCents, nil
}

func (s *Service) ListEntries(ctx context.Context, company string) ([]domain.Entry, error) {
	if err := s.validCompany(company); err != nil {
		return nil, err
	}
	return s.orderedEntries(ctx, s.db, company)
}

// orderedEntries is the one place the chronological order is spelled out:
// entry_date ascending, id ascending as the same-day tie-break. Every
// recalculation walks exactly this sequence.
func (s *Service) orderedEntries(ctx context.Context, tx *gorm.DB, company string) ([]domain.Entry, error) {
	var entries []domain.Entry
	err := tx.WithContext(ctx).
		Where("company = ?", company).
		Order("entry_date asc, id asc").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Service) CreateEntry(ctx context.Context, req domain.CreateEntryRequest) (domain.Entry, error) {
	if err := s.validCompany(req.Company); err != nil {
		return domain.Entry{}, err
	}
	if strings.TrimSpace(req.Description) == "" {
		return domain.Entry{}, domain.ErrInvalidDescription
	}
	if req.IncomeCents < 0 || req.ExpenseCents < 0 {
		return domain.Entry{}, domain.ErrInvalidAmount
	}
	entryDate := req.EntryDate
	if entryDate.IsZero() {
		entryDate = s.clock.Now()
	}
	entryDate = domain.DateOnly(entryDate)

	lock := s.companyLock(req.Company)
	lock.Lock()
	defer lock.Unlock()

	var entry domain.Entry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		receipt := req.ReceiptNumber
		if receipt == 0 {
			next, err := s.nextReceiptNumber(ctx, tx, req.Company)
			if err != nil {
				return err
			}
			receipt = next
		} else {
			var count int64
			if err := tx.WithContext(ctx).Model(&domain.Entry{}).
				Where("company = ? AND receipt_number = ?", req.Company, receipt).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return domain.ErrReceiptNumberTaken
			}
		}

		// Seed from the chronological predecessor, not the last created
		// row. A backdated insert may land anywhere in the order.
		prevBalance, err := s.balanceBefore(ctx, tx, req.Company, entryDate)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		entry = domain.Entry{
			ID:            s.genID.Generate(),
			Company:       req.Company,
			ReceiptNumber: receipt,
			EntryDate:     entryDate,
			Memo:          req.Memo,
			Description:   strings.TrimSpace(req.Description),
			IncomeCents:   req.IncomeCents,
			ExpenseCents:  req.ExpenseCents,
			BalanceCents:  prevBalance + req.IncomeCents - req.ExpenseCents,
			CreatedBy:     req.CreatedBy,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrReceiptNumberTaken
			}
			return err
		}

		// Seeding only fixed the new row; everything chronologically after
		// it still carries the old chain.
		return s.recalcAll(ctx, tx, req.Company)
	})
	if err != nil {
		return domain.Entry{}, err
	}

	s.obsMetrics.IncCashbookRecalc(req.Company, "create")
	s.log.Info("cashbook entry created",
		zap.String("company", req.Company),
		zap.Int("receipt_number", entry.ReceiptNumber),
		zap.String("entry_date", entry.EntryDate.Format("2006-01-02")),
	)

	return s.reload(ctx, entry.ID)
}

func (s *Service) UpdateEntry(ctx context.Context, req domain.UpdateEntryRequest) (domain.Entry, error) {
	if err := s.validCompany(req.Company); err != nil {
		return domain.Entry{}, err
	}
	if req.IncomeCents != nil && *req.IncomeCents < 0 {
		return domain.Entry{}, domain.ErrInvalidAmount
	}
	if req.ExpenseCents != nil && *req.ExpenseCents < 0 {
		return domain.Entry{}, domain.ErrInvalidAmount
	}
	if req.Description != nil && strings.TrimSpace(*req.Description) == "" {
		return domain.Entry{}, domain.ErrInvalidDescription
	}

	lock := s.companyLock(req.Company)
	lock.Lock()
	defer lock.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry domain.Entry
		err := tx.WithContext(ctx).
			Where("company = ? AND id = ?", req.Company, req.ID).
			First(&entry).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return domain.ErrNotFound
			}
			return err
		}

		dateChanged := false
		if !req.EntryDate.IsZero() {
			newDate := domain.DateOnly(req.EntryDate)
			if !newDate.Equal(entry.EntryDate) {
				entry.EntryDate = newDate
				dateChanged = true
			}
		}
		if req.Memo != nil {
			entry.Memo = *req.Memo
		}
		if req.Description != nil {
			entry.Description = strings.TrimSpace(*req.Description)
		}
		if req.IncomeCents != nil {
			entry.IncomeCents = *req.IncomeCents
		}
		if req.ExpenseCents != nil {
			entry.ExpenseCents = *req.ExpenseCents
		}
		entry.UpdatedAt = s.clock.Now()

		if err := tx.WithContext(ctx).Save(&entry).Error; err != nil {
			return err
		}

		// A date change moves the entry within the order, which can leave
		// stale balances on rows between its old and new position. Only
		// the full rebuild is unconditionally correct there.
		if dateChanged {
			return s.recalcAll(ctx, tx, req.Company)
		}
		return s.recalcFromEntry(ctx, tx, req.Company, req.ID)
	})
	if err != nil {
		return domain.Entry{}, err
	}

	s.obsMetrics.IncCashbookRecalc(req.Company, "update")
	return s.reload(ctx, req.ID)
}

func (s *Service) DeleteEntry(ctx context.Context, company string, id snowflake.ID) error {
	if err := s.validCompany(company); err != nil {
		return err
	}

	lock := s.companyLock(company)
	lock.Lock()
	defer lock.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).
			Where("company = ? AND id = ?", company, id).
			Delete(&domain.Entry{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		// The id is gone, so this takes the recalculate-from-the-start
		// fallback inside recalcFromEntry.
		return s.recalcFromEntry(ctx, tx, company, id)
	})
	if err != nil {
		return err
	}

	s.obsMetrics.IncCashbookRecalc(company, "delete")
	return nil
}

func (s *Service) RecalcAll(ctx context.Context, tx *gorm.DB, company string) error {
	if err := s.validCompany(company); err != nil {
		return err
	}
	if tx != nil {
		return s.recalcAll(ctx, tx, company)
	}

	lock := s.companyLock(company)
	lock.Lock()
	defer lock.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.recalcAll(ctx, tx, company)
	})
}

func (s *Service) RecalcFromEntry(ctx context.Context, tx *gorm.DB, company string, id snowflake.ID) error {
	if err := s.validCompany(company); err != nil {
		return err
	}
	if tx != nil {
		return s.recalcFromEntry(ctx, tx, company, id)
	}

	lock := s.companyLock(company)
	lock.Lock()
	defer lock.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.recalcFromEntry(ctx, tx, company, id)
	})
}

// recalcAll rebuilds the whole chain from zero. It never reads prior balance
// values, so it is idempotent and safe on a corrupted chain.
func (s *Service) recalcAll(ctx context.Context, tx *gorm.DB, company string) error {
	entries, err := s.orderedEntries(ctx, tx, company)
	if err != nil {
		return err
	}

	var balance int64
	for i := range entries {
		balance += entries[i].IncomeCents - entries[i].ExpenseCents
		if entries[i].BalanceCents == balance {
			continue
		}
		if err := tx.WithContext(ctx).Model(&domain.Entry{}).
			Where("id = ?", entries[i].ID).
			Update("balance_cents", balance).Error; err != nil {
			return err
		}
	}
	return nil
}

// recalcFromEntry recomputes balances from the given entry forward. Every
// later entry transitively depends on the edited entry's delta, so all of
// them are rewritten, not just the edited row.
func (s *Service) recalcFromEntry(ctx context.Context, tx *gorm.DB, company string, id snowflake.ID) error {
	entries, err := s.orderedEntries(ctx, tx, company)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	start := 0
	var balance int64
	for i := range entries {
		if entries[i].ID == id {
			start = i
			if i > 0 {
				balance = entries[i-1].BalanceCents
			}
			break
		}
	}
	// Unknown id (typically just deleted): start stays at 0 with a zero
	// previous balance, i.e. recalculate everything.

	for i := start; i < len(entries); i++ {
		balance += entries[i].IncomeCents - entries[i].ExpenseCents
		if entries[i].BalanceCents == balance {
			continue
		}
		if err := tx.WithContext(ctx).Model(&domain.Entry{}).
			Where("id = ?", entries[i].ID).
			Update("balance_cents", balance).Error; err != nil {
			return err
		}
	}
	return nil
}

// balanceBefore returns the balance of the entry chronologically preceding a
// prospective new entry on the given date. Same-day entries count as
// predecessors because a new row always gets the newest id.
func (s *Service) balanceBefore(ctx context.Context, tx *gorm.DB, company string, date time.Time) (int64, error) {
	var prev domain.Entry
	err := tx.WithContext(ctx).
		Where("company = ? AND entry_date <= ?", company, date).
		Order("entry_date desc, id desc").
		First(&prev).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, nil
		}
		return 0, err
	}
	return prev.BalanceCents, nil
}

func (s *Service) PostPayment(ctx context.Context, tx *gorm.DB, posting domain.PaymentPosting) (*domain.Entry, error) {
	if posting.Status != domain.PaymentStatusPaid {
		return nil, nil
	}
	if posting.AmountCents <= 0 {
		return nil, nil
	}

	company := posting.Company
	if company == "" && s.holder != nil {
		company = s.holder.Get().AutoCompany
	}
	if company == "" {
		return nil, nil
	}

	lock := s.companyLock(company)
	lock.Lock()
	defer lock.Unlock()

	var entry *domain.Entry
	post := func(tx *gorm.DB) error {
		var err error
		entry, err = s.postPayment(ctx, tx, company, posting)
		return err
	}

	var err error
	if tx != nil {
		err = post(tx)
	} else {
		err = s.db.WithContext(ctx).Transaction(post)
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) postPayment(ctx context.Context, tx *gorm.DB, company string, posting domain.PaymentPosting) (*domain.Entry, error) {
	marker := fmt.Sprintf("payment_id:%d", posting.PaymentID)

	var existing domain.Entry
	err := tx.WithContext(ctx).
		Where("company = ? AND memo = ?", company, marker).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	paidAt := s.clock.Now()
	if posting.PaidAt != nil {
		paidAt = *posting.PaidAt
	}
	entryDate := domain.DateOnly(paidAt)

	prevBalance, err := s.balanceBefore(ctx, tx, company, entryDate)
	if err != nil {
		return nil, err
	}
	receipt, err := s.nextReceiptNumber(ctx, tx, company)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	entry := domain.Entry{
		ID:            s.genID.Generate(),
		Company:       company,
		ReceiptNumber: receipt,
		EntryDate:     entryDate,
		Memo:          marker,
		Description:   describePayment(posting),
		IncomeCents:   posting.AmountCents,
		ExpenseCents:  0,
		BalanceCents:  prevBalance + posting.AmountCents,
		CreatedBy:     "System",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, err
	}

	// The payment date may be historical relative to other postings; a full
	// rebuild is the only cheap way to guarantee the chain afterwards.
	if err := s.recalcAll(ctx, tx, company); err != nil {
		return nil, err
	}

	s.obsMetrics.IncPaymentPosted(posting.Method)
	s.log.Info("payment posted to cashbook",
		zap.String("company", company),
		zap.String("payment_id", posting.PaymentID.String()),
		zap.Int64("amount_cents", posting.AmountCents),
	)

	if err := tx.WithContext(ctx).First(&entry, "id = ?", entry.ID).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

var methodLabels = map[string]string{
	"paypal":     "PayPal",
	"cash":       "Bar",
	"mypos_card": "Karte",
	"revolut":    "Revolut",
}

func describePayment(posting domain.PaymentPosting) string {
	method, ok := methodLabels[posting.Method]
	if !ok && posting.Method != "" {
		method = strings.ToUpper(posting.Method[:1]) + posting.Method[1:]
	} else if !ok {
		method = "Unbekannt"
	}
	payer := strings.TrimSpace(posting.PayerName)
	if payer == "" {
		payer = fmt.Sprintf("Zahlung #%d", posting.PaymentID)
	}
	return fmt.Sprintf("%s-Zahlung %s", method, payer)
}

func (s *Service) reload(ctx context.Context, id snowflake.ID) (domain.Entry, error) {
	var entry domain.Entry
	if err := s.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		return domain.Entry{}, err
	}
	return entry, nil
}
