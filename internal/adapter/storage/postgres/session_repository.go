package postgres

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wizmogmbh/ivy-gateway/internal/domain"
	"github.com/wizmogmbh/ivy-gateway/internal/ports"
)

type SessionRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewSessionRepository(db *gorm.DB, log *zap.Logger) ports.PaymentSessionRepository {
	return &SessionRepository{
		db:  db,
		log: log,
	}
}

func (r *SessionRepository) FindByReference(ctx context.Context, referenceID string) (*domain.PaymentSession, error) {
	var session domain.PaymentSession
	err := r.db.WithContext(ctx).First(&session, "reference_id = ?", referenceID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) FindByIvyOrderID(ctx context.Context, ivyOrderID string) (*domain.PaymentSession, error) {
	var session domain.PaymentSession
	err := r.db.WithContext(ctx).First(&session, "ivy_order_id = ?", ivyOrderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// Upsert applies a partial update to the session row, creating it if absent.
// The row is locked for the duration of the transaction so the merge is safe
// under concurrent webhook deliveries for the same reference.
//
// Merge rules:
//   - Status and CO2Grams overwrite when set.
//   - IvySessionID and IvyOrderID are written once and then kept; later
//     writes with a different value are ignored.
//   - LinkedOrderID is written exactly once; a write with a different value
//     against an already linked session fails with ErrOrderAlreadyLinked.
//     Linking also clears ExpressTempData, which only matters pre-order.
//   - ExpressTempData is merged key by key.
func (r *SessionRepository) Upsert(ctx context.Context, update *domain.SessionUpdate) (*domain.PaymentSession, error) {
	var out *domain.PaymentSession

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session domain.PaymentSession
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&session, "reference_id = ?", update.ReferenceID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			session = domain.PaymentSession{ReferenceID: update.ReferenceID}
		} else if err != nil {
			return err
		}

		if err := applyUpdate(&session, update); err != nil {
			return err
		}

		if err := tx.Save(&session).Error; err != nil {
			return err
		}
		out = &session
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Debug("session upserted",
		zap.String("reference_id", out.ReferenceID),
		zap.String("status", out.Status),
	)
	return out, nil
}

func applyUpdate(session *domain.PaymentSession, update *domain.SessionUpdate) error {
	if update.LinkedOrderID != nil {
		if session.LinkedOrderID != nil && *session.LinkedOrderID != *update.LinkedOrderID {
			return domain.ErrOrderAlreadyLinked
		}
		session.LinkedOrderID = update.LinkedOrderID
		session.ExpressTempData = nil
	}

	if update.Status != nil {
		session.Status = *update.Status
	}
	if update.CO2Grams != nil {
		session.CO2Grams = *update.CO2Grams
	}
	if update.IvySessionID != nil && session.IvySessionID == "" {
		session.IvySessionID = *update.IvySessionID
	}
	if update.IvyOrderID != nil && session.IvyOrderID == "" {
		session.IvyOrderID = *update.IvyOrderID
	}

	if len(update.ExpressTempData) > 0 && session.LinkedOrderID == nil {
		if session.ExpressTempData == nil {
			session.ExpressTempData = domain.JSONMap{}
		}
		for k, v := range update.ExpressTempData {
			session.ExpressTempData[k] = v
		}
	}

	return nil
}
