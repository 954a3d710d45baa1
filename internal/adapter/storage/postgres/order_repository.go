package postgres

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wizmogmbh/ivy-gateway/internal/domain"
	"github.com/wizmogmbh/ivy-gateway/internal/ports"
)

// OrderRepository reads the shop's order table. This service never writes
// orders directly; materialization goes through the shop API.
type OrderRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewOrderRepository(db *gorm.DB, log *zap.Logger) ports.OrderRepository {
	return &OrderRepository{
		db:  db,
		log: log,
	}
}

// FindByReference looks the order up by primary key first, then falls back to
// the order number. Provider callbacks carry whichever of the two the shop
// handed out at session time. Returns nil, nil when neither matches.
func (r *OrderRepository) FindByReference(ctx context.Context, reference string) (*domain.Order, error) {
	var order domain.Order
	err := r.db.WithContext(ctx).First(&order, "id = ?", reference).Error
	if err == nil {
		return &order, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = r.db.WithContext(ctx).First(&order, "order_number = ?", reference).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}
