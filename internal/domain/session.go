package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Session status values written by this service. The provider's own status
// strings (paid, failed, ...) are written verbatim as an audit trail, so the
// column is free-form and these constants only cover the locally issued ones.
const (
	SessionStatusInitNormal  = "initNormal"
	SessionStatusInitExpress = "initExpress"
	SessionStatusCreateOrder = "createOrder"
	SessionStatusFinal       = "final"
	SessionStatusFailed      = "failed"
	SessionStatusCanceled    = "canceled"
)

// ErrOrderAlreadyLinked is returned when a write tries to re-link a session
// to a different local order. A session links to exactly one order, ever.
var ErrOrderAlreadyLinked = errors.New("payment session already linked to another order")

// PaymentSession is the one row of state this service owns per checkout
// attempt. ReferenceID doubles as the provider's referenceId and correlates
// everything: the local cart, the provider session and, once materialized,
// the local order.
type PaymentSession struct {
	ReferenceID     string    `json:"reference_id" gorm:"primaryKey;column:reference_id"`
	Status          string    `json:"status"`
	IvySessionID    string    `json:"ivy_session_id" gorm:"index"`
	IvyOrderID      string    `json:"ivy_order_id" gorm:"index"`
	LinkedOrderID   *string   `json:"linked_order_id,omitempty" gorm:"index"`
	ExpressTempData JSONMap   `json:"express_temp_data,omitempty" gorm:"type:jsonb"`
	CO2Grams        string    `json:"co2_grams,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (PaymentSession) TableName() string {
	return "ivy_payment_sessions"
}

// SessionUpdate is a partial write against a PaymentSession. Nil fields are
// left untouched by Upsert; ExpressTempData is merged key by key.
type SessionUpdate struct {
	ReferenceID     string
	Status          *string
	IvySessionID    *string
	IvyOrderID      *string
	LinkedOrderID   *string
	ExpressTempData JSONMap
	CO2Grams        *string
}

// JSONMap is a helper type for JSONB columns
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", value)
	}
	return json.Unmarshal(raw, m)
}

// Str reads a string value out of the map, tolerating absent keys.
func (m JSONMap) Str(key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
