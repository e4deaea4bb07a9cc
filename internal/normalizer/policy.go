package normalizer

import (
	"time"

	"github.com/shopspring/decimal"

	"nexledger-reconciler/internal/models"
)

// Normalizer applies a Policy and DateOrder to raw statement values.
type Normalizer struct {
	Policy Policy
	Order  DateOrder
	// Now supplies the default date in lenient mode.
	Now func() time.Time
}

// New creates a Normalizer
func New(policy Policy, order DateOrder) *Normalizer {
	if policy == "" {
		policy = PolicyLenient
	}
	if order == "" {
		order = DateOrderAuto
	}
	return &Normalizer{Policy: policy, Order: order, Now: time.Now}
}

// Strict reports whether unparseable values are errors.
func (n *Normalizer) Strict() bool {
	return n.Policy == PolicyStrict
}

// Date parses s. In lenient mode a failure yields today and defaulted=true;
// in strict mode the parse error is returned.
func (n *Normalizer) Date(s string) (t time.Time, defaulted bool, err error) {
	t, err = ParseDate(s, n.Order)
	if err == nil {
		return t, false, nil
	}
	if n.Strict() {
		return time.Time{}, false, err
	}
	return models.DateOnly(n.now()), true, nil
}

// Amount parses s. In lenient mode a failure yields zero and defaulted=true.
func (n *Normalizer) Amount(s string) (d decimal.Decimal, defaulted bool, err error) {
	d, err = ParseAmount(s)
	if err == nil {
		return d, false, nil
	}
	if n.Strict() {
		return decimal.Zero, false, err
	}
	return decimal.Zero, true, nil
}

func (n *Normalizer) now() time.Time {
	if n.Now == nil {
		return time.Now()
	}
	return n.Now()
}
