// README: AI quota module model (monthly per-user extraction allowance).
package aiquota

import "errors"

// ErrQuotaExhausted is returned when a user has no AI extractions left for the current month.
var ErrQuotaExhausted = errors.New("ai quota exhausted")

// DefaultAllowance is the number of AI extractions granted per month.
const DefaultAllowance = 100

// monthLayout is the period key stored in last_reset_month.
const monthLayout = "2006-01"
