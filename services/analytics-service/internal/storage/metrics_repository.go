package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/bookly/libs/db"
	"github.com/md-rashed-zaman/bookly/services/analytics-service/internal/metrics"
)

type Counters struct {
	Booked         int   `json:"booked"`
	Cancelled      int   `json:"cancelled"`
	Expired        int   `json:"expired"`
	Completed      int   `json:"completed"`
	NoShow         int   `json:"noShow"`
	Paid           int   `json:"paid"`
	PaidAmount     int64 `json:"paidAmount"`
	Refunded       int   `json:"refunded"`
	RefundedAmount int64 `json:"refundedAmount"`
	NetRevenue     int64 `json:"netRevenue"`
}

type DayCounters struct {
	Day string `json:"day"`
	Counters
}

type ServiceCounters struct {
	ServiceID string `json:"serviceId"`
	Counters
}

type Summary struct {
	From     string            `json:"from"`
	To       string            `json:"to"`
	Totals   Counters          `json:"totals"`
	Days     []DayCounters     `json:"days"`
	Services []ServiceCounters `json:"services"`
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ metrics.Store = (*Repository)(nil)

func (r *Repository) Apply(ctx context.Context, eventID, eventType string, k metrics.Key, d metrics.Delta) (bool, error) {
	applied := false
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO processed_events (event_id, event_type)
			VALUES ($1, $2)
			ON CONFLICT (event_id) DO NOTHING
		`, eventID, eventType)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO daily_provider_metrics (provider_id, service_id, day, booked_count, cancelled_count, expired_count,
			    completed_count, no_show_count, paid_count, paid_amount, refunded_count, refunded_amount)
			VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (provider_id, service_id, day)
			DO UPDATE SET booked_count    = daily_provider_metrics.booked_count + EXCLUDED.booked_count,
			              cancelled_count = daily_provider_metrics.cancelled_count + EXCLUDED.cancelled_count,
			              expired_count   = daily_provider_metrics.expired_count + EXCLUDED.expired_count,
			              completed_count = daily_provider_metrics.completed_count + EXCLUDED.completed_count,
			              no_show_count   = daily_provider_metrics.no_show_count + EXCLUDED.no_show_count,
			              paid_count      = daily_provider_metrics.paid_count + EXCLUDED.paid_count,
			              paid_amount     = daily_provider_metrics.paid_amount + EXCLUDED.paid_amount,
			              refunded_count  = daily_provider_metrics.refunded_count + EXCLUDED.refunded_count,
			              refunded_amount = daily_provider_metrics.refunded_amount + EXCLUDED.refunded_amount,
			              updated_at      = now()
		`, k.ProviderID, k.ServiceID, k.Day, d.Booked, d.Cancelled, d.Expired, d.Completed, d.NoShow,
			d.Paid, d.PaidAmount, d.Refunded, d.RefundedAmount); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

const counterSums = `
	COALESCE(SUM(booked_count), 0), COALESCE(SUM(cancelled_count), 0), COALESCE(SUM(expired_count), 0),
	COALESCE(SUM(completed_count), 0), COALESCE(SUM(no_show_count), 0), COALESCE(SUM(paid_count), 0),
	COALESCE(SUM(paid_amount), 0)::bigint, COALESCE(SUM(refunded_count), 0), COALESCE(SUM(refunded_amount), 0)::bigint`

func scanCounters(row pgx.Row, lead ...any) (Counters, error) {
	var c Counters
	dest := append(lead, &c.Booked, &c.Cancelled, &c.Expired, &c.Completed, &c.NoShow, &c.Paid,
		&c.PaidAmount, &c.Refunded, &c.RefundedAmount)
	if err := row.Scan(dest...); err != nil {
		return Counters{}, err
	}
	c.NetRevenue = c.PaidAmount - c.RefundedAmount
	return c, nil
}

// Summary aggregates a provider's counters for the inclusive day range [from, to].
func (r *Repository) Summary(ctx context.Context, providerID, from, to string) (Summary, error) {
	out := Summary{From: from, To: to, Days: []DayCounters{}, Services: []ServiceCounters{}}

	totals, err := scanCounters(r.pool.QueryRow(ctx, `
		SELECT `+counterSums+`
		FROM daily_provider_metrics
		WHERE provider_id = $1 AND day BETWEEN $2::date AND $3::date
	`, providerID, from, to))
	if err != nil {
		return Summary{}, err
	}
	out.Totals = totals

	rows, err := r.pool.Query(ctx, `
		SELECT to_char(day, 'YYYY-MM-DD'), `+counterSums+`
		FROM daily_provider_metrics
		WHERE provider_id = $1 AND day BETWEEN $2::date AND $3::date
		GROUP BY day
		ORDER BY day
	`, providerID, from, to)
	if err != nil {
		return Summary{}, err
	}
	days, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (DayCounters, error) {
		var d DayCounters
		c, err := scanCounters(row, &d.Day)
		d.Counters = c
		return d, err
	})
	if err != nil {
		return Summary{}, err
	}
	out.Days = append(out.Days, days...)

	rows, err = r.pool.Query(ctx, `
		SELECT service_id::text, `+counterSums+`
		FROM daily_provider_metrics
		WHERE provider_id = $1 AND day BETWEEN $2::date AND $3::date
		GROUP BY service_id
		ORDER BY COALESCE(SUM(paid_amount), 0) - COALESCE(SUM(refunded_amount), 0) DESC, service_id
	`, providerID, from, to)
	if err != nil {
		return Summary{}, err
	}
	services, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ServiceCounters, error) {
		var s ServiceCounters
		c, err := scanCounters(row, &s.ServiceID)
		s.Counters = c
		return s, err
	})
	if err != nil {
		return Summary{}, err
	}
	out.Services = append(out.Services, services...)
	return out, nil
}
