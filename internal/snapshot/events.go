package snapshot

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/moolen/costlens/internal/models"
)

const (
	sqlEquipmentMetricEvents = `
		SELECT equip_cd, metric_type,
		       COALESCE(prev_value, 0), COALESCE(curr_value, 0),
		       COALESCE(chg_value, 0), COALESCE(chg_rate, 0)
		FROM evt_mes
		WHERE yyyymm = $1
		ORDER BY equip_cd, metric_type`

	sqlDesignChangeEvents = `
		SELECT event_id, product_cd, chg_type, COALESCE(chg_desc, '')
		FROM evt_plm
		WHERE yyyymm = $1
		ORDER BY event_id`

	sqlProcurementEvents = `
		SELECT event_id, mat_cd, chg_type,
		       COALESCE(prev_value, 0), COALESCE(curr_value, 0),
		       COALESCE(chg_rate, 0), COALESCE(chg_reason, '')
		FROM evt_purchase
		WHERE yyyymm = $1
		ORDER BY event_id`
)

// LoadEvents returns the month's events of all three feeds: equipment metrics,
// design changes and procurement changes, in that order
func (s *Store) LoadEvents(ctx context.Context, month models.Month) ([]models.Event, error) {
	ym := month.String()

	metrics, err := queryAll(ctx, s.pool, sqlEquipmentMetricEvents, func(rows pgx.Rows) (models.Event, error) {
		e := models.Event{Month: month, Source: models.EventSourceEquipmentMetric}
		var metric string
		if err := rows.Scan(&e.TargetRef, &metric, &e.PrevValue, &e.CurrValue, &e.ChangeValue, &e.ChangeRate); err != nil {
			return e, err
		}
		e.ID = models.EquipmentMetricEventID(month, e.TargetRef, metric)
		e.Type = models.EquipmentMetricEventType(metric)
		return e, nil
	}, ym)
	if err != nil {
		return nil, fmt.Errorf("failed to load equipment metric events for %s: %w", month, err)
	}

	designChanges, err := queryAll(ctx, s.pool, sqlDesignChangeEvents, func(rows pgx.Rows) (models.Event, error) {
		e := models.Event{Month: month, Source: models.EventSourceDesignChange}
		err := rows.Scan(&e.ID, &e.TargetRef, &e.Type, &e.Description)
		return e, err
	}, ym)
	if err != nil {
		return nil, fmt.Errorf("failed to load design change events for %s: %w", month, err)
	}

	purchases, err := queryAll(ctx, s.pool, sqlProcurementEvents, func(rows pgx.Rows) (models.Event, error) {
		e := models.Event{Month: month, Source: models.EventSourceProcurement}
		if err := rows.Scan(&e.ID, &e.TargetRef, &e.Type, &e.PrevValue, &e.CurrValue, &e.ChangeRate, &e.Description); err != nil {
			return e, err
		}
		e.ChangeValue = e.CurrValue - e.PrevValue
		return e, nil
	}, ym)
	if err != nil {
		return nil, fmt.Errorf("failed to load procurement events for %s: %w", month, err)
	}

	events := make([]models.Event, 0, len(metrics)+len(designChanges)+len(purchases))
	events = append(events, metrics...)
	events = append(events, designChanges...)
	events = append(events, purchases...)
	return events, nil
}
