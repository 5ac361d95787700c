package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"proppulse-risk/internal/grading"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertMetricSQL = `INSERT INTO market_metrics (
        source,
        region,
        metric_type,
        observed_at,
        value
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (source, region, metric_type, observed_at) DO UPDATE
    SET value = EXCLUDED.value,
        ingested_at = now();`

	listMetricsSinceSQL = `SELECT
        source,
        region,
        metric_type,
        observed_at,
        value,
        ingested_at
    FROM market_metrics
    WHERE region = ANY($1)
      AND observed_at >= $2
    ORDER BY observed_at;`

	latestMetricValueSQL = `SELECT value, observed_at
    FROM market_metrics
    WHERE metric_type = $1
    ORDER BY observed_at DESC
    LIMIT 1;`

	countMetricsSQL = `SELECT COUNT(*) FROM market_metrics;`

	upsertAssumptionsSQL = `INSERT INTO property_assumptions (
        property_id,
        developer_id,
        region,
        purchase_price,
        size_sqft,
        base_daily_rate,
        base_occupancy,
        service_charge_rate,
        appreciation_mean,
        appreciation_stdev,
        horizon_years,
        developer_risk_score
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    )
    ON CONFLICT (property_id) DO UPDATE
    SET developer_id         = EXCLUDED.developer_id,
        region               = EXCLUDED.region,
        purchase_price       = EXCLUDED.purchase_price,
        size_sqft            = EXCLUDED.size_sqft,
        base_daily_rate      = EXCLUDED.base_daily_rate,
        base_occupancy       = EXCLUDED.base_occupancy,
        service_charge_rate  = EXCLUDED.service_charge_rate,
        appreciation_mean    = EXCLUDED.appreciation_mean,
        appreciation_stdev   = EXCLUDED.appreciation_stdev,
        horizon_years        = EXCLUDED.horizon_years,
        developer_risk_score = EXCLUDED.developer_risk_score,
        updated_at           = now();`

	selectAssumptionsColumns = `property_id,
        developer_id,
        region,
        purchase_price,
        size_sqft,
        base_daily_rate,
        base_occupancy,
        service_charge_rate,
        appreciation_mean,
        appreciation_stdev,
        horizon_years,
        developer_risk_score,
        updated_at`

	getAssumptionsSQL = `SELECT ` + selectAssumptionsColumns + `
    FROM property_assumptions
    WHERE property_id = $1;`

	listPropertiesSQL = `SELECT ` + selectAssumptionsColumns + `
    FROM property_assumptions
    ORDER BY property_id;`

	insertRunSQL = `INSERT INTO simulation_runs (
        run_id,
        property_id,
        seed,
        trial_count,
        invalid_trial_count,
        mean_irr,
        irr_p5,
        irr_p25,
        irr_p50,
        irr_p75,
        irr_p95,
        prob_negative_irr,
        breakeven_year_mean,
        year_one_yield_mean,
        histogram,
        grade,
        developer_score
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
    )
    RETURNING created_at;`

	selectRunColumns = `run_id,
        property_id,
        seed,
        trial_count,
        invalid_trial_count,
        mean_irr,
        irr_p5,
        irr_p25,
        irr_p50,
        irr_p75,
        irr_p95,
        prob_negative_irr,
        breakeven_year_mean,
        year_one_yield_mean,
        histogram,
        grade,
        developer_score,
        created_at`

	getRunSQL = `SELECT ` + selectRunColumns + `
    FROM simulation_runs
    WHERE run_id = $1;`

	getCurrentRunSQL = `SELECT ` + selectRunColumns + `
    FROM simulation_runs
    WHERE run_id = (
        SELECT current_run_id FROM property_risk_state WHERE property_id = $1
    );`

	listRunsByPropertySQL = `SELECT ` + selectRunColumns + `
    FROM simulation_runs
    WHERE property_id = $1
    ORDER BY created_at DESC
    LIMIT $2;`

	getTrialsSQL = `SELECT
        run_id,
        trial_index,
        irr,
        npv,
        terminal_value,
        valid
    FROM simulation_trials
    WHERE run_id = $1
    ORDER BY trial_index;`

	upsertRiskStateSQL = `INSERT INTO property_risk_state (
        property_id,
        current_run_id,
        current_grade
    ) VALUES (
        $1,$2,$3
    )
    ON CONFLICT (property_id) DO UPDATE
    SET current_run_id = EXCLUDED.current_run_id,
        current_grade  = EXCLUDED.current_grade,
        updated_at     = now();`

	getRiskStateSQL = `SELECT
        property_id,
        current_run_id,
        current_grade,
        last_alerted_grade,
        updated_at
    FROM property_risk_state
    WHERE property_id = $1;`

	listPropertyIDsByGradeSQL = `SELECT property_id
    FROM property_risk_state
    WHERE current_grade = $1
    ORDER BY property_id;`

	insertAlertEventSQL = `INSERT INTO alert_events (
        property_id,
        run_id,
        previous_grade,
        new_grade
    ) VALUES (
        $1,$2,$3,$4
    )
    RETURNING id, created_at;`

	setLastAlertedGradeSQL = `UPDATE property_risk_state
    SET last_alerted_grade = $2,
        updated_at         = now()
    WHERE property_id = $1;`

	listUndispatchedAlertsSQL = `SELECT
        id,
        property_id,
        run_id,
        previous_grade,
        new_grade,
        dispatched,
        created_at
    FROM alert_events
    WHERE dispatched = FALSE
    ORDER BY created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        property_id,
        run_id,
        previous_grade,
        new_grade,
        dispatched,
        created_at
    FROM alert_events
    ORDER BY created_at DESC
    LIMIT $1;`

	markAlertDispatchedSQL = `UPDATE alert_events
    SET dispatched = TRUE
    WHERE id = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// MetricStore defines operations for market metric persistence.
type MetricStore interface {
	UpsertMetric(ctx context.Context, metric MarketMetric) error
	ListMetricsSince(ctx context.Context, regions []string, since time.Time) ([]MarketMetric, error)
	LatestMetricValue(ctx context.Context, metricType string) (float64, time.Time, error)
	CountMetrics(ctx context.Context) (int64, error)
}

// PropertyStore defines operations on the underwriting assumption rows.
type PropertyStore interface {
	UpsertAssumptions(ctx context.Context, a PropertyAssumptions) error
	GetAssumptions(ctx context.Context, propertyID string) (PropertyAssumptions, error)
	ListProperties(ctx context.Context) ([]PropertyAssumptions, error)
}

// RunStore defines operations for simulation run persistence.
type RunStore interface {
	SaveRun(ctx context.Context, run SimulationRun, trials []TrialRecord) error
	GetRun(ctx context.Context, runID uuid.UUID) (SimulationRun, error)
	GetCurrentRun(ctx context.Context, propertyID string) (SimulationRun, error)
	ListRunsByProperty(ctx context.Context, propertyID string, limit int) ([]SimulationRun, error)
	GetTrials(ctx context.Context, runID uuid.UUID) ([]TrialRecord, error)
	GetRiskState(ctx context.Context, propertyID string) (RiskState, error)
	ListPropertyIDsByGrade(ctx context.Context, grade grading.Grade) ([]string, error)
}

// AlertStore defines operations for alert event auditing and dispatch.
type AlertStore interface {
	RecordAlert(ctx context.Context, event AlertEvent) (AlertEvent, error)
	SetLastAlertedGrade(ctx context.Context, propertyID string, grade grading.Grade) error
	ListUndispatchedAlerts(ctx context.Context) ([]AlertEvent, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertEvent, error)
	MarkAlertDispatched(ctx context.Context, id int64) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to metrics, assumptions, runs and alert events.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// PropertyLockKey derives a stable advisory lock key for a property so that
// concurrent pipeline runs across processes serialise per property.
func PropertyLockKey(propertyID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("proppulse:" + propertyID))
	return int64(h.Sum64())
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertMetric persists or updates a market metric point.
func (s *Store) UpsertMetric(ctx context.Context, metric MarketMetric) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, upsertMetricSQL,
		metric.Source,
		metric.Region,
		metric.MetricType,
		metric.ObservedAt,
		metric.Value,
	)
	if execErr != nil {
		return fmt.Errorf("upsert market metric: %w", execErr)
	}
	return nil
}

// ListMetricsSince lists metric points in the given regions observed at or
// after the cutoff, ordered by observation time.
func (s *Store) ListMetricsSince(ctx context.Context, regions []string, since time.Time) ([]MarketMetric, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listMetricsSinceSQL, regions, since)
	if queryErr != nil {
		return nil, fmt.Errorf("list metrics since: %w", queryErr)
	}
	defer rows.Close()

	metrics := make([]MarketMetric, 0)
	for rows.Next() {
		var m MarketMetric
		if err := rows.Scan(
			&m.Source,
			&m.Region,
			&m.MetricType,
			&m.ObservedAt,
			&m.Value,
			&m.IngestedAt,
		); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return metrics, nil
}

// LatestMetricValue returns the newest observation for an exact metric type.
func (s *Store) LatestMetricValue(ctx context.Context, metricType string) (float64, time.Time, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, time.Time{}, err
	}
	var (
		value      float64
		observedAt time.Time
	)
	if scanErr := pool.QueryRow(ctx, latestMetricValueSQL, metricType).Scan(&value, &observedAt); scanErr != nil {
		return 0, time.Time{}, scanErr
	}
	return value, observedAt, nil
}

// CountMetrics counts stored metric points.
func (s *Store) CountMetrics(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countMetricsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count metrics: %w", scanErr)
	}
	return count, nil
}

// UpsertAssumptions persists or updates a property's underwriting inputs.
func (s *Store) UpsertAssumptions(ctx context.Context, a PropertyAssumptions) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	_, execErr := pool.Exec(ctx, upsertAssumptionsSQL,
		a.PropertyID,
		a.DeveloperID,
		a.Region,
		a.PurchasePrice.String(),
		a.SizeSqft,
		a.BaseDailyRate.String(),
		a.BaseOccupancy,
		a.ServiceChargeRate.String(),
		a.AppreciationMean,
		a.AppreciationStdev,
		a.HorizonYears,
		a.DeveloperRiskScore,
	)
	if execErr != nil {
		return fmt.Errorf("upsert assumptions: %w", execErr)
	}
	return nil
}

// GetAssumptions loads one property's underwriting inputs.
func (s *Store) GetAssumptions(ctx context.Context, propertyID string) (PropertyAssumptions, error) {
	pool, err := s.getPool()
	if err != nil {
		return PropertyAssumptions{}, err
	}
	return scanAssumptions(pool.QueryRow(ctx, getAssumptionsSQL, propertyID))
}

// ListProperties lists every property with stored assumptions.
func (s *Store) ListProperties(ctx context.Context) ([]PropertyAssumptions, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPropertiesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list properties: %w", queryErr)
	}
	defer rows.Close()

	properties := make([]PropertyAssumptions, 0)
	for rows.Next() {
		a, scanErr := scanAssumptions(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		properties = append(properties, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return properties, nil
}

// SaveRun persists a run aggregate, its trial rows and the property's current
// run pointer in a single transaction. A run either lands completely or not
// at all; a half-written run must never become the graded state.
func (s *Store) SaveRun(ctx context.Context, run SimulationRun, trials []TrialRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	histogram, marshalErr := json.Marshal(run.Histogram)
	if marshalErr != nil {
		return fmt.Errorf("marshal histogram: %w", marshalErr)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save run: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var createdAt time.Time
	if scanErr := tx.QueryRow(ctx, insertRunSQL,
		run.RunID,
		run.PropertyID,
		int64(run.Seed),
		run.TrialCount,
		run.InvalidTrialCount,
		run.MeanIRR,
		run.Percentiles.P5,
		run.Percentiles.P25,
		run.Percentiles.P50,
		run.Percentiles.P75,
		run.Percentiles.P95,
		run.ProbNegativeIRR,
		run.BreakevenYearMean,
		run.YearOneYieldMean,
		histogram,
		string(run.Grade),
		run.DeveloperScore,
	).Scan(&createdAt); scanErr != nil {
		return fmt.Errorf("insert run: %w", scanErr)
	}

	if len(trials) > 0 {
		copied, copyErr := tx.CopyFrom(ctx,
			pgx.Identifier{"simulation_trials"},
			[]string{"run_id", "trial_index", "irr", "npv", "terminal_value", "valid"},
			pgx.CopyFromSlice(len(trials), func(i int) ([]any, error) {
				t := trials[i]
				var irr any
				if !math.IsNaN(t.IRR) {
					irr = t.IRR
				}
				return []any{t.RunID, t.TrialIndex, irr, t.NPV, t.TerminalValue, t.Valid}, nil
			}),
		)
		if copyErr != nil {
			return fmt.Errorf("copy trials: %w", copyErr)
		}
		if copied != int64(len(trials)) {
			return fmt.Errorf("copy trials: copied %d of %d rows", copied, len(trials))
		}
	}

	if _, execErr := tx.Exec(ctx, upsertRiskStateSQL, run.PropertyID, run.RunID, string(run.Grade)); execErr != nil {
		return fmt.Errorf("update risk state: %w", execErr)
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return fmt.Errorf("commit save run: %w", commitErr)
	}
	return nil
}

// GetRun loads one run aggregate by id.
func (s *Store) GetRun(ctx context.Context, runID uuid.UUID) (SimulationRun, error) {
	pool, err := s.getPool()
	if err != nil {
		return SimulationRun{}, err
	}
	return scanRun(pool.QueryRow(ctx, getRunSQL, runID))
}

// GetCurrentRun loads the run the property's current pointer references.
func (s *Store) GetCurrentRun(ctx context.Context, propertyID string) (SimulationRun, error) {
	pool, err := s.getPool()
	if err != nil {
		return SimulationRun{}, err
	}
	return scanRun(pool.QueryRow(ctx, getCurrentRunSQL, propertyID))
}

// ListRunsByProperty lists a property's runs newest first.
func (s *Store) ListRunsByProperty(ctx context.Context, propertyID string, limit int) ([]SimulationRun, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRunsByPropertySQL, propertyID, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]SimulationRun, 0, limit)
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

// GetTrials loads a run's trial rows ordered by trial index.
func (s *Store) GetTrials(ctx context.Context, runID uuid.UUID) ([]TrialRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, getTrialsSQL, runID)
	if queryErr != nil {
		return nil, fmt.Errorf("get trials: %w", queryErr)
	}
	defer rows.Close()

	trials := make([]TrialRecord, 0)
	for rows.Next() {
		var (
			t   TrialRecord
			irr sql.NullFloat64
		)
		if err := rows.Scan(
			&t.RunID,
			&t.TrialIndex,
			&irr,
			&t.NPV,
			&t.TerminalValue,
			&t.Valid,
		); err != nil {
			return nil, err
		}
		if irr.Valid {
			t.IRR = irr.Float64
		} else {
			t.IRR = math.NaN()
		}
		trials = append(trials, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return trials, nil
}

// GetRiskState loads the per-property pointer row.
func (s *Store) GetRiskState(ctx context.Context, propertyID string) (RiskState, error) {
	pool, err := s.getPool()
	if err != nil {
		return RiskState{}, err
	}

	var (
		state       RiskState
		grade       string
		lastAlerted sql.NullString
	)
	if scanErr := pool.QueryRow(ctx, getRiskStateSQL, propertyID).Scan(
		&state.PropertyID,
		&state.CurrentRunID,
		&grade,
		&lastAlerted,
		&state.UpdatedAt,
	); scanErr != nil {
		return RiskState{}, scanErr
	}

	parsed, parseErr := grading.ParseGrade(grade)
	if parseErr != nil {
		return RiskState{}, fmt.Errorf("parse current grade: %w", parseErr)
	}
	state.CurrentGrade = parsed

	if lastAlerted.Valid {
		g, parseErr := grading.ParseGrade(lastAlerted.String)
		if parseErr != nil {
			return RiskState{}, fmt.Errorf("parse last alerted grade: %w", parseErr)
		}
		state.LastAlertedGrade = &g
	}
	return state, nil
}

// ListPropertyIDsByGrade lists properties whose current grade matches.
func (s *Store) ListPropertyIDsByGrade(ctx context.Context, grade grading.Grade) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPropertyIDsByGradeSQL, string(grade))
	if queryErr != nil {
		return nil, fmt.Errorf("list properties by grade: %w", queryErr)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ids, nil
}

// RecordAlert persists a grade-transition event and advances the property's
// last alerted grade in one transaction.
func (s *Store) RecordAlert(ctx context.Context, event AlertEvent) (AlertEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertEvent{}, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return AlertEvent{}, fmt.Errorf("begin record alert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// A property's first alert has no previous grade; persist NULL, not "".
	var prev any
	if event.PreviousGrade != grading.GradeUnset {
		prev = string(event.PreviousGrade)
	}

	rec := event
	if scanErr := tx.QueryRow(ctx, insertAlertEventSQL,
		event.PropertyID,
		event.RunID,
		prev,
		string(event.NewGrade),
	).Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return AlertEvent{}, fmt.Errorf("insert alert event: %w", scanErr)
	}

	cmdTag, execErr := tx.Exec(ctx, setLastAlertedGradeSQL, event.PropertyID, string(event.NewGrade))
	if execErr != nil {
		return AlertEvent{}, fmt.Errorf("set last alerted grade: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		// Without a state row the marker cannot advance and the same
		// transition would re-alert every run.
		return AlertEvent{}, fmt.Errorf("set last alerted grade for %s: %w", event.PropertyID, pgx.ErrNoRows)
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return AlertEvent{}, fmt.Errorf("commit record alert: %w", commitErr)
	}
	return rec, nil
}

// SetLastAlertedGrade advances the property's last-alerted marker without
// recording an event. Used when a property receives its first grade.
func (s *Store) SetLastAlertedGrade(ctx context.Context, propertyID string, grade grading.Grade) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, setLastAlertedGradeSQL, propertyID, string(grade))
	if execErr != nil {
		return fmt.Errorf("set last alerted grade: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("set last alerted grade for %s: %w", propertyID, pgx.ErrNoRows)
	}
	return nil
}

// ListUndispatchedAlerts lists events whose sinks have not all been notified.
func (s *Store) ListUndispatchedAlerts(ctx context.Context) ([]AlertEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listUndispatchedAlertsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list undispatched alerts: %w", queryErr)
	}
	defer rows.Close()
	return collectAlertEvents(rows)
}

// ListRecentAlerts lists most recent alert events.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()
	return collectAlertEvents(rows)
}

// MarkAlertDispatched flags an event as delivered to every sink.
func (s *Store) MarkAlertDispatched(ctx context.Context, id int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, markAlertDispatchedSQL, id)
	if execErr != nil {
		return fmt.Errorf("mark alert dispatched: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func collectAlertEvents(rows pgx.Rows) ([]AlertEvent, error) {
	events := make([]AlertEvent, 0)
	for rows.Next() {
		var (
			event     AlertEvent
			prevGrade sql.NullString
			newGrad   string
		)
		if err := rows.Scan(
			&event.ID,
			&event.PropertyID,
			&event.RunID,
			&prevGrade,
			&newGrad,
			&event.Dispatched,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}

		if prevGrade.Valid {
			parsed, parseErr := grading.ParseGrade(prevGrade.String)
			if parseErr != nil {
				return nil, fmt.Errorf("parse previous grade: %w", parseErr)
			}
			event.PreviousGrade = parsed
		}
		var parseErr error
		event.NewGrade, parseErr = grading.ParseGrade(newGrad)
		if parseErr != nil {
			return nil, fmt.Errorf("parse new grade: %w", parseErr)
		}
		events = append(events, event)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

func scanAssumptions(row pgx.Row) (PropertyAssumptions, error) {
	var (
		a             PropertyAssumptions
		priceStr      string
		dailyRateStr  string
		serviceCharge string
	)
	if err := row.Scan(
		&a.PropertyID,
		&a.DeveloperID,
		&a.Region,
		&priceStr,
		&a.SizeSqft,
		&dailyRateStr,
		&a.BaseOccupancy,
		&serviceCharge,
		&a.AppreciationMean,
		&a.AppreciationStdev,
		&a.HorizonYears,
		&a.DeveloperRiskScore,
		&a.UpdatedAt,
	); err != nil {
		return PropertyAssumptions{}, err
	}

	var convErr error
	a.PurchasePrice, convErr = decimal.NewFromString(priceStr)
	if convErr != nil {
		return PropertyAssumptions{}, fmt.Errorf("parse purchase price: %w", convErr)
	}
	a.BaseDailyRate, convErr = decimal.NewFromString(dailyRateStr)
	if convErr != nil {
		return PropertyAssumptions{}, fmt.Errorf("parse base daily rate: %w", convErr)
	}
	a.ServiceChargeRate, convErr = decimal.NewFromString(serviceCharge)
	if convErr != nil {
		return PropertyAssumptions{}, fmt.Errorf("parse service charge rate: %w", convErr)
	}
	return a, nil
}

func scanRun(row pgx.Row) (SimulationRun, error) {
	var (
		run       SimulationRun
		seed      int64
		histogram json.RawMessage
		grade     string
	)
	if err := row.Scan(
		&run.RunID,
		&run.PropertyID,
		&seed,
		&run.TrialCount,
		&run.InvalidTrialCount,
		&run.MeanIRR,
		&run.Percentiles.P5,
		&run.Percentiles.P25,
		&run.Percentiles.P50,
		&run.Percentiles.P75,
		&run.Percentiles.P95,
		&run.ProbNegativeIRR,
		&run.BreakevenYearMean,
		&run.YearOneYieldMean,
		&histogram,
		&grade,
		&run.DeveloperScore,
		&run.CreatedAt,
	); err != nil {
		return SimulationRun{}, err
	}

	run.Seed = uint64(seed)
	if len(histogram) > 0 {
		if err := json.Unmarshal(histogram, &run.Histogram); err != nil {
			return SimulationRun{}, fmt.Errorf("decode histogram: %w", err)
		}
	}

	parsed, parseErr := grading.ParseGrade(grade)
	if parseErr != nil {
		return SimulationRun{}, fmt.Errorf("parse run grade: %w", parseErr)
	}
	run.Grade = parsed
	return run, nil
}
