package segments

import "leasing/risk-engine/internal/scoring"

// Factor bin queries bin warehouse contracts with the same boundaries and
// labels the engine scores with, so observed WoE lines up with the seeded
// development-sample WoE. Every query takes $1 snapshot date, $2 window
// months and $3 minimum bin volume, and returns
// (bin_label, contract_count, default_count, avg_contract_size).

const (
	contractWindow = `
WHERE dc.current_flg = 1
  AND dc.activation_dt >= $1::date - make_interval(months => $2)
  AND dc.activation_dt < $1::date`

	binAggregates = `
    COUNT(*)                                                      AS contract_count,
    COUNT(*) FILTER (WHERE dc.dpd >= 90 OR dc.wo_amt_ltd > 0)     AS default_count,
    AVG(dc.financed_amt)::float8                                  AS avg_contract_size`

	binGrouping = `
GROUP BY bin_label
HAVING COUNT(*) >= $3
ORDER BY bin_label`

	contractJoin = `
FROM dwh.dim_contract dc
JOIN ods.contracts_sst c ON c.party_orig_key = dc.party_orig_key`
)

// FactorQuery is one factor's bin query.
type FactorQuery struct {
	Factor string
	SQL    string
}

func factorQuery(factor, binExpr, joins, filter string) FactorQuery {
	return FactorQuery{
		Factor: factor,
		SQL:    "\nSELECT\n    " + binExpr + " AS bin_label," + binAggregates + contractJoin + joins + contractWindow + filter + binGrouping,
	}
}

// FactorQueries lists the bin queries in reporting order.
var FactorQueries = []FactorQuery{
	factorQuery(scoring.FactorLTV, `CASE
        WHEN c.offer_price IS NULL OR c.offer_price <= 0               THEN 'MISSING'
        WHEN c.financed_amount * 100.0 / c.offer_price < 75            THEN '<75%'
        WHEN c.financed_amount * 100.0 / c.offer_price <= 85           THEN '75-85%'
        WHEN c.financed_amount * 100.0 / c.offer_price <= 95           THEN '85-95%'
        ELSE '>95%'
    END`, "", ""),

	factorQuery(scoring.FactorTerm, `CASE
        WHEN c.duration <= 36 THEN '≤36m'
        WHEN c.duration <= 48 THEN '37-48m'
        ELSE '>48m'
    END`, "", `
  AND c.duration IS NOT NULL`),

	factorQuery(scoring.FactorAge, `CASE
        WHEN ($1::date - p.date_of_birth) / 365.25 < 18  THEN '<18 (minor)'
        WHEN ($1::date - p.date_of_birth) / 365.25 <= 25 THEN '18-25'
        WHEN ($1::date - p.date_of_birth) / 365.25 <= 35 THEN '26-35'
        WHEN ($1::date - p.date_of_birth) / 365.25 <= 45 THEN '36-45'
        WHEN ($1::date - p.date_of_birth) / 365.25 <= 55 THEN '46-55'
        ELSE '56+'
    END`, `
JOIN ods.persons_sst p ON p.party_orig_key = c.party_customer_orig_key`, `
  AND p.date_of_birth IS NOT NULL`),

	factorQuery(scoring.FactorCRIF, `CASE
        WHEN poi.credit_score_crif IS NULL  THEN 'MISSING'
        WHEN poi.credit_score_crif >= 700   THEN '≥700 (Excellent)'
        WHEN poi.credit_score_crif >= 500   THEN '500-699 (Good)'
        WHEN poi.credit_score_crif >= 300   THEN '300-499 (Fair)'
        ELSE '<300 (Poor)'
    END`, `
LEFT JOIN ods.person_other_information_sst poi ON poi.party_orig_key = c.party_customer_orig_key`, ""),

	factorQuery(scoring.FactorIntrum, `CASE
        WHEN COALESCE(poi.credit_score_intrum, 0) = 0 THEN '0 (No data)'
        WHEN poi.credit_score_intrum = 1              THEN '1'
        WHEN poi.credit_score_intrum <= 3             THEN '2-3'
        ELSE '>3 (Established)'
    END`, `
LEFT JOIN ods.person_other_information_sst poi ON poi.party_orig_key = c.party_customer_orig_key`, ""),

	factorQuery(scoring.FactorDSCR, `CASE
        WHEN poi.dscr_customer_dscr IS NULL  THEN 'MISSING'
        WHEN poi.dscr_customer_dscr < 0      THEN '<0 (Negative)'
        WHEN poi.dscr_customer_dscr <= 3     THEN '0-3 (Tight)'
        WHEN poi.dscr_customer_dscr <= 7     THEN '3-7 (Adequate)'
        WHEN poi.dscr_customer_dscr <= 15    THEN '7-15 (Good)'
        ELSE '>15 (Strong)'
    END`, `
LEFT JOIN ods.person_other_information_sst poi ON poi.party_orig_key = c.party_customer_orig_key`, ""),

	factorQuery(scoring.FactorPermit, `CASE
        WHEN p.party_orig_key IS NULL                  THEN 'B2B'
        WHEN UPPER(p.permit_type) = 'C'                THEN 'C_permit'
        WHEN UPPER(p.permit_type) = 'B'                THEN 'B_permit'
        WHEN UPPER(p.permit_type) IN ('L', 'DIPLOMAT') THEN UPPER(p.permit_type)
        ELSE 'Other_B2C'
    END`, `
LEFT JOIN ods.persons_sst p ON p.party_orig_key = c.party_customer_orig_key`, ""),

	factorQuery(scoring.FactorVehiclePriceTier, `CASE
        WHEN c.offer_price <= 20000  THEN '≤20k (Economy)'
        WHEN c.offer_price <= 50000  THEN '20k-50k (Mid)'
        WHEN c.offer_price <= 100000 THEN '50k-100k (Premium)'
        ELSE '>100k (Luxury)'
    END`, "", `
  AND c.offer_price IS NOT NULL`),

	factorQuery(scoring.FactorZEK, `CASE
        WHEN c.zek_code IS NULL OR c.zek_code = '' THEN 'NOT_CHECKED'
        WHEN c.zek_code = '00'                     THEN 'No negative entries'
        WHEN c.zek_code IN ('01', '02', '03')      THEN '1 entry'
        ELSE '2+ entries'
    END`, "", ""),

	factorQuery(scoring.FactorDealerRisk, `CASE
        WHEN drm.current_default_rate IS NULL OR drm.active_months < 6 THEN 'NEW_DEALER'
        WHEN drm.current_default_rate <= 0.03                          THEN '≤3% (Low)'
        WHEN drm.current_default_rate <= 0.08                          THEN '3-8% (Average)'
        WHEN drm.current_default_rate <= 0.15                          THEN '8-15% (Elevated)'
        ELSE '>15% (High)'
    END`, `
LEFT JOIN LATERAL (
    SELECT m.current_default_rate, m.active_months
    FROM risk_engine.dealer_risk_metrics m
    WHERE m.dealer_id = dc.party_dealer_orig_key::text
      AND m.snapshot_date <= $1::date
    ORDER BY m.snapshot_date DESC
    LIMIT 1
) drm ON true`, ""),
}

const overallQuery = `
SELECT` + binAggregates + `
FROM dwh.dim_contract dc` + contractWindow

const tierCountsQuery = `
SELECT tier, COUNT(*)
FROM risk_engine.risk_assessment
WHERE evaluated_at >= $1::date - make_interval(months => $2)
  AND evaluated_at < $1::date
GROUP BY tier`

const originalWoEQuery = `
SELECT factor_name, bin_label, woe_value
FROM risk_engine.woe_scorecard_params
WHERE param_type = 'BIN_POINTS'
  AND woe_value IS NOT NULL
  AND factor_name IS NOT NULL
  AND bin_label IS NOT NULL`

const upsertSegment = `
INSERT INTO risk_engine.population_segment_performance (
    snapshot_date, segment_type, segment_key,
    factor_name, bin_label,
    contract_count, default_count, observed_default_rate,
    observed_woe, original_woe, woe_drift,
    avg_contract_size, observation_window_months,
    data_source, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,'DATAHUB_ODS',NOW())
ON CONFLICT (snapshot_date, segment_key) DO UPDATE SET
    contract_count            = EXCLUDED.contract_count,
    default_count             = EXCLUDED.default_count,
    observed_default_rate     = EXCLUDED.observed_default_rate,
    observed_woe              = EXCLUDED.observed_woe,
    original_woe              = EXCLUDED.original_woe,
    woe_drift                 = EXCLUDED.woe_drift,
    avg_contract_size         = EXCLUDED.avg_contract_size,
    observation_window_months = EXCLUDED.observation_window_months`

const upsertMonitoringSnapshot = `
INSERT INTO risk_engine.model_monitoring_snapshot (
    snapshot_date, model_version, scorecard_type,
    overall_observed_dr, psi_score, psi_status,
    total_contracts, total_defaults,
    observation_window_months, tier_distribution_json,
    created_at
) VALUES ($1,$2,'COMPOSITE',$3,$4,$5,$6,$7,$8,$9,NOW())
ON CONFLICT (snapshot_date, model_version) DO UPDATE SET
    overall_observed_dr       = EXCLUDED.overall_observed_dr,
    psi_score                 = EXCLUDED.psi_score,
    psi_status                = EXCLUDED.psi_status,
    total_contracts           = EXCLUDED.total_contracts,
    total_defaults            = EXCLUDED.total_defaults,
    observation_window_months = EXCLUDED.observation_window_months,
    tier_distribution_json    = EXCLUDED.tier_distribution_json`
