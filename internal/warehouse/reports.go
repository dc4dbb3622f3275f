package warehouse

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Report is one named analytics query. Query formats the model table name with
// %[1]s and the as-of timestamp with %[2]s.
type Report struct {
	Name  string
	Query string
}

// Reports is the analytics suite run against the model table.
var Reports = []Report{
	{Name: "lifecycle_analysis", Query: `
		SELECT
			COUNT(DISTINCT user_id) AS total_users,
			COUNT(DISTINCT CASE WHEN is_active = 'yes' THEN user_id END) AS active_users,
			ROUND(AVG(DATEDIFF('day', account_created, COALESCE(account_deleted, TIMESTAMP '%[2]s'))), 2) AS avg_account_lifetime_days
		FROM %[1]s`},
	{Name: "purchase_analysis", Query: `
		SELECT
			product_name,
			COUNT(*) AS total_purchases,
			ROUND(SUM(price), 2) AS total_revenue,
			ROUND(AVG(price), 2) AS avg_price,
			ROUND(COUNT(CASE WHEN purchase_status = 'completed' THEN 1 END) * 100.0 / COUNT(*), 2) AS conversion_rate
		FROM %[1]s
		GROUP BY product_name
		ORDER BY total_revenue DESC, product_name`},
	{Name: "demographics_analysis", Query: `
		SELECT
			device_type, os, browser,
			COUNT(DISTINCT user_id) AS unique_users,
			COUNT(*) AS total_sessions,
			ROUND(AVG(session_duration_minutes), 2) AS avg_session_duration,
			ROUND(AVG(CASE WHEN purchase_status = 'completed' THEN price ELSE 0 END), 2) AS avg_purchase_value
		FROM %[1]s
		GROUP BY device_type, os, browser
		HAVING COUNT(*) > 10
		ORDER BY unique_users DESC, device_type, os, browser`},
	{Name: "business_analysis", Query: `
		SELECT
			job_title,
			COUNT(DISTINCT user_id) AS unique_users,
			COUNT(*) AS total_sessions,
			ROUND(AVG(session_duration_minutes), 2) AS avg_session_duration,
			ROUND(COUNT(CASE WHEN purchase_status = 'completed' THEN 1 END) * 100.0 / COUNT(*), 2) AS conversion_rate
		FROM %[1]s
		GROUP BY job_title
		HAVING COUNT(DISTINCT user_id) > 5
		ORDER BY unique_users DESC, job_title`},
	{Name: "engagement_analysis", Query: `
		SELECT
			DATE_TRUNC('hour', login_time) AS hour,
			COUNT(*) AS total_sessions,
			COUNT(DISTINCT user_id) AS unique_users,
			ROUND(AVG(session_duration_minutes), 2) AS avg_session_duration,
			ROUND(SUM(CASE WHEN purchase_status = 'completed' THEN price ELSE 0 END), 2) AS revenue
		FROM %[1]s
		GROUP BY DATE_TRUNC('hour', login_time)
		ORDER BY total_sessions DESC, hour`},
	{Name: "churn_analysis", Query: `
		SELECT
			DATE_TRUNC('month', account_created) AS cohort_month,
			COUNT(DISTINCT user_id) AS cohort_size,
			ROUND(COUNT(CASE WHEN account_deleted IS NOT NULL THEN 1 END) * 100.0 / NULLIF(COUNT(*), 0), 2) AS churn_rate,
			ROUND(AVG(CASE WHEN account_deleted IS NOT NULL THEN DATEDIFF('day', account_created, account_deleted) END), 2) AS avg_days_to_churn
		FROM %[1]s
		GROUP BY DATE_TRUNC('month', account_created)
		ORDER BY cohort_month`},
	{Name: "session_analysis", Query: `
		SELECT
			user_id, first_name, last_name,
			COUNT(*) AS total_sessions,
			ROUND(AVG(session_duration_minutes), 2) AS avg_session_duration,
			ROUND(DATEDIFF('hour', MIN(login_time), MAX(login_time))::DOUBLE, 1) AS active_span_hours
		FROM %[1]s
		WHERE login_time IS NOT NULL
		GROUP BY user_id, first_name, last_name
		ORDER BY total_sessions DESC, user_id
		LIMIT 100`},
	{Name: "funnel_analysis", Query: `
		SELECT
			product_name,
			COUNT(*) AS total_views,
			COUNT(DISTINCT user_id) AS unique_viewers,
			ROUND(COUNT(CASE WHEN purchase_status = 'completed' THEN 1 END) * 100.0 / NULLIF(COUNT(*), 0), 2) AS conversion_rate
		FROM %[1]s
		GROUP BY product_name
		ORDER BY conversion_rate DESC, product_name`},
}

// Result is the tabular output of one report.
type Result struct {
	Name     string
	Columns  []string
	Rows     [][]string
	Duration time.Duration
}

// Run executes one report against table. asOf stands in for the current time in
// open-ended intervals.
func (d *DB) Run(ctx context.Context, r Report, table string, asOf time.Time) (Result, error) {
	start := time.Now()
	query := fmt.Sprintf(r.Query, table, asOf.UTC().Format("2006-01-02 15:04:05"))
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", r.Name, err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("%s columns: %w", r.Name, err)
	}
	res := Result{Name: r.Name, Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, fmt.Errorf("%s scan: %w", r.Name, err)
		}
		row := make([]string, len(vals))
		for i, v := range vals {
			row[i] = formatValue(v)
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("%s rows: %w", r.Name, err)
	}
	res.Duration = time.Since(start)
	return res, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case time.Time:
		return x.Format("2006-01-02T15:04:05")
	case interface{ Float64() float64 }:
		return strconv.FormatFloat(x.Float64(), 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
