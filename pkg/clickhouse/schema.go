package clickhouse

import "fmt"

// Schema returns the DDL for every table CandleCast writes, scoped to database.
func Schema(database string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.candles (
	pair String,
	duration_seconds UInt32,
	window_start_ms Int64,
	window_end_ms Int64,
	open Float64,
	high Float64,
	low Float64,
	close Float64,
	volume Float64,
	created_at DateTime DEFAULT now()
) ENGINE = ReplacingMergeTree(created_at)
PARTITION BY toYYYYMM(toDateTime(intDiv(window_start_ms, 1000)))
ORDER BY (pair, duration_seconds, window_start_ms)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.technical_indicators (
	pair String,
	duration_seconds UInt32,
	window_start_ms Int64,
	window_end_ms Int64,
	open Float64,
	high Float64,
	low Float64,
	close Float64,
	volume Float64,
	indicators String,
	created_at DateTime DEFAULT now()
) ENGINE = ReplacingMergeTree(created_at)
PARTITION BY toYYYYMM(toDateTime(intDiv(window_start_ms, 1000)))
ORDER BY (pair, duration_seconds, window_start_ms)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.predictions (
	pair String,
	model_version String,
	ts_ms Int64,
	predicted_ts_ms Int64,
	predicted_price Float64,
	lower Float64,
	upper Float64,
	features String,
	created_at DateTime DEFAULT now()
) ENGINE = MergeTree
PARTITION BY toYYYYMM(toDateTime(intDiv(ts_ms, 1000)))
ORDER BY (pair, ts_ms)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.sentiment (
	pair String,
	ts_ms Int64,
	sentiment Nullable(Float64),
	galaxy_score Nullable(Float64),
	alt_rank Nullable(Float64),
	interactions Nullable(Float64),
	social_dominance Nullable(Float64)
) ENGINE = ReplacingMergeTree
ORDER BY (pair, ts_ms)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.drift_alerts (
	pair String,
	name String,
	method LowCardinality(String),
	statistic Float64,
	threshold Float64,
	breaches UInt32,
	triggered UInt8,
	window_from_ms Int64,
	window_to_ms Int64,
	checked_at DateTime64(3)
) ENGINE = MergeTree
ORDER BY (pair, checked_at)`, database),
	}
}
