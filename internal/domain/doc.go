// Package domain models county-level COVID-19 case and death counts as published by
// two independent feeds, and the canonical geographic identifiers they are reconciled
// onto.
//
// # Data Sources
//
// NYT (https://github.com/nytimes/covid-19-data) publishes one long-format CSV with a
// row per county per date:
//
//	date,county,state,fips,cases,deaths
//	2020-04-01,Unknown,Puerto Rico,,50,2
//
// JHU CSSE (https://github.com/CSSEGISandData/COVID-19) publishes two wide-format CSVs,
// one per metric, with a row per county and a column per date ("1/22/20", "1/23/20", ...).
//
// Both feeds are cumulative: each value is the running total as of that date.
//
// # Identifier Scheme
//
// Units are keyed by five-digit FIPS-like integers, state code × 1000 + county code:
//
//	06037   Los Angeles County, CA (regular county)
//	72000   Puerto Rico "All" (state total, reserved county slot 000)
//	36901   New York City (composite, reserved county slots 900-906)
//	99001   New York metro area (metro, reserved state block 99 + DMA code)
//
// Real county codes stay below 900 within a state block, so the 000 and 9xx slots and the
// whole 99 block never collide with a published county.
//
// # Catch-all Buckets
//
// Each feed files some counts under a bucket with no geography: NYT uses "Unknown",
// JHU uses "Unassigned" (90XXX) and "Out of <state>" (80XXX). Whether a bucket is a true
// cumulative count differs by state and date range and is decided by an explicit policy
// table, never inferred. See the rules package.
//
// # Negative Increments
//
// Daily increments are computed as cum(d) - cum(d-1). Source corrections and backfills
// make some of them negative; they are kept as-is and reported, see [ErrNonMonotonicSeries].
package domain
