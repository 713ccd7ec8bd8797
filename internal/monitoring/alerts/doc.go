// Package alerts evaluates threshold rules against periodic pipeline
// health snapshots. Each rule carries a cooldown so a persistent
// condition raises one alert per window instead of one per check.
package alerts
