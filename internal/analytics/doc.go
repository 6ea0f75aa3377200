// Package analytics computes rule-based health and progress metrics over
// project snapshots: completion percentage, a 0-100 health score, and a
// fixed set of threshold-driven insights. Formulas are deterministic so
// the same snapshot always yields the same report.
package analytics
