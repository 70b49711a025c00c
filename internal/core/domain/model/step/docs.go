// Package step models stage step records: one record per execution of a
// working stage, plus the instantaneous DONE record written for DELIVERED.
package step
