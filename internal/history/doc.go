// Package history defines the command-history record shared by the store,
// the transports, and the import/export formats.
//
// A Record is one captured shell command. Its identity across machines is the
// NaturalKey, never the local row id: two records with equal natural keys are
// the same logical entry no matter which machine inserted them or how many
// times they were synced.
package history
