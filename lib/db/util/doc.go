// Package util holds small helpers shared by the object database engines.
//
// The package contains:
//   - statistics: a SizeHistogram for record sizes and DistributionStats for
//     reporting how records are spread over object stores
//   - functions: seeding helpers
package util
