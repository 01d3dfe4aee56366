// Package types holds the domain records shared across strata's builders:
// OSD device descriptors and federated radosgw zone instances.
//
// Both are decoded from the attribute tree one entry at a time and are
// deliberately not struct-validated. A descriptor or instance with missing
// fields is skipped on its own with a warning (see Missing), so a partially
// described fleet still converges the parts that are complete.
package types
