// Package cephadm talks to the ceph command line tools. Client answers the
// existence questions guards ask (keys, realms, zonegroups, partition
// tables) by parsing tool output; Commands builds the mutating invocations
// that execute resources run.
package cephadm
