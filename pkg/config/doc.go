/*
Package config feeds the attribute tiers and exposes a typed, validated view
of the merged tree.

Tier sources:

	default      embedded defaults.yaml (common + platform family) and
	             detected node facts
	role         --role documents, applied in order
	environment  the --environment document
	override     the persistent state database (see package storage)

Decode turns the merged tree into a Node and validates it with
go-playground/validator. Device descriptors and zone instances are decoded
but left unvalidated so that one bad entry only skips that unit.
*/
package config
