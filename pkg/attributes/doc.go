/*
Package attributes implements the tiered attribute tree that feeds every
strata component.

Four tiers are merged low to high:

	default      embedded defaults and detected node facts
	role         --role documents, applied in order
	environment  the --environment document
	override     values written at runtime, persisted in the state database

Maps merge key by key at any depth. Lists and scalars replace whatever a
lower tier held. The override tier is split by scope: cluster-scoped values
sit below node-scoped ones.

Paths are dotted strings. An integer segment indexes a list when the value
at that point is a list:

	store.SetOverride("ceph.osd.devices.1.status", "deployed")

The write above copies the merged device list into the override tier and
then changes element 1 only, so the other descriptors keep whatever their
own tiers say. Because of this, list-valued attributes are always handed to
the Backend whole.

Writes go to the backend immediately. There is no locking across nodes;
callers re-check external state instead of relying on the store.
*/
package attributes
