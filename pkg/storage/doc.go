/*
Package storage persists strata's attribute override tier in BoltDB.

The database lives at <state-dir>/strata.db and has one bucket per attribute
scope:

	┌──────────── strata.db ────────────┐
	│  node     (dotted path → JSON)     │
	│  cluster  (dotted path → JSON)     │
	└────────────────────────────────────┘

Keys are attribute paths such as "ceph.osd.devices" or
"ceph.secrets.ceph.radosgw.us-east"; values are JSON. The attribute store
never hands in a path that reaches into a list, so a list is always stored
and replaced as a whole value.

Save and Delete keep the key space consistent: writing a path removes every
stored key below it and strips the same path out of any stored ancestor
object. Load replays the keys in byte order to rebuild the nested tree.

BoltStore implements attributes.Backend:

	db, err := storage.NewBoltStore(stateDir)
	if err != nil {
		return err
	}
	defer db.Close()

	store := attributes.New(db)
	if err := store.Load(); err != nil {
		return err
	}

Writes are committed with fsync before Save returns. Concurrent runs on the
same node are serialised by BoltDB's file lock; across nodes the last write
wins.
*/
package storage
