/*
Package federation declares the resources of a multi-zone radosgw
deployment: per-instance keys, the realm, zonegroup and zone documents and
their registration with the cluster.

Every zone instance gets the client client.radosgw.<zonegroup>-<name>. With
multisite replication all instances share one keyring and one zonegroup,
and each instance is a zone named after it. Without it every instance is
its own zonegroup and zone, named <zonegroup>-<name>.

Keys are found in this order, and only the last step mutates anything:

 1. the cluster already knows the client (ceph auth get-key)
 2. the attribute store holds a well-formed key from an earlier run
 3. otherwise a key is generated into the keyring and saved

Keys are stored in the cluster scope at
ceph.secrets.<cluster>.radosgw.<zonegroup>-<name>, sealed when a secret
key is configured.

Realm, zonegroup and zone commands are each guarded by the cluster's own
listing, and all of them are skipped when ceph.radosgw.manual_federation is
set.
*/
package federation
