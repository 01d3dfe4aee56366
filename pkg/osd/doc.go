/*
Package osd plans the preparation of OSD data devices.

For every descriptor in ceph.osd.devices that is neither deployed nor
incomplete, Plan declares a "ceph-disk-prepare on <data>" block guarded by
two probes of the disk itself: an OSD data partition type matching the
descriptor's encryption mode, and any partition label mentioning ceph.
Either one means the disk was prepared before and is left alone.

The block runs ceph-disk prepare, then works out which partition to
activate. The device is listed before and after prepare and the single new
"ceph data" entry wins; udev may need a moment, so the after-listing is
retried a few times. No entry, or more than one, falls back to activating
the whole device.

A successful prepare queues a delayed notification to the device's status
block, which writes "deployed" under ceph.osd.device_status.<device> in the
override tier exactly once per run. Devices overlays those statuses onto the
descriptors, so the descriptor list itself is only ever edited by roles and
environments and disks appended later are still picked up. A data device
listed twice is prepared once; the duplicate is skipped with a warning.
*/
package osd
