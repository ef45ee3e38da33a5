// Package feed publishes class ranking snapshots to subscribers.
//
// Each subscription is a mailbox holding at most one pending snapshot per
// class. Publishing never blocks: a newer snapshot overwrites an unread one
// and the overwrite is counted as a drop. Subscribers therefore always
// converge on the latest snapshot without slowing the publisher down.
package feed
