// Package storage is the persistence layer for users, servers, the
// user-server links, analytics counters and boundary watermarks.
//
// Relations between users and servers are identifier-based (display_info
// rows), resolved by lookup. Entities never embed back-pointers to each
// other, so there are no ownership cycles to maintain.
package storage
