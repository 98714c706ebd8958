// Package realtime subscribes to the backend's row change feed.
//
// The feed is a Phoenix channel over a websocket. Subscribe dials
// /realtime/v1/websocket, joins realtime:public:<table> asking for every
// postgres change, and waits for the join reply. Afterwards a reader
// goroutine turns postgres_changes frames into Change values and a second
// goroutine sends a heartbeat on the phoenix topic every 30 seconds.
//
// A subscription ends when Close is called, when the server closes the
// channel, or when a read or heartbeat fails; Done is closed and Err holds
// the cause. Reconnecting is the caller's job.
package realtime
