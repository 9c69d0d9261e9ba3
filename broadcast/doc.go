// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package broadcast delivers room events to websocket connections.

A connection subscribes to a poll's room by sending

	{"event":"join-poll","code":"POLL-7KQ2ZD"}

and receives a poll-state snapshot, then every event published to the room:

	{"event":"answer-update","data":{"questionId":"...","answerCount":3}}

Joining is idempotent and requires the user to be the poll creator or a
participant. Delivery is best effort to connections that are subscribed at
publish time; a connection that cannot keep up is disconnected and is
expected to reconnect and resync from the snapshot.
*/
package broadcast
