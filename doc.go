// Command relayhub relays JSON messages between the members of a group over
// websockets.
//
//     PORT=8080 relayhub
//
// Everything is as ephemeral as can be. Nothing is stored; a group is
// forgotten when its last member disconnects.
//
// Join a group by opening a websocket on any path and sending a JSON object
// that names the group:
//     {"group":"room1","session":"s"}
//
// Every message a client sends is relayed to the other members of the group
// it names, never back to the sender. Sending a message joins that group, so
// one connection may belong to several groups. Before relaying, the number of
// members is written into the "clientCount" field; all other fields pass
// through untouched.
//
// Relays are throttled per group (THROTTLE_INTERVAL, default 1s). The first
// message in a quiet window goes out immediately; later ones in the window
// collapse into one relay of the most recent message when the window ends.
// THROTTLE_SCOPE=global makes all groups share a single window.
//
// Publish to a group over HTTP by POSTing a JSON object:
//     curl localhost:8080/groups/room1 -d '{"session":"s"}'
//
// Non-websocket GET requests are served an HTML test client.
package main
