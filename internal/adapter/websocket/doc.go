// Package websocket adapts gorilla/websocket connections to the relay's producer and viewer contracts.
//
// A Conn serialises data writes behind a mutex with a per-write deadline, answers keepalive pongs for
// viewers, and closes with a normal-closure frame carrying a reason.
package websocket
