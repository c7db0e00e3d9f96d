// Package app provides the application service layer.
//
// Service runs one loop per connection: producer sessions render each inbound document and hand the
// fragment to the broadcaster; viewer sessions register the connection and hold it until the peer goes away.
// Depends on domain interfaces, not concrete implementations.
package app
