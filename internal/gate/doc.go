// ABOUTME: Package gate is the edge interceptor in front of application logic
// ABOUTME: Public paths pass through; protected paths require a verified token

// Package gate classifies and authenticates inbound HTTP requests.
//
// A request is public or protected based on the configured path table.
// Protected requests must present a session token via Authorization bearer
// header or session cookie; verified identity is forwarded downstream in the
// x-user-id and x-user-email headers, which the gate alone may write.
package gate
