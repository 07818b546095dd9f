// Package integration provides integration tests for the feed registry server.
// These tests run the complete server against mock aggregator endpoints and
// exercise source transitions, round navigation, access control and feed
// listing over HTTP.
package integration
