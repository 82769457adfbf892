// Package ws streams the current alert list to WebSocket clients.
//
// New(source, interval) creates a Hub. Hub.Run(ctx) polls the source every
// interval and broadcasts only when the ranked alert list changed. A new
// client receives the current list as soon as it connects.
//
// Message format:
//
//	{
//	  "event": "alerts",
//	  "data":  { "alerts": [...], "generated_at": "..." }
//	}
//
// The hub is mounted at /ws/alerts and accepts all origins.
package ws
