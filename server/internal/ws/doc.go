// Package ws implements the WebSocket hub that streams the working-set
// summary to dashboards.
//
// Hub.Run(ctx) broadcasts on every tick of the configured interval and on
// every Notify call (the server subscribes Notify to repository changes).
// Hub.ServeHTTP upgrades the connection and sends the current summary at once.
//
// Message format sent to clients:
//
//	{
//	  "event": "summary",
//	  "data":  { /* same schema as GET /api/v1/summary */ }
//	}
//
// The upgrader accepts all origins. The server mounts the hub at /ws/stream.
package ws
