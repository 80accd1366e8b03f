// Package client provides a Go SDK for the task queue's HTTP and
// WebSocket surface.
//
// # Basic Usage
//
//	c := client.New("http://localhost:8080")
//
//	snap, err := c.SubmitTask(ctx, task.CreateTaskRequest{
//	    FuncName: "send_email",
//	    Kwargs: map[string]interface{}{"to": "user@example.com"},
//	})
//
// # WebSocket Events
//
//	ws, err := c.ConnectWebSocket(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ws.Close()
//
//	for event := range ws.Events() {
//	    fmt.Printf("event: %s\n", event.Type)
//	}
//
// # Configuration
//
//	c := client.New("http://localhost:8080",
//	    client.WithAPIKey("your-api-key"),
//	    client.WithTimeout(30 * time.Second),
//	)
package client
