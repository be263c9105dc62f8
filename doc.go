// Package eventflit provides a Go client for the Eventflit real-time messaging service.
//
// A Client keeps one WebSocket connection to the service and multiplexes
// named channels over it:
//
//   - public channels: any name without a reserved prefix
//   - private channels: "private-" prefix, subscription requires auth
//   - presence channels: "presence-" prefix, auth plus a member roster
//
// Channels can be subscribed and bound before the connection exists; the
// client replays every registered subscription each time it (re)connects.
//
// Basic usage:
//
//	client, err := eventflit.NewClient(eventflit.Config{
//	    Key:     "app-key",
//	    Cluster: "eu",
//	    Auth:    eventflit.AuthEndpoint{URL: "https://example.com/eventflit/auth"},
//	}, eventflit.LogErrors(log.Logger))
//	if err != nil {
//	    log.Fatal().Err(err).Msg("new client")
//	}
//
//	ch := client.Subscribe("private-orders")
//	ch.Bind("order-created", func(ev eventflit.Event) {
//	    fmt.Println(ev.Data)
//	})
//
//	client.Connect(ctx)
//	defer client.Disconnect()
//
// Push-notification interests live in the push sub-package and are reachable
// through Client.Push.
package eventflit
