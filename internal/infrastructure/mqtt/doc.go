// Package mqtt provides the broker connection behind trackguard's
// management channel.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS validation and size limits
//   - Subscriptions that are restored after every reconnect
//   - Last Will and Testament (LWT) so the console sees crashed agents
//
// # Topics
//
// Every topic lives under a configurable prefix (default "trackguard"):
//
//	<prefix>/status/<client_id>        retained online/offline presence
//	<prefix>/device/<identity>/config  retained configuration document
//	<prefix>/device/<identity>/state   agent-published state snapshots
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT,
//	    mqtt.WithOnConnect(func() { ... }),
//	    mqtt.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix)
//	err = client.Subscribe(topics.DeviceConfig(id), 1, handler)
//
// Callbacks passed as options are installed before the first connection
// attempt, so the initial connect is reported like every reconnect.
package mqtt
