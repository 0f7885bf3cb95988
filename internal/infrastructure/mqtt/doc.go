// Package mqtt connects the service to the MQTT bus used for telemetry.
//
// This package manages:
//   - Connection to the broker with auto-reconnect and a retained
//     online/offline status on threatintel/system/status (LWT for crashes)
//   - Publishing JSON snapshots of connection pool statistics
//   - Subscriptions (restored on reconnect) such as the on-demand
//     statistics request topic
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.PublishJSON(mqtt.Topics{}.DBPoolStats(), pool.Stats(), true)
//
// TLS is used when cfg.Broker.TLS is set; payloads are otherwise sent in
// the clear, so production brokers should require it.
package mqtt
