// Package influxdb provides the optional diagnostics sink for trackguard.
//
// It wraps the official influxdb-client-go v2 library. Supervisor
// transitions, relaunch results and permission snapshots are written as
// points so a fleet operator can see why a device stopped reporting
// without pulling its logs.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, map[string]string{"device": id})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WritePoint("relaunch_request",
//	    map[string]string{"target": "main"},
//	    map[string]any{"ok": true})
//
// Writes are non-blocking and batched (batch_size, flush_interval).
// Write failures arrive asynchronously through SetOnError.
package influxdb
