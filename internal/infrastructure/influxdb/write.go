package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePoint queues a point stamped now. Dropped silently when not connected.
//
//	client.WritePoint("supervisor_transition",
//	    map[string]string{"from": "stopped", "to": "starting"},
//	    map[string]any{"reason": "device_started"})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime queues a point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}

// WritePermissionSnapshot records one permission reading.
func (c *Client) WritePermissionSnapshot(pkg string, fine, background, powerExempt bool) {
	c.WritePoint("permission_state",
		map[string]string{"package": pkg},
		map[string]any{
			"fine_location":       fine,
			"background_location": background,
			"power_exemption":     powerExempt,
			"all_granted":         fine && background && powerExempt,
		},
	)
}
