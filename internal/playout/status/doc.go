// Package status carries what the channel sessions report to the outside
// world: MQTT status snapshots and advance events, InfluxDB history points
// and periodic device health.
//
// MQTT and Influx implement session.Publisher and are combined with
// session.Publishers. Reporter runs beside each session and publishes
// device health on its own interval.
package status
