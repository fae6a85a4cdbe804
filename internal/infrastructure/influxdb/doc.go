// Package influxdb records playout history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Every confirmed
// advance becomes a point in the "playout_advance" measurement, on-air
// progress is sampled into "playout_progress" and device health counters
// into "playout_health", all tagged by site and channel.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Site.Name)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteAdvance(influxdb.Advance{ChannelID: 1, ItemID: 42, Title: "News"})
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched according to batch_size and flush_interval; write errors are
// delivered to the SetOnError callback.
package influxdb
