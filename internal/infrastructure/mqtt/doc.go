// Package mqtt connects the playout worker to the site's MQTT broker.
//
// The worker is a publisher first: each channel session pushes a retained
// status snapshot, advance events and periodic health onto channel-scoped
// topics, and operators or automation may send control commands back on
// the channel's command topic.
//
//	nebula/<site>/system/status           worker presence (LWT)
//	nebula/<site>/playout/<ch>/status     retained status snapshot
//	nebula/<site>/playout/<ch>/asrun      advance events
//	nebula/<site>/playout/<ch>/health     device health
//	nebula/<site>/playout/<ch>/command    inbound control commands
//	nebula/<site>/playout/<ch>/response   command replies
//	nebula/<site>/playout/<ch>/<name>     plugin topics
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Site.Name)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.PublishJSON(topics.PlayoutStatus(1), stat, true)
package mqtt
