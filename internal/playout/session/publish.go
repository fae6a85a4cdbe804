package session

import (
	"errors"

	"github.com/nebulabroadcast/nebula-worker/internal/asrun"
	"github.com/nebulabroadcast/nebula-worker/internal/catalog"
)

// Publisher receives what a session reports to the outside world.
type Publisher interface {
	// PublishStatus is called at most every 300 ms and after each advance.
	PublishStatus(channelID int, st Stat)
	// PublishAdvance is called once per confirmed advance.
	PublishAdvance(channelID int, rec *asrun.Record, item *catalog.Item)
	// Publish sends an arbitrary payload on a channel-scoped topic.
	Publish(channelID int, name string, payload any) error
}

// Publishers fans out to several publishers.
type Publishers []Publisher

var _ Publisher = Publishers(nil)

// PublishStatus implements Publisher.
func (ps Publishers) PublishStatus(channelID int, st Stat) {
	for _, p := range ps {
		p.PublishStatus(channelID, st)
	}
}

// PublishAdvance implements Publisher.
func (ps Publishers) PublishAdvance(channelID int, rec *asrun.Record, item *catalog.Item) {
	for _, p := range ps {
		p.PublishAdvance(channelID, rec, item)
	}
}

// Publish implements Publisher. Every publisher is tried; errors are joined.
func (ps Publishers) Publish(channelID int, name string, payload any) error {
	var errs []error
	for _, p := range ps {
		if err := p.Publish(channelID, name, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
