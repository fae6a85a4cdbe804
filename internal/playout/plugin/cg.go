package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// KindCG is the template overlay plugin kind.
const KindCG = "cg"

// cgLayer is the template slot within the device layer.
const cgLayer = 1

var amcpEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// quote renders s as a double-quoted AMCP parameter.
func quote(s string) string {
	return `"` + amcpEscaper.Replace(s) + `"`
}

// cg shows a CasparCG template on its own layer.
//
// Settings:
//   - template: template path on the device (required)
//   - hold: seconds before an automatic hide, 0 keeps it up
//   - title_on_change: show the new item's title after every advance
type cg struct {
	manifest      Manifest
	host          Host
	template      string
	hold          time.Duration
	titleOnChange bool
	now           func() time.Time

	mu      sync.Mutex
	visible bool
	shownAt time.Time
}

func newCG(m Manifest, host Host) (Plugin, error) {
	p := &cg{
		manifest: m,
		host:     host,
		template: m.Settings["template"],
		now:      time.Now,
	}
	if p.template == "" {
		return nil, fmt.Errorf("%w: %s: settings.template is required", ErrInvalidManifest, m.Name)
	}
	if v := m.Settings["hold"]; v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil || secs < 0 {
			return nil, fmt.Errorf("%w: %s: settings.hold %q is not a duration in seconds", ErrInvalidManifest, m.Name, v)
		}
		p.hold = time.Duration(secs * float64(time.Second))
	}
	switch m.Settings["title_on_change"] {
	case "1", "true", "True":
		p.titleOnChange = true
	}
	return p, nil
}

func (p *cg) layer() string {
	return p.host.Layer(p.manifest.Layer)
}

func (p *cg) OnInit(ctx context.Context) error {
	_, err := p.host.Query(ctx, fmt.Sprintf("CG %s CLEAR", p.layer()))
	return err
}

func (p *cg) OnMain(ctx context.Context) error {
	p.mu.Lock()
	expired := p.visible && p.hold > 0 && p.now().Sub(p.shownAt) >= p.hold
	p.mu.Unlock()

	if expired {
		return p.hide(ctx)
	}
	return nil
}

func (p *cg) OnChange(ctx context.Context) error {
	if !p.titleOnChange {
		return nil
	}
	item := p.host.CurrentItem()
	if item == nil {
		return nil
	}
	return p.show(ctx, item.DisplayTitle())
}

func (p *cg) OnCommand(ctx context.Context, action string, data map[string]any) bool {
	var err error
	switch action {
	case "show":
		text, _ := data["text"].(string)
		err = p.show(ctx, text)
	case "hide":
		err = p.hide(ctx)
	case "clear":
		_, err = p.host.Query(ctx, fmt.Sprintf("CG %s CLEAR", p.layer()))
		p.setVisible(false)
	default:
		return false
	}
	return err == nil
}

func (p *cg) show(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{"f0": text})
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf("CG %s ADD %d %s 1 %s", p.layer(), cgLayer, quote(p.template), quote(string(payload)))
	if _, err := p.host.Query(ctx, cmd); err != nil {
		return err
	}
	p.setVisible(true)
	return nil
}

func (p *cg) hide(ctx context.Context) error {
	if _, err := p.host.Query(ctx, fmt.Sprintf("CG %s STOP %d", p.layer(), cgLayer)); err != nil {
		return err
	}
	p.setVisible(false)
	return nil
}

func (p *cg) setVisible(v bool) {
	p.mu.Lock()
	p.visible = v
	if v {
		p.shownAt = p.now()
	}
	p.mu.Unlock()
}
