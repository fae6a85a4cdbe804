package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/nebulabroadcast/nebula-worker/internal/auth"
	"github.com/nebulabroadcast/nebula-worker/internal/catalog"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/controller"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/plugin"
	"github.com/nebulabroadcast/nebula-worker/internal/playout/session"
)

// Channel is the command surface of one channel session.
type Channel interface {
	ChannelID() int
	Cue(ctx context.Context, req session.CueRequest) error
	CueForward(ctx context.Context) (*catalog.Item, error)
	CueBackward(ctx context.Context) (*catalog.Item, error)
	Take(ctx context.Context) error
	Retake(ctx context.Context) error
	Freeze(ctx context.Context) error
	Abort(ctx context.Context) error
	Clear(ctx context.Context) error
	Set(ctx context.Context, key, value string) error
	Stat() session.Stat
	PluginList() []plugin.Manifest
	PluginExec(ctx context.Context, name, action string, data map[string]any) error
	Recover(ctx context.Context) error
	Health() controller.Health
}

var _ Channel = (*session.Session)(nil)

// Args are the keyword arguments of a command.
type Args map[string]any

// String returns the argument as a string; numbers and booleans are
// formatted.
func (a Args) String(key string) string {
	switch v := a[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// Int64 returns the argument as an integer, zero when absent or malformed.
func (a Args) Int64(key string) int64 {
	switch v := a[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	case float64:
		return int64(v)
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// Bool returns the argument as a boolean.
func (a Args) Bool(key string) bool {
	switch v := a[key].(type) {
	case bool:
		return v
	case json.Number, float64, string:
		return controller.ParseBool(a.String(key))
	}
	return false
}

// Map returns a nested object argument, nil when absent.
func (a Args) Map(key string) map[string]any {
	m, _ := a[key].(map[string]any) //nolint:errcheck // Absent or mistyped data is treated as empty
	return m
}

// Result is the outcome of a command.
type Result struct {
	Code    int
	Message string
	Data    map[string]any
}

// Body renders the wire form: {"response": code, "message": ..., ...data}.
func (r Result) Body() map[string]any {
	body := make(map[string]any, len(r.Data)+2)
	for k, v := range r.Data {
		body[k] = v
	}
	body["response"] = r.Code
	body["message"] = r.Message
	return body
}

func ok(message string, data map[string]any) Result {
	return Result{Code: http.StatusOK, Message: message, Data: data}
}

type method struct {
	perm auth.Permission
	run  func(ctx context.Context, ch Channel, args Args) (Result, error)
}

var methods = map[string]method{
	"cue":          {auth.PermPlayoutOperate, cmdCue},
	"cue_forward":  {auth.PermPlayoutOperate, cmdCueAdjacent(Channel.CueForward)},
	"cue_backward": {auth.PermPlayoutOperate, cmdCueAdjacent(Channel.CueBackward)},
	"take":         {auth.PermPlayoutOperate, cmdSimple(Channel.Take, "Take")},
	"retake":       {auth.PermPlayoutOperate, cmdSimple(Channel.Retake, "Retake")},
	"freeze":       {auth.PermPlayoutOperate, cmdSimple(Channel.Freeze, "Freeze toggled")},
	"abort":        {auth.PermPlayoutOperate, cmdSimple(Channel.Abort, "Aborted")},
	"clear":        {auth.PermPlayoutOperate, cmdSimple(Channel.Clear, "Cleared")},
	"set":          {auth.PermPlayoutAdmin, cmdSet},
	"stat":         {auth.PermPlayoutRead, cmdStat},
	"plugin_list":  {auth.PermPlayoutRead, cmdPluginList},
	"plugin_exec":  {auth.PermPlayoutOperate, cmdPluginExec},
	"recover":      {auth.PermPlayoutAdmin, cmdRecover},
}

// Methods returns the supported command names, sorted.
func Methods() []string {
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs a command against a channel and maps any error to its
// response code.
func Dispatch(ctx context.Context, ch Channel, name string, args Args) Result {
	m, found := methods[name]
	if !found {
		return errorResult(fmt.Errorf("%w: %s", ErrUnknownMethod, name))
	}
	if args == nil {
		args = Args{}
	}
	res, err := m.run(ctx, ch, args)
	if err != nil {
		return errorResult(err)
	}
	return res
}

func errorResult(err error) Result {
	return Result{Code: statusFor(err), Message: err.Error()}
}

func cmdCue(ctx context.Context, ch Channel, args Args) (Result, error) {
	id := args.Int64("id_item")
	if id == 0 {
		id = args.Int64("item")
	}
	play := args.Bool("play")

	if err := ch.Cue(ctx, session.CueRequest{ItemID: id, Play: play}); err != nil {
		return Result{}, err
	}
	verb := "Cued"
	if play {
		verb = "Playing"
	}
	return ok(fmt.Sprintf("%s item ID:%d", verb, id), map[string]any{"id_item": id}), nil
}

func cmdCueAdjacent(fn func(Channel, context.Context) (*catalog.Item, error)) func(context.Context, Channel, Args) (Result, error) {
	return func(ctx context.Context, ch Channel, _ Args) (Result, error) {
		item, err := fn(ch, ctx)
		if err != nil {
			return Result{}, err
		}
		if item == nil {
			return Result{Code: http.StatusNoContent}, nil
		}
		return ok("Cued "+item.String(), map[string]any{"id_item": item.ID}), nil
	}
}

func cmdSimple(fn func(Channel, context.Context) error, message string) func(context.Context, Channel, Args) (Result, error) {
	return func(ctx context.Context, ch Channel, _ Args) (Result, error) {
		if err := fn(ch, ctx); err != nil {
			return Result{}, err
		}
		return ok(message, nil), nil
	}
}

func cmdSet(ctx context.Context, ch Channel, args Args) (Result, error) {
	key, value := args.String("key"), args.String("value")
	if err := ch.Set(ctx, key, value); err != nil {
		return Result{}, err
	}
	return ok(fmt.Sprintf("Set %s to %s", key, value), nil), nil
}

func cmdStat(_ context.Context, ch Channel, _ Args) (Result, error) {
	data, err := structToMap(ch.Stat())
	if err != nil {
		return Result{}, err
	}
	return ok("OK", data), nil
}

func cmdPluginList(_ context.Context, ch Channel, _ Args) (Result, error) {
	plugins := ch.PluginList()
	if plugins == nil {
		plugins = []plugin.Manifest{}
	}
	return ok("OK", map[string]any{"plugins": plugins}), nil
}

func cmdPluginExec(ctx context.Context, ch Channel, args Args) (Result, error) {
	name := args.String("name")
	if name == "" {
		name = args.String("id_plugin")
	}
	action := args.String("action")
	if err := ch.PluginExec(ctx, name, action, args.Map("data")); err != nil {
		return Result{}, err
	}
	return ok(fmt.Sprintf("Plugin %s executed %s", name, action), nil), nil
}

func cmdRecover(ctx context.Context, ch Channel, _ Args) (Result, error) {
	if err := ch.Recover(ctx); err != nil {
		return Result{}, err
	}
	return ok("Recovered", nil), nil
}

func structToMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return m, nil
}
