package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed means the startup ping did not succeed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned after Close.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrUnhealthy means the server answered the ping but reported not ready.
	ErrUnhealthy = errors.New("influxdb: server not healthy")

	// ErrWriteFailed wraps asynchronous batch write errors handed to the
	// SetOnError callback.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
