// toolkit/windowsservice/config.go
package windowsservice

import "time"

// Config names the service for the Service Control Manager.
type Config struct {
	Name        string
	DisplayName string
	Description string

	// StopTimeout bounds how long Stop waits for the app to shut down.
	// Default: 30 seconds.
	StopTimeout time.Duration
}

func (c Config) stopTimeout() time.Duration {
	if c.StopTimeout <= 0 {
		return 30 * time.Second
	}
	return c.StopTimeout
}
