package windowsservice

import (
	"testing"
	"time"
)

func TestConfigStopTimeout(t *testing.T) {
	if got := (Config{}).stopTimeout(); got != 30*time.Second {
		t.Errorf("default = %v", got)
	}
	if got := (Config{StopTimeout: time.Second}).stopTimeout(); got != time.Second {
		t.Errorf("explicit = %v", got)
	}
}
