// Package validate provides shared validation functions.
package validate

import (
	"fmt"
	"strings"
)

// MaxNameLength bounds channel names and client IDs.
const MaxNameLength = 128

// ChannelName validates a channel name. Names are non-empty, contain no
// whitespace and may use '/' to form a hierarchy matched by glob patterns,
// but may not start or end with it.
func ChannelName(name string) error {
	if err := checkName(name, "channel"); err != nil {
		return err
	}
	if strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return fmt.Errorf("channel %q must not start or end with '/'", name)
	}
	if strings.Contains(name, "//") {
		return fmt.Errorf("channel %q contains an empty segment", name)
	}
	if strings.ContainsAny(name, "*?[]{}") {
		return fmt.Errorf("channel %q contains glob characters", name)
	}
	return nil
}

// ClientID validates a subscriber identity.
func ClientID(id string) error {
	if err := checkName(id, "client id"); err != nil {
		return err
	}
	if strings.Contains(id, "/") {
		return fmt.Errorf("client id %q must not contain '/'", id)
	}
	return nil
}

func checkName(s, what string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s is required", what)
	}
	if len(s) > MaxNameLength {
		return fmt.Errorf("%s is longer than %d bytes", what, MaxNameLength)
	}
	for _, r := range s {
		if r <= ' ' || r == 0x7f {
			return fmt.Errorf("%s %q contains whitespace or control characters", what, s)
		}
	}
	return nil
}
