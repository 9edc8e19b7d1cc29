package sse

import "fmt"

// MaxChannelLength is the maximum length of a channel name.
const MaxChannelLength = 128

// ValidateChannel checks that name is a usable channel name: 1 to 128
// characters drawn from letters, digits, '-', ':', '_' and '.'.
// Channel names end up in bus topics, so every entry point validates them.
func ValidateChannel(name string) error {
	if name == "" {
		return fmt.Errorf("%w: must not be empty", ErrInvalidChannelName)
	}
	if len(name) > MaxChannelLength {
		return fmt.Errorf("%w: exceeds maximum length of %d characters", ErrInvalidChannelName, MaxChannelLength)
	}
	for i := 0; i < len(name); i++ {
		if !isChannelByte(name[i]) {
			return fmt.Errorf("%w: contains invalid character %q (allowed: alphanumeric, hyphens, colons, underscores, dots)",
				ErrInvalidChannelName, name[i])
		}
	}
	return nil
}

func isChannelByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-', c == ':', c == '_', c == '.':
		return true
	}
	return false
}
