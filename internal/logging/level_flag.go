package logging

import (
	"fmt"
	"strconv"
)

// levelFlag implements pflag.Value for the verbosity flag.
type levelFlag struct {
	logger *Logger
	value  int
}

func (f *levelFlag) String() string {
	return strconv.Itoa(f.value)
}

func (f *levelFlag) Set(s string) error {
	switch s {
	case "error":
		f.value = -1
	case "info":
		f.value = 0
	case "debug":
		f.value = 1
	default:
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid verbosity %q: must be 'error', 'info', 'debug' or an integer", s)
		}
		f.value = v
	}
	f.logger.SetVerbosity(f.value)
	return nil
}

func (f *levelFlag) Type() string {
	return "level"
}
