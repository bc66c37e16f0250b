package logging

import (
	"fmt"
	"os"
	"strings"
)

const envVar = "CAMSTACK_LOGLEVEL"

var tagLevels []struct {
	tag   string
	level Level
}

func init() {
	// The environment variable is a comma-separated list of "tag=level"
	// directives. A bare level with no "tag=" sets the default.
	for _, directive := range strings.Split(os.Getenv(envVar), ",") {
		if directive == "" {
			continue
		}

		tag, levelString, tagged := strings.Cut(directive, "=")
		if !tagged {
			levelString = tag
		}

		level, err := parseLevel(levelString)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid %s directive '%s': %s\n", envVar, directive, err)
			continue
		}

		if tagged {
			tagLevels = append(tagLevels, struct {
				tag   string
				level Level
			}{tag, level})
		} else {
			defaultLevel = level
		}
	}

	DefaultLogger.Level = defaultLevel
}

func determineLevel(tag string, fallback Level) Level {
	for _, e := range tagLevels {
		if e.tag == tag {
			return e.level
		}
	}
	return fallback
}
