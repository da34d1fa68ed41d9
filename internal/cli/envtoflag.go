// Package cli contains tools for command line parsing of shutdown-guard.
package cli

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
)

const (
	// EnvPrefix The environment variable prefix of all environment variables bound to our command line flags.
	EnvPrefix = "SHUTDOWN_GUARD"
)

// RegexpValue is a flag.Value that stores a regexp and allow quick input validation
type RegexpValue struct {
	*regexp.Regexp
}

// String method returns the string representation of the regexp.
// It was necessary to override the default String method to avoid a panic
func (rev *RegexpValue) String() string {
	if rev.Regexp == nil {
		return ""
	}
	return rev.Regexp.String()
}

// Set compiles s and keeps it as the current regexp.
func (rev *RegexpValue) Set(s string) error {
	value, err := regexp.Compile(s)
	if err != nil {
		return err
	}
	rev.Regexp = value
	return nil
}

// Type method returns the type of the flag as a string
func (rev *RegexpValue) Type() string {
	return "regexp"
}

// EnvVarName returns the environment variable bound to a flag name.
func EnvVarName(flagName string) string {
	return fmt.Sprintf("%s_%s", EnvPrefix, strings.ToUpper(strings.ReplaceAll(flagName, "-", "_")))
}

// CommandSeparator separates the commands of one environment variable.
const CommandSeparator = "\n"

// LoadFromEnv sets the flags of fs from environment variables named after
// the uppercase flag name, prefixed by EnvPrefix. Flags set on the command
// line are left alone. Repeatable flags take a comma separated list, except
// commands which take one per line.
func LoadFromEnv(fs *flag.FlagSet) error {
	var errs []string
	fs.VisitAll(func(f *flag.Flag) {
		if f.Changed {
			return
		}
		envVarName := EnvVarName(f.Name)
		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			return
		}
		if err := setFromEnv(fs, f, envValue); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", envVarName, err))
		}
	})
	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

func setFromEnv(fs *flag.FlagSet, f *flag.Flag, envValue string) error {
	switch f.Value.Type() {
	case "int":
		if _, err := strconv.Atoi(envValue); err != nil {
			return fmt.Errorf("invalid int %q", envValue)
		}
	case "float64":
		if _, err := strconv.ParseFloat(envValue, 64); err != nil {
			return fmt.Errorf("invalid float %q", envValue)
		}
	case "bool":
		parsedVal, err := strconv.ParseBool(envValue)
		if err != nil {
			return fmt.Errorf("invalid bool %q", envValue)
		}
		envValue = strconv.FormatBool(parsedVal)
	case "duration":
		// Set duration from the environment variable (e.g., "1h30m")
		if _, err := time.ParseDuration(envValue); err != nil {
			return fmt.Errorf("invalid duration %q", envValue)
		}
	case "stringArray":
		// Arrays take one value per Set, so split the list here
		return setEach(fs, f.Name, strings.Split(envValue, ","))
	case "commandSpecs":
		// Commands may contain commas, so they are separated by newlines
		return setEach(fs, f.Name, strings.Split(envValue, CommandSeparator))
	case "string", "regexp", "stringSlice":
	default:
		return fmt.Errorf("unsupported flag type %s", f.Value.Type())
	}
	return fs.Set(f.Name, envValue)
}

func setEach(fs *flag.FlagSet, name string, values []string) error {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if err := fs.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}
