package cli

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/kubereboot/shutdown-guard/pkg/conditions"
)

// fileConfig mirrors the condition flags in a config file.
type fileConfig struct {
	ForbiddenFiles  []string      `mapstructure:"forbidden-files"`
	RequiredFiles   []string      `mapstructure:"required-files"`
	Units           []string      `mapstructure:"units"`
	Processes       []string      `mapstructure:"processes"`
	ProcessCmdlines []string      `mapstructure:"process-cmdlines"`
	RunCmds         []fileCommand `mapstructure:"run-cmds"`
}

type fileCommand struct {
	Cmd    string `mapstructure:"cmd"`
	Shell  bool   `mapstructure:"shell"`
	Negate bool   `mapstructure:"negate"`
}

// LoadConditionFile reads a ConditionSet from a YAML, JSON or TOML file,
// the format being picked from the extension. Example:
//
//	forbidden-files: [/var/run/backup.lock]
//	units: [backup.service]
//	run-cmds:
//	  - cmd: "!pgrep -x apt"
//	  - cmd: "test -z \"$(who)\""
//	    shell: true
func LoadConditionFile(path string) (conditions.ConditionSet, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return conditions.ConditionSet{}, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg fileConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return conditions.ConditionSet{}, fmt.Errorf("error decoding config file %s: %w", path, err)
	}

	cs := conditions.ConditionSet{
		ForbiddenFiles:  cfg.ForbiddenFiles,
		RequiredFiles:   cfg.RequiredFiles,
		ActiveUnits:     cfg.Units,
		Processes:       cfg.Processes,
		ProcessCmdlines: cfg.ProcessCmdlines,
	}
	for i, c := range cfg.RunCmds {
		spec, err := conditions.NewCommandSpec(c.Cmd, c.Shell)
		if err != nil {
			return conditions.ConditionSet{}, fmt.Errorf("config file %s: run-cmds[%d]: %w", path, i, err)
		}
		spec.Negate = spec.Negate || c.Negate
		cs.RunCmds = append(cs.RunCmds, spec)
	}
	return cs, nil
}
