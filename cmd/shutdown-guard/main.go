// shutdown-guard blocks poweroff, reboot and halt of a systemd host while
// a set of conditions is not met, and lifts the block once they are.
package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"syscall"
	"time"

	papi "github.com/prometheus/client_golang/api"
	"github.com/prometheus/common/version"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/kubereboot/shutdown-guard/internal/cli"
	"github.com/kubereboot/shutdown-guard/internal/metrics"
	"github.com/kubereboot/shutdown-guard/internal/notifications"
	"github.com/kubereboot/shutdown-guard/pkg/blockers"
	"github.com/kubereboot/shutdown-guard/pkg/conditions"
	"github.com/kubereboot/shutdown-guard/pkg/guard"
	"github.com/kubereboot/shutdown-guard/pkg/runner"
	"github.com/kubereboot/shutdown-guard/pkg/supervisor"
)

const (
	programName = "shutdown-guard"

	exitNotRoot     = 1
	exitConfigError = 2
)

// maxIntervalSeconds bounds the interval so it fits in a time.Duration.
var maxIntervalSeconds = float64(math.MaxInt64) / float64(time.Second)

// options holds the command line flags
type options struct {
	install bool
	remove  bool

	forbiddenFiles  []string
	requiredFiles   []string
	units           []string
	processes       []string
	processCmdlines []string
	runCmds         cli.CommandSpecs

	interval     float64
	stayResident bool
	logLevel     string
	logFormat    string
	configFile   string

	guardMechanism string
	overrideDir    string
	procMount      string
	commandTimeout time.Duration

	notifyURL              string
	messageTemplateBlock   string
	messageTemplateUnblock string
	metricsHost            string
	metricsPort            int

	podSelectors         []string
	nodeID               string
	kubeconfig           string
	prometheusURL        string
	alertFilter          cli.RegexpValue
	alertFiringOnly      bool
	alertFilterMatchOnly bool
}

// exitError carries the process exit code of a failed run.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func configError(format string, a ...interface{}) error {
	return &exitError{code: exitConfigError, err: fmt.Errorf(format, a...)}
}

// exitCode maps a run error to the process exit code. Anything not
// tagged otherwise, flag parsing errors included, is a configuration error.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitConfigError
}

func main() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(exitCode(err))
	}
}

// NewRootCommand creates the shutdown-guard command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&options{})
}

func newRootCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:           programName,
		Short:         "Block poweroff, reboot and halt until conditions are met",
		Version:       version.Info(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cli.LoadFromEnv(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd.Context())
		},
	}
	cmd.SetVersionTemplate(version.Print(programName) + "\n")
	opts.addFlags(cmd.Flags())
	cmd.MarkFlagsMutuallyExclusive("install", "remove")
	return cmd
}

func (o *options) addFlags(fs *flag.FlagSet) {
	fs.BoolVar(&o.install, "install", false,
		"block the shutdown targets and exit")
	fs.BoolVar(&o.remove, "remove", false,
		"unblock the shutdown targets and exit")

	fs.StringArrayVar(&o.forbiddenFiles, "forbid-file", nil,
		"block while this file exists (repeatable)")
	fs.StringArrayVar(&o.requiredFiles, "require-file", nil,
		"block while this file does not exist (repeatable)")
	fs.StringArrayVar(&o.units, "unit", nil,
		"block while this systemd unit is active (repeatable)")
	fs.StringArrayVar(&o.processes, "process", nil,
		"block while a process with this exact name runs (repeatable)")
	fs.StringArrayVar(&o.processCmdlines, "process-cmdline", nil,
		"block while a process with this exact command line runs (repeatable)")
	fs.Var(o.runCmds.Flag(false), "run-cmd",
		"block until this command succeeds, or fails with a leading '!' (repeatable, one per line in the environment)")
	fs.Var(o.runCmds.Flag(true), "run-shell-cmd",
		"like --run-cmd, run through /bin/sh -c (repeatable, one per line in the environment)")

	fs.Float64Var(&o.interval, "interval", supervisor.DefaultInterval.Seconds(),
		"seconds between two checks")
	fs.BoolVar(&o.stayResident, "stay-resident", false,
		"keep checking once the conditions are met instead of exiting")
	fs.StringVar(&o.logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	fs.StringVar(&o.logFormat, "log-format", "text",
		"log format (text, json)")
	fs.StringVar(&o.configFile, "config", "",
		"file with condition lists, checked before the ones given as flags")

	fs.StringVar(&o.guardMechanism, "guard-mechanism", guard.MechanismSystemd,
		"how shutdown is blocked")
	fs.StringVar(&o.overrideDir, "override-dir", guard.DefaultOverrideDir,
		"systemd unit directory receiving the drop-ins")
	fs.StringVar(&o.procMount, "proc-mount", "/proc",
		"procfs mount point used by the process conditions")
	fs.DurationVar(&o.commandTimeout, "command-timeout", 0,
		"kill external commands after this duration (default: 0, no timeout)")

	fs.StringVar(&o.notifyURL, "notify-url", "",
		"comma separated shoutrrr URLs notified on guard changes")
	fs.StringVar(&o.messageTemplateBlock, "message-template-block", notifications.DefaultTemplates.Block,
		"message sent when the guard is installed, %s is the host name")
	fs.StringVar(&o.messageTemplateUnblock, "message-template-unblock", notifications.DefaultTemplates.Unblock,
		"message sent when the guard is removed, %s is the host name")
	fs.StringVar(&o.metricsHost, "metrics-host", "",
		"host where metrics will listen")
	fs.IntVar(&o.metricsPort, "metrics-port", 0,
		"port number where metrics will listen (default: 0, disabled)")

	fs.StringArrayVar(&o.podSelectors, "blocking-pod-selector", nil,
		"block while pods matching this label selector run on the node (repeatable)")
	fs.StringVar(&o.nodeID, "node-id", "",
		"kubernetes node name of this host (default: host name)")
	fs.StringVar(&o.kubeconfig, "kubeconfig", "",
		"kubeconfig used by the pod blocker (default: in-cluster config)")
	fs.StringVar(&o.prometheusURL, "prometheus-url", "",
		"block while alerts are active on this Prometheus instance")
	fs.Var(&o.alertFilter, "alert-filter-regexp",
		"alert names to ignore when checking for active alerts")
	fs.BoolVar(&o.alertFiringOnly, "alert-firing-only", false,
		"only consider firing alerts when checking for active alerts")
	fs.BoolVar(&o.alertFilterMatchOnly, "alert-filter-match-only", false,
		"only block on alerts matching the filter regexp")
}

// validate catches every configuration error before the host is touched.
func (o *options) validate() error {
	if math.IsNaN(o.interval) || o.interval <= 0 || o.interval >= maxIntervalSeconds {
		return configError("invalid interval %v, must be positive and below %.0f seconds", o.interval, maxIntervalSeconds)
	}
	if o.metricsPort < 0 || o.metricsPort > 65535 {
		return configError("invalid metrics port %d", o.metricsPort)
	}
	if o.commandTimeout < 0 {
		return configError("invalid command timeout %v", o.commandTimeout)
	}
	return nil
}

// conditionSet merges the config file conditions with the flag conditions.
func (o *options) conditionSet() (conditions.ConditionSet, error) {
	var fromFile conditions.ConditionSet
	if o.configFile != "" {
		cs, err := cli.LoadConditionFile(o.configFile)
		if err != nil {
			return conditions.ConditionSet{}, configError("%w", err)
		}
		fromFile = cs
	}
	return fromFile.Merge(conditions.ConditionSet{
		ForbiddenFiles:  o.forbiddenFiles,
		RequiredFiles:   o.requiredFiles,
		ActiveUnits:     o.units,
		Processes:       o.processes,
		ProcessCmdlines: o.processCmdlines,
		RunCmds:         o.runCmds.Specs,
	}), nil
}

// pollInterval converts the interval seconds into a duration.
func (o *options) pollInterval() time.Duration {
	return time.Duration(o.interval * float64(time.Second))
}

func configureLogging(level string, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return configError("invalid log level: %w", err)
	}
	log.SetLevel(lvl)
	switch format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return configError("invalid log format %q, expected text or json", format)
	}
	return nil
}

// newBlockers builds the optional cluster blockers.
func (o *options) newBlockers() ([]blockers.Blocker, error) {
	var blockCheckers []blockers.Blocker
	if o.prometheusURL != "" {
		log.Infof("Blocking shutdown with prometheus alerts on %v", o.prometheusURL)
		blockCheckers = append(blockCheckers, blockers.NewPrometheusBlockingChecker(papi.Config{Address: o.prometheusURL}, o.alertFilter.Regexp, o.alertFiringOnly, o.alertFilterMatchOnly))
	}
	if len(o.podSelectors) > 0 {
		nodeID, err := o.node()
		if err != nil {
			return nil, configError("cannot guess the node id: %w", err)
		}
		config, err := clientcmd.BuildConfigFromFlags("", o.kubeconfig)
		if err != nil {
			return nil, configError("error loading kubernetes config: %w", err)
		}
		client, err := kubernetes.NewForConfig(config)
		if err != nil {
			return nil, configError("error creating kubernetes client: %w", err)
		}
		log.Infof("Blocking shutdown with pods matching %v on node %s", o.podSelectors, nodeID)
		blockCheckers = append(blockCheckers, blockers.NewPodBlockingChecker(client, nodeID, o.podSelectors))
	}
	return blockCheckers, nil
}

func (o *options) node() (string, error) {
	if o.nodeID != "" {
		return o.nodeID, nil
	}
	return os.Hostname()
}

// filterMatchOnly without a filter would never block; reject it early.
func (o *options) validateAlertFilter() error {
	if o.alertFilterMatchOnly && o.alertFilter.Regexp == nil {
		return configError("--alert-filter-match-only requires --alert-filter-regexp")
	}
	return nil
}

// checkPrivilege fails unless running as root.
func checkPrivilege(euid int) error {
	if euid != 0 {
		return &exitError{code: exitNotRoot, err: fmt.Errorf("%s must run as root (euid %d)", programName, euid)}
	}
	return nil
}

// recordingChecker evaluates the conditions and records the result.
type recordingChecker struct {
	evaluator *conditions.Evaluator
	metrics   *metrics.Metrics
}

func (rc recordingChecker) Check() bool {
	result := rc.evaluator.Evaluate()
	rc.metrics.CheckDone(result)
	return result.Passed
}

// watchTermination subscribes to SIGINT and SIGTERM until the returned
// cancel func is called.
func watchTermination(ctx context.Context) (*supervisor.Termination, context.CancelFunc) {
	term := supervisor.NewTermination()
	ctx, cancel := context.WithCancel(ctx)
	term.Watch(ctx, os.Interrupt, syscall.SIGTERM)
	return term, cancel
}

func (o *options) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	// One-shot actions complete even when a signal arrives meanwhile; the
	// loop turns a signal into a teardown.
	term, cancel := watchTermination(ctx)
	defer cancel()

	if err := configureLogging(o.logLevel, o.logFormat); err != nil {
		return err
	}
	if err := o.validate(); err != nil {
		return err
	}
	if err := o.validateAlertFilter(); err != nil {
		return err
	}
	cs, err := o.conditionSet()
	if err != nil {
		return err
	}

	hostRunner := runner.New(o.commandTimeout)
	m := metrics.New()
	controller, err := guard.New(o.guardMechanism, hostRunner, afero.NewOsFs(), o.overrideDir)
	if err != nil {
		return configError("%w", err)
	}
	controller.WithObserver(m.TargetChanged)

	if err := checkPrivilege(os.Geteuid()); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"version":   version.Version,
		"mechanism": o.guardMechanism,
		"interval":  o.pollInterval(),
		"resident":  o.stayResident,
	}).Infof("Starting %s", programName)

	switch {
	case o.install:
		controller.SetGuard(true)
		return nil
	case o.remove:
		controller.SetGuard(false)
		return nil
	}

	procs, err := conditions.NewProcFS(o.procMount)
	if err != nil {
		return configError("%w", err)
	}
	blockCheckers, err := o.newBlockers()
	if err != nil {
		return err
	}
	logConditions(cs)

	if o.metricsPort > 0 {
		go func() {
			if err := m.Serve(o.metricsHost, o.metricsPort); err != nil {
				log.Errorf("Metrics server stopped: %v", err)
			}
		}()
	}

	host, err := o.node()
	if err != nil {
		log.Warnf("Cannot read host name: %v", err)
	}
	notifier := notifications.NewGuardNotifier(notifications.NewNotifier(o.notifyURL), host, notifications.Templates{
		Block:   o.messageTemplateBlock,
		Unblock: o.messageTemplateUnblock,
	})

	evaluator := conditions.NewEvaluator(cs, hostRunner, afero.NewOsFs(), procs, blockCheckers...)
	supervisor.New(
		supervisor.Config{Interval: o.pollInterval(), ExitOnPass: !o.stayResident},
		recordingChecker{evaluator: evaluator, metrics: m},
		controller,
		supervisor.Hooks{OnGuardChange: notifier.GuardChanged},
	).Run(term)
	return nil
}

func logConditions(cs conditions.ConditionSet) {
	fields := log.Fields{
		conditions.CategoryForbiddenFiles:  cs.ForbiddenFiles,
		conditions.CategoryRequiredFiles:   cs.RequiredFiles,
		conditions.CategoryActiveUnits:     cs.ActiveUnits,
		conditions.CategoryProcesses:       cs.Processes,
		conditions.CategoryProcessCmdlines: cs.ProcessCmdlines,
	}
	var cmds []string
	for _, spec := range cs.RunCmds {
		cmds = append(cmds, spec.String())
	}
	fields[conditions.CategoryRunCmds] = cmds
	log.WithFields(fields).Info("Conditions configured")
}
