package blockers

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	papi "github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	log "github.com/sirupsen/logrus"
)

// Compile-time checks to ensure the type implements the interface
var (
	_ Blocker = (*PrometheusBlockingChecker)(nil)
)

// PrometheusBlockingChecker blocks while Prometheus reports active alerts.
type PrometheusBlockingChecker struct {
	// regexp used to filter alert names
	filter *regexp.Regexp
	// only consider firing alerts, ignore pending ones
	firingOnly bool
	// block only on alerts matching filter, instead of ignoring them
	filterMatchOnly bool
	promClient      papi.Client
}

// NewPrometheusBlockingChecker creates a new PrometheusBlockingChecker using the given
// Prometheus API config, alert filter, and filtering options.
// An invalid config leaves the client unset, which then blocks on every check.
func NewPrometheusBlockingChecker(config papi.Config, alertFilter *regexp.Regexp, firingOnly bool, filterMatchOnly bool) *PrometheusBlockingChecker {
	promClient, err := papi.NewClient(config)
	if err != nil {
		log.Errorf("Error creating prometheus client for %s: %v", config.Address, err)
	}

	return &PrometheusBlockingChecker{
		filter:          alertFilter,
		firingOnly:      firingOnly,
		filterMatchOnly: filterMatchOnly,
		promClient:      promClient,
	}
}

// IsBlocked queries the active alerts. Alerts, or a query error, block.
func (pb *PrometheusBlockingChecker) IsBlocked() bool {
	alertNames, err := pb.ActiveAlerts()
	if err != nil {
		log.Warnf("Shutdown blocked: prometheus query error: %v", err)
		return true
	}
	if len(alertNames) > 0 {
		log.Infof("Shutdown blocked by %s", summarize("active alerts", alertNames))
		return true
	}
	return false
}

// MetricLabel implements Blocker.
func (pb *PrometheusBlockingChecker) MetricLabel() string {
	return "prometheus_alert"
}

// ActiveAlerts returns the sorted names of the active alerts (pending or
// firing). Without filterMatchOnly, alerts matching the filter are ignored;
// with it, only alerts matching the filter are kept.
func (pb *PrometheusBlockingChecker) ActiveAlerts() ([]string, error) {
	if pb.promClient == nil {
		return nil, fmt.Errorf("no prometheus client")
	}
	api := v1.NewAPI(pb.promClient)

	ctx, cancel := context.WithTimeout(context.Background(), QueryTimeout)
	defer cancel()

	value, warnings, err := api.Query(ctx, "ALERTS", time.Now())
	if err != nil {
		return nil, err
	}

	for _, warning := range warnings {
		log.Warnf("Prometheus warning on ALERTS query: %s", warning)
	}

	vector, ok := value.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected value type %v", value.Type())
	}

	activeAlertSet := make(map[string]bool)
	for _, sample := range vector {
		alertName, isAlert := sample.Metric[model.AlertNameLabel]
		if !isAlert || sample.Value == 0 {
			continue
		}
		if matchesRegex(pb.filter, string(alertName), pb.filterMatchOnly) && (!pb.firingOnly || sample.Metric["alertstate"] == "firing") {
			activeAlertSet[string(alertName)] = true
		}
	}

	activeAlerts := make([]string, 0, len(activeAlertSet))
	for activeAlert := range activeAlertSet {
		activeAlerts = append(activeAlerts, activeAlert)
	}
	sort.Strings(activeAlerts)

	return activeAlerts, nil
}

func matchesRegex(filter *regexp.Regexp, alertName string, filterMatchOnly bool) bool {
	if filter == nil {
		return true
	}

	return filter.MatchString(alertName) == filterMatchOnly
}
