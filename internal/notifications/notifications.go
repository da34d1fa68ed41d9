// Package notifications tells operators when the shutdown guard goes up or down.
package notifications

import (
	"errors"
	"fmt"
	"strings"

	"github.com/containrrr/shoutrrr"
	"github.com/containrrr/shoutrrr/pkg/router"
	"github.com/containrrr/shoutrrr/pkg/types"
	log "github.com/sirupsen/logrus"
)

// Notifier sends a message with a title.
type Notifier interface {
	Send(message string, title string) error
}

// NoopNotifier drops every message.
type NoopNotifier struct{}

// Send implements Notifier.
func (nn *NoopNotifier) Send(_ string, _ string) error {
	return nil
}

// ShoutrrrNotifier sends messages to every configured shoutrrr service.
type ShoutrrrNotifier struct {
	serviceRouter *router.ServiceRouter
}

// Send implements Notifier. Errors of all services are joined.
func (sn *ShoutrrrNotifier) Send(message string, title string) error {
	params := &types.Params{}
	params.SetTitle(title)
	errs := sn.serviceRouter.Send(message, params)
	var errList error
	for _, err := range errs {
		if err != nil {
			errList = errors.Join(errList, err)
		}
	}
	return errList
}

// NewNotifier builds a notifier for a comma separated list of shoutrrr URLs.
// An empty or invalid list gives a NoopNotifier.
func NewNotifier(notifyURL string) Notifier {
	URL := stripQuotes(notifyURL)
	if URL == "" {
		return &NoopNotifier{}
	}
	servicesURLs := strings.Split(URL, ",")
	sr, err := shoutrrr.CreateSender(servicesURLs...)
	if err != nil {
		log.Warnf("Could not create shoutrrr notifier, will not notify: %v", err)
		return &NoopNotifier{}
	}
	return &ShoutrrrNotifier{serviceRouter: sr}
}

// Templates are the fmt templates of the guard messages; %s is the host name.
type Templates struct {
	Block   string
	Unblock string
}

// DefaultTemplates are used when no template is configured.
var DefaultTemplates = Templates{
	Block:   "Shutdown of %s blocked until conditions are met",
	Unblock: "Shutdown of %s unblocked",
}

// GuardNotifier formats guard transitions for a host and sends them.
type GuardNotifier struct {
	notifier  Notifier
	host      string
	templates Templates
}

// NewGuardNotifier creates a GuardNotifier. Empty templates fall back to DefaultTemplates.
func NewGuardNotifier(notifier Notifier, host string, templates Templates) *GuardNotifier {
	if templates.Block == "" {
		templates.Block = DefaultTemplates.Block
	}
	if templates.Unblock == "" {
		templates.Unblock = DefaultTemplates.Unblock
	}
	return &GuardNotifier{notifier: notifier, host: host, templates: templates}
}

// GuardChanged sends the message for the new guard state. Failures are only logged.
func (gn *GuardNotifier) GuardChanged(blocked bool) {
	template, title := gn.templates.Unblock, "shutdown-guard: unblocked"
	if blocked {
		template, title = gn.templates.Block, "shutdown-guard: blocked"
	}
	if err := gn.notifier.Send(fmt.Sprintf(template, gn.host), title); err != nil {
		log.Warnf("Error sending notification: %v", err)
	}
}

// stripQuotes removes any literal single or double quote chars that surround a string
func stripQuotes(str string) string {
	if len(str) > 2 {
		firstChar := str[0]
		lastChar := str[len(str)-1]
		if firstChar == lastChar && (firstChar == '"' || firstChar == '\'') {
			return str[1 : len(str)-1]
		}
	}
	// return the original string if it has a length of zero or one
	return str
}
