package blockers

import (
	"context"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Compile-time checks to ensure the type implements the interface
var (
	_ Blocker = (*PodBlockingChecker)(nil)
)

// PodBlockingChecker blocks while pods matching one of the label
// selectors are running on this node, such as backup or batch jobs that
// must not be cut by a shutdown.
type PodBlockingChecker struct {
	client   kubernetes.Interface
	nodeName string
	// label selectors of the pods to wait for
	selectors []string
}

// NewPodBlockingChecker creates a PodBlockingChecker for the pods of nodeName.
func NewPodBlockingChecker(client kubernetes.Interface, nodeName string, podSelectors []string) *PodBlockingChecker {
	return &PodBlockingChecker{
		client:    client,
		nodeName:  nodeName,
		selectors: podSelectors,
	}
}

// IsBlocked reports whether a live pod of the node matches a selector.
// An API error blocks.
func (pb *PodBlockingChecker) IsBlocked() bool {
	pods, err := pb.BlockingPods()
	if err != nil {
		log.Warnf("Shutdown blocked: %v", err)
		return true
	}
	if len(pods) > 0 {
		log.Infof("Shutdown blocked by %s", summarize("pods on "+pb.nodeName, pods))
		return true
	}
	return false
}

// MetricLabel implements Blocker.
func (pb *PodBlockingChecker) MetricLabel() string {
	return "blocker_pod"
}

// BlockingPods returns the sorted namespace/name of the pods of the node
// matching any selector. Pods which are done (succeeded, failed or unknown)
// are ignored. All selectors share one QueryTimeout.
func (pb *PodBlockingChecker) BlockingPods() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), QueryTimeout)
	defer cancel()

	fieldSelector := fmt.Sprintf("spec.nodeName=%s,status.phase!=Succeeded,status.phase!=Failed,status.phase!=Unknown", pb.nodeName)
	matched := make(map[string]bool)
	for _, labelSelector := range pb.selectors {
		podList, err := pb.client.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{
			LabelSelector: labelSelector,
			FieldSelector: fieldSelector,
		})
		if err != nil {
			return nil, fmt.Errorf("error listing pods matching %q on %s: %w", labelSelector, pb.nodeName, err)
		}
		for _, pod := range podList.Items {
			matched[pod.Namespace+"/"+pod.Name] = true
		}
	}

	pods := make([]string, 0, len(matched))
	for pod := range matched {
		pods = append(pods, pod)
	}
	sort.Strings(pods)
	return pods, nil
}
