package blockers

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

func TestPodBlockingChecker(t *testing.T) {
	client := fake.NewSimpleClientset(
		&v1.Pod{
			ObjectMeta: metav1.ObjectMeta{
				Name:      "backup-28193",
				Namespace: "ops",
				Labels:    map[string]string{"app": "backup"},
			},
			Spec: v1.PodSpec{NodeName: "test-node"},
		},
	)

	for _, tc := range []struct {
		name        string
		selectors   []string
		shouldBlock bool
	}{
		{
			name:        "doesn't block on no selectors",
			selectors:   nil,
			shouldBlock: false,
		},
		{
			name:        "blocks when a pod matches",
			selectors:   []string{"app=backup"},
			shouldBlock: true,
		},
		{
			name:        "doesn't block when no pod matches",
			selectors:   []string{"app=batch"},
			shouldBlock: false,
		},
		{
			name:        "blocks when any selector matches",
			selectors:   []string{"app=batch", "app=backup"},
			shouldBlock: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pb := NewPodBlockingChecker(client, "test-node", tc.selectors)
			assert.Equal(t, tc.shouldBlock, pb.IsBlocked())
		})
	}
}

func TestBlockingPods(t *testing.T) {
	pod := func(namespace, name, app string) *v1.Pod {
		return &v1.Pod{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: namespace,
				Labels:    map[string]string{"app": app, "tier": "batch"},
			},
			Spec: v1.PodSpec{NodeName: "test-node"},
		}
	}
	client := fake.NewSimpleClientset(
		pod("ops", "backup-28193", "backup"),
		pod("data", "rsync-1", "rsync"),
		pod("data", "backup-1", "backup"),
	)

	pb := NewPodBlockingChecker(client, "test-node", []string{"app=backup", "tier=batch"})
	pods, err := pb.BlockingPods()
	require.NoError(t, err)
	assert.Equal(t, []string{"data/backup-1", "data/rsync-1", "ops/backup-28193"}, pods, "pods matched by several selectors are listed once")
}

func TestPodBlockingCheckerAPIError(t *testing.T) {
	client := fake.NewSimpleClientset()
	client.PrependReactor("list", "pods", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("apiserver unavailable")
	})

	pb := NewPodBlockingChecker(client, "test-node", []string{"app=backup"})
	assert.True(t, pb.IsBlocked())
	_, err := pb.BlockingPods()
	assert.ErrorContains(t, err, `matching "app=backup"`)
	assert.Equal(t, "blocker_pod", pb.MetricLabel())
}
