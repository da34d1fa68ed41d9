package blockers

import (
	"reflect"
	"testing"

	papi "github.com/prometheus/client_golang/api"
)

type BlockingChecker struct {
	blocking bool
	queried  *int
}

func (fbc BlockingChecker) IsBlocked() bool {
	if fbc.queried != nil {
		*fbc.queried++
	}
	return fbc.blocking
}

func (fbc BlockingChecker) MetricLabel() string {
	return "fake"
}

func Test_FirstBlocking(t *testing.T) {
	noCheckers := []Blocker{}
	nonblockingChecker := BlockingChecker{blocking: false}
	blockingChecker := BlockingChecker{blocking: true}

	// Instantiate a prometheusClient with a broken_url
	brokenPrometheusClient := NewPrometheusBlockingChecker(papi.Config{Address: "broken_url"}, nil, false, false)

	type args struct {
		blockers []Blocker
	}
	tests := []struct {
		name string
		args args
		want bool
	}{
		{
			name: "Do not block on no blocker defined",
			args: args{blockers: noCheckers},
			want: false,
		},
		{
			name: "Ensure a blocker blocks",
			args: args{blockers: []Blocker{blockingChecker}},
			want: true,
		},
		{
			name: "Ensure a non-blocker doesn't block",
			args: args{blockers: []Blocker{nonblockingChecker}},
			want: false,
		},
		{
			name: "Ensure one blocker is enough to block",
			args: args{blockers: []Blocker{nonblockingChecker, blockingChecker}},
			want: true,
		},
		{
			name: "Do block on error contacting prometheus API",
			args: args{blockers: []Blocker{brokenPrometheusClient}},
			want: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, got := FirstBlocking(tt.args.blockers...); got != tt.want {
				t.Errorf("FirstBlocking() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_FirstBlockingShortCircuits(t *testing.T) {
	queried := 0
	first := BlockingChecker{blocking: true}
	second := BlockingChecker{blocking: true, queried: &queried}

	blocker, blocked := FirstBlocking(first, second)
	if !blocked || blocker != first {
		t.Errorf("FirstBlocking() = %v, %v, want first blocker", blocker, blocked)
	}
	if queried != 0 {
		t.Errorf("second blocker was queried %d times, want 0", queried)
	}
}

func Test_summarize(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		want  string
	}{
		{
			name:  "lists every name up to the limit",
			names: []string{"BackupRunning", "NodeDraining"},
			want:  "2 active alerts: BackupRunning, NodeDraining",
		},
		{
			name:  "truncates long lists",
			names: []string{"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8", "a9", "a10", "a11"},
			want:  "12 active alerts: a0, a1, a2, a3, a4, a5, a6, a7, a8, a9, and 2 more",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			names := append([]string(nil), tt.names...)
			if got := summarize("active alerts", names); got != tt.want {
				t.Errorf("summarize() = %q, want %q", got, tt.want)
			}
			if !reflect.DeepEqual(names, tt.names) {
				t.Errorf("summarize() modified its input: %v", names)
			}
		})
	}
}
