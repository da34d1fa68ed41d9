package runner

import (
	"reflect"
	"testing"
	"time"
)

func TestHostRunner_Run(t *testing.T) {
	type args struct {
		command       []string
		captureOutput bool
		useShell      bool
	}
	tests := []struct {
		name string
		args args
		want bool
	}{
		{
			name: "Ensure rc = 0 means success",
			args: args{command: []string{"true"}},
			want: true,
		},
		{
			name: "Ensure rc != 0 means failure",
			args: args{command: []string{"false"}},
			want: false,
		},
		{
			name: "Ensure a missing binary is a failure, not a crash",
			args: args{command: []string{"./babar"}},
			want: false,
		},
		{
			name: "Ensure an empty command is a failure",
			args: args{command: nil},
			want: false,
		},
		{
			name: "Ensure captured output does not change the outcome",
			args: args{command: []string{"echo", "hello"}, captureOutput: true},
			want: true,
		},
		{
			name: "Ensure shell commands are interpreted",
			args: args{command: []string{"test 1 -eq 1 && exit 0 || exit 1"}, useShell: true},
			want: true,
		},
		{
			name: "Ensure shell exit status is reported",
			args: args{command: []string{"exit", "3"}, useShell: true},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(0)
			if got := r.Run(tt.args.command, tt.args.captureOutput, tt.args.useShell); got != tt.want {
				t.Errorf("Run() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHostRunner_RunTimeout(t *testing.T) {
	r := New(50 * time.Millisecond)
	start := time.Now()
	if r.Run([]string{"sleep", "5"}, false, false) {
		t.Errorf("Run() = true for a command killed by the timeout")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Run() took %v, timeout was not applied", elapsed)
	}
}

func TestHostRunner_Output(t *testing.T) {
	r := New(0)
	out, err := r.Output([]string{"echo", "RefuseManualStart=yes"})
	if err != nil {
		t.Fatalf("Output() unexpected error: %v", err)
	}
	if out != "RefuseManualStart=yes\n" {
		t.Errorf("Output() = %q", out)
	}

	if _, err := r.Output([]string{"false"}); err == nil {
		t.Errorf("Output() expected an error for a failing command")
	}
}

func TestBuildCommand(t *testing.T) {
	tests := []struct {
		name     string
		command  []string
		useShell bool
		want     []string
		wantErr  bool
	}{
		{
			name:    "Ensure argv is kept as is",
			command: []string{"ls", "-Fal"},
			want:    []string{"ls", "-Fal"},
		},
		{
			name:     "Ensure shell commands are wrapped",
			command:  []string{"ls", "-Fal", "|", "wc"},
			useShell: true,
			want:     []string{"/bin/sh", "-c", "ls -Fal | wc"},
		},
		{
			name:    "Ensure empty command is erroring",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildCommand(tt.command, tt.useShell)
			if (err != nil) != tt.wantErr {
				t.Errorf("BuildCommand() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("BuildCommand() = %v, want %v", got, tt.want)
			}
		})
	}
}
