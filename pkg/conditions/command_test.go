package conditions

import (
	"reflect"
	"testing"
)

func TestNewCommandSpec(t *testing.T) {
	type args struct {
		text  string
		shell bool
	}
	tests := []struct {
		name     string
		args     args
		want     CommandSpec
		wantArgs []string
		wantErr  bool
	}{
		{
			name:     "Ensure a plain command is lexed",
			args:     args{text: "ls -Fal"},
			want:     CommandSpec{Text: "ls -Fal"},
			wantArgs: []string{"ls", "-Fal"},
		},
		{
			name:     "Ensure a leading bang negates",
			args:     args{text: "!true"},
			want:     CommandSpec{Negate: true, Text: "true"},
			wantArgs: []string{"true"},
		},
		{
			name:     "Ensure whitespace around the bang is ignored",
			args:     args{text: "  ! pgrep -x apt"},
			want:     CommandSpec{Negate: true, Text: "pgrep -x apt"},
			wantArgs: []string{"pgrep", "-x", "apt"},
		},
		{
			name:     "Ensure quotes are honoured",
			args:     args{text: `test -e "/srv/my data"`},
			want:     CommandSpec{Text: `test -e "/srv/my data"`},
			wantArgs: []string{"test", "-e", "/srv/my data"},
		},
		{
			name:     "Ensure shell commands are kept whole",
			args:     args{text: "!systemctl is-active backup | grep -q active", shell: true},
			want:     CommandSpec{Negate: true, Shell: true, Text: "systemctl is-active backup | grep -q active"},
			wantArgs: []string{"systemctl is-active backup | grep -q active"},
		},
		{
			name:    "Ensure an empty command is erroring",
			args:    args{text: "  "},
			wantErr: true,
		},
		{
			name:    "Ensure a lone bang is erroring",
			args:    args{text: "!"},
			wantErr: true,
		},
		{
			name:    "Ensure unbalanced quotes are erroring",
			args:    args{text: `echo "oops`},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewCommandSpec(tt.args.text, tt.args.shell)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewCommandSpec() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if got.Negate != tt.want.Negate || got.Shell != tt.want.Shell || got.Text != tt.want.Text {
				t.Errorf("NewCommandSpec() = %+v, want %+v", got, tt.want)
			}
			if !reflect.DeepEqual(got.Args(), tt.wantArgs) {
				t.Errorf("Args() = %v, want %v", got.Args(), tt.wantArgs)
			}
		})
	}
}

func TestCommandSpecString(t *testing.T) {
	spec, err := NewCommandSpec("! true", false)
	if err != nil {
		t.Fatal(err)
	}
	if spec.String() != "!true" {
		t.Errorf("String() = %q, want %q", spec.String(), "!true")
	}
}
