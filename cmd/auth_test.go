package cmd

import (
	"strings"
	"testing"
)

func TestReadAuthCode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "code with newline", input: "4/0Abc\n", want: "4/0Abc"},
		{name: "surrounding spaces", input: "  4/0Abc  \nignored\n", want: "4/0Abc"},
		{name: "empty input", input: "", wantErr: true},
		{name: "blank line", input: "\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readAuthCode(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("readAuthCode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("readAuthCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthRejectsInvalidAccount(t *testing.T) {
	cmd := newAuthCmd()
	cmd.SetArgs([]string{"--account", "../../etc", "--code", "x"})
	cmd.SetOut(new(nopWriter))
	cmd.SetErr(new(nopWriter))

	if err := cmd.Execute(); err == nil {
		t.Error("expected an error for an invalid account name")
	}
}
