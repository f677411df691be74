package api_test

import (
	"testing"

	"codeberg.org/mutker/excavatorctl/internal/api"
	"github.com/stretchr/testify/assert"
)

func TestCommandEncoding(t *testing.T) {
	tests := []struct {
		name string
		cmd  api.Command
		want string
	}{
		{
			name: "reset two workers",
			cmd:  api.WorkersReset(2),
			want: `{"id":1,"method":"workers.reset","params":["0","1"]}`,
		},
		{
			name: "reset no workers",
			cmd:  api.WorkersReset(0),
			want: `{"id":1,"method":"workers.reset","params":[]}`,
		},
		{
			name: "worker list",
			cmd:  api.WorkerList(),
			want: `{"id":123456789,"method":"worker.list","params":[]}`,
		},
		{
			name: "print efficiencies",
			cmd:  api.PrintEfficiencies(),
			want: `{"id":1,"method":"worker.print.efficiencies","params":[]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cmd.String())
		})
	}
}
