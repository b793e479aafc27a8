package service_test

import (
	"strings"
	"testing"

	"github.com/labi-le/clipseat/internal/service"
)

func TestUnit(t *testing.T) {
	testCases := []struct {
		name string
		exe  string
		args []string
		want string
	}{
		{
			name: "plain path",
			exe:  "/usr/bin/clipseat",
			want: "ExecStart=/usr/bin/clipseat\n",
		},
		{
			name: "path with spaces",
			exe:  "/opt/my apps/clipseat",
			want: `ExecStart="/opt/my apps/clipseat"` + "\n",
		},
		{
			name: "watch flags",
			exe:  "/usr/bin/clipseat",
			args: []string{"--notify", "--ignore_password"},
			want: "ExecStart=/usr/bin/clipseat --notify --ignore_password\n",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			unit := service.Unit(tc.exe, tc.args, "/usr/bin", "unix:path=/run/user/1000/bus")

			if !strings.Contains(unit, tc.want) {
				t.Fatalf("unit does not contain %q:\n%s", tc.want, unit)
			}
			if !strings.Contains(unit, `Environment="DBUS_SESSION_BUS_ADDRESS=unix:path=/run/user/1000/bus"`) {
				t.Fatalf("unit lost the session bus address:\n%s", unit)
			}
		})
	}
}
