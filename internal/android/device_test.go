package android

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/trackguard/internal/process"
)

type fakeRunner struct {
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	cmd := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, cmd)
	if err := f.errs[cmd]; err != nil {
		return nil, err
	}
	return []byte(f.outputs[cmd]), nil
}

const pkg = "org.traccar.client"

func testDevice(r *fakeRunner) *Device {
	return NewDevice(r, pkg, map[process.Target]Component{
		process.TargetMain:       {Name: pkg + "/.MainActivity", Kind: KindActivity},
		process.TargetSupervisor: {Name: pkg + "/.RestartService", Kind: KindService},
	})
}

func TestLaunch(t *testing.T) {
	tests := []struct {
		name string
		req  process.Request
		want string
	}{
		{
			name: "activity ignores mode",
			req:  process.Request{Target: process.TargetMain, Mode: process.ModeForeground},
			want: "am start -n org.traccar.client/.MainActivity -f 0x10000000",
		},
		{
			name: "foreground service",
			req:  process.Request{Target: process.TargetSupervisor, Mode: process.ModeForeground},
			want: "am start-foreground-service -n org.traccar.client/.RestartService",
		},
		{
			name: "background service",
			req:  process.Request{Target: process.TargetSupervisor, Mode: process.ModeBackground},
			want: "am startservice -n org.traccar.client/.RestartService",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRunner{}
			require.NoError(t, testDevice(r).Launch(context.Background(), tt.req))
			assert.Equal(t, []string{tt.want}, r.calls)
		})
	}
}

func TestLaunch_Errors(t *testing.T) {
	t.Run("unknown target", func(t *testing.T) {
		d := NewDevice(&fakeRunner{}, pkg, nil)
		err := d.Launch(context.Background(), process.Request{Target: process.TargetMain})
		assert.ErrorIs(t, err, process.ErrUnknownTarget)
	})

	t.Run("bad component", func(t *testing.T) {
		d := NewDevice(&fakeRunner{}, pkg, map[process.Target]Component{
			process.TargetMain: {Name: "MainActivity", Kind: KindActivity},
		})
		err := d.Launch(context.Background(), process.Request{Target: process.TargetMain})
		assert.ErrorIs(t, err, ErrBadComponent)
	})

	t.Run("am reports error with zero exit", func(t *testing.T) {
		r := &fakeRunner{outputs: map[string]string{
			"am start-foreground-service -n org.traccar.client/.RestartService": "Error: Not allowed to start service Intent\n",
		}}
		err := testDevice(r).Launch(context.Background(), process.Request{
			Target: process.TargetSupervisor, Mode: process.ModeForeground,
		})
		assert.ErrorIs(t, err, ErrCommandFailed)
	})

	t.Run("runner failure", func(t *testing.T) {
		r := &fakeRunner{errs: map[string]error{
			"am startservice -n org.traccar.client/.RestartService": errors.New("exit status 255"),
		}}
		err := testDevice(r).Launch(context.Background(), process.Request{
			Target: process.TargetSupervisor, Mode: process.ModeBackground,
		})
		assert.ErrorIs(t, err, ErrCommandFailed)
		assert.Contains(t, err.Error(), "exit status 255")
	})
}

const dumpsysPackage = `Packages:
  Package [org.traccar.client] (2f1c9a0):
    requested permissions:
      android.permission.ACCESS_FINE_LOCATION
      android.permission.ACCESS_BACKGROUND_LOCATION
    install permissions:
      android.permission.INTERNET: granted=true
    runtime permissions:
      android.permission.ACCESS_FINE_LOCATION: granted=true, flags=[ USER_SET ]
      android.permission.ACCESS_BACKGROUND_LOCATION: granted=false, flags=[ USER_SET ]
`

func TestGranted(t *testing.T) {
	r := &fakeRunner{outputs: map[string]string{"dumpsys package org.traccar.client": dumpsysPackage}}
	d := testDevice(r)
	ctx := context.Background()

	ok, err := d.Granted(ctx, "android.permission.ACCESS_FINE_LOCATION")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Granted(ctx, "android.permission.ACCESS_BACKGROUND_LOCATION")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = d.Granted(ctx, "android.permission.CAMERA")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGranted_QueryError(t *testing.T) {
	r := &fakeRunner{errs: map[string]error{"dumpsys package org.traccar.client": errors.New("not found")}}
	_, err := testDevice(r).Granted(context.Background(), "android.permission.ACCESS_FINE_LOCATION")
	assert.ErrorIs(t, err, ErrCommandFailed)
}

func TestPowerExempt(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   bool
	}{
		{"listed", "system-excidle,com.android.phone,1001\nuser,org.traccar.client,10123\n", true},
		{"listed without uid", "user,org.traccar.client\n", true},
		{"prefix of another package", "user,org.traccar.client.debug,10124\n", false},
		{"absent", "system,com.android.shell,2000\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRunner{outputs: map[string]string{"dumpsys deviceidle whitelist": tt.output}}
			got, err := testDevice(r).PowerExempt(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenSettings(t *testing.T) {
	r := &fakeRunner{}
	err := testDevice(r).OpenSettings(context.Background(), "android.settings.REQUEST_IGNORE_BATTERY_OPTIMIZATIONS")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"am start -a android.settings.REQUEST_IGNORE_BATTERY_OPTIMIZATIONS -d package:org.traccar.client",
	}, r.calls)
}

func TestPlatformVersion(t *testing.T) {
	r := &fakeRunner{outputs: map[string]string{"getprop ro.build.version.sdk": "33\n"}}
	v, err := testDevice(r).PlatformVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 33, v)

	r = &fakeRunner{outputs: map[string]string{"getprop ro.build.version.sdk": "\n"}}
	_, err = testDevice(r).PlatformVersion(context.Background())
	assert.ErrorIs(t, err, ErrCommandFailed)
}
