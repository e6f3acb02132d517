package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/trackguard/internal/event"
	"github.com/nerrad567/trackguard/internal/infrastructure/config"
	"github.com/nerrad567/trackguard/internal/infrastructure/logging"
	"github.com/nerrad567/trackguard/internal/permission"
)

type fakeIdentity struct {
	id  string
	set []string
}

func (f *fakeIdentity) Identity(context.Context) string { return f.id }

func (f *fakeIdentity) Set(id string) bool {
	if id == "" {
		return false
	}
	f.set = append(f.set, id)
	f.id = id
	return true
}

type fakePermissions struct {
	granted  bool
	state    permission.State
	attempts int
	logged   int
}

func (f *fakePermissions) QueryStatus(context.Context) permission.State { return f.state }

func (f *fakePermissions) AttemptGrantAll(context.Context) bool {
	f.attempts++
	return f.granted
}

func (f *fakePermissions) LogStatus(context.Context) { f.logged++ }

type fakeStarter struct {
	reasons []string
}

func (f *fakeStarter) EnsureRunning(_ context.Context, reason string) {
	f.reasons = append(f.reasons, reason)
}

type fakeChannel struct {
	connected   bool
	accept      bool
	connects    []string
	disconnects int
	settings    []byte
	reports     [][]byte
	reportErr   error
}

func (f *fakeChannel) ReportState(_ string, state []byte) error {
	f.reports = append(f.reports, state)
	return f.reportErr
}

func (f *fakeChannel) Connect(id string) bool {
	f.connects = append(f.connects, id)
	return f.accept
}

func (f *fakeChannel) Disconnect() {
	f.disconnects++
	f.connected = false
}

func (f *fakeChannel) IsConnected() bool { return f.connected }
func (f *fakeChannel) Settings() []byte  { return f.settings }

type fakeApplier struct {
	applied [][]byte
	err     error
}

func (f *fakeApplier) ApplySettings(_ context.Context, _ string, settings []byte) error {
	f.applied = append(f.applied, settings)
	return f.err
}

type captureLogger struct {
	lines []string
}

func (c *captureLogger) Debug(msg string, _ ...any) { c.lines = append(c.lines, "DEBUG "+msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.lines = append(c.lines, "INFO "+msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.lines = append(c.lines, "WARN "+msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.lines = append(c.lines, "ERROR "+msg) }

func (c *captureLogger) has(line string) bool {
	for _, l := range c.lines {
		if l == line {
			return true
		}
	}
	return false
}

type fixture struct {
	identity *fakeIdentity
	perms    *fakePermissions
	starter  *fakeStarter
	channel  *fakeChannel
	applier  *fakeApplier
	log      *captureLogger
	coord    *Coordinator
}

func newFixture() *fixture {
	f := &fixture{
		identity: &fakeIdentity{id: "hw-42"},
		perms:    &fakePermissions{granted: true},
		starter:  &fakeStarter{},
		channel:  &fakeChannel{accept: true},
		applier:  &fakeApplier{},
		log:      &captureLogger{},
	}
	f.coord = NewCoordinator(Deps{
		Identity:    f.identity,
		Permissions: f.perms,
		Supervisor:  f.starter,
		Channel:     f.channel,
		Applier:     f.applier,
		Logger:      f.log,
	})
	return f
}

func TestActivate_Connects(t *testing.T) {
	f := newFixture()

	f.coord.Activate(context.Background())

	assert.Equal(t, 1, f.perms.logged)
	assert.Equal(t, 1, f.perms.attempts)
	assert.Equal(t, []string{event.ReasonHostActivation}, f.starter.reasons)
	assert.Equal(t, []string{"hw-42"}, f.channel.connects)
	assert.True(t, f.log.has("INFO connecting to management"))
}

func TestActivate_OutsideManagement(t *testing.T) {
	f := newFixture()
	f.channel.accept = false

	f.coord.Activate(context.Background())

	assert.True(t, f.log.has("WARN running outside management"))
	assert.Len(t, f.starter.reasons, 1, "supervisor starts regardless of management")
}

func TestActivate_MissingPermissionsIsNonFatal(t *testing.T) {
	f := newFixture()
	f.perms.granted = false

	f.coord.Activate(context.Background())

	assert.True(t, f.log.has("WARN running with missing permissions, tracking may be throttled"))
	assert.Len(t, f.starter.reasons, 1)
	assert.Len(t, f.channel.connects, 1)
}

func TestResume_AlreadyConnectedReloads(t *testing.T) {
	f := newFixture()
	f.channel.connected = true
	f.channel.settings = []byte(`{"interval":60}`)

	f.coord.Resume(context.Background())

	assert.Equal(t, []string{ReasonHostResumed}, f.starter.reasons)
	assert.Empty(t, f.channel.connects)
	require.Len(t, f.applier.applied, 1)
	assert.Equal(t, `{"interval":60}`, string(f.applier.applied[0]))
	assert.Zero(t, f.perms.logged, "status block is only written on activation")
}

func TestTeardown(t *testing.T) {
	f := newFixture()
	f.channel.connected = true

	f.coord.Teardown(context.Background())

	assert.Equal(t, 1, f.channel.disconnects)
}

func TestCallbacks(t *testing.T) {
	f := newFixture()
	f.channel.settings = []byte(`{"a":1}`)

	f.coord.OnConnected()
	f.coord.OnConfigChanged()
	f.coord.OnDisconnected()

	assert.Len(t, f.applier.applied, 2, "only connected and config-changed reload")
	assert.True(t, f.log.has("INFO disconnected from management"))
	assert.Empty(t, f.starter.reasons)
}

func TestReload_NoSettingsOrApplierError(t *testing.T) {
	f := newFixture()

	f.coord.OnConfigChanged()
	assert.Empty(t, f.applier.applied)

	f.channel.settings = []byte(`{}`)
	f.applier.err = errors.New("bad document")
	f.coord.OnConfigChanged()
	assert.True(t, f.log.has("ERROR applying management settings failed"))
}

func TestReload_ReportsState(t *testing.T) {
	f := newFixture()
	f.channel.connected = true
	f.perms.state = permission.State{FineLocationGranted: true, PowerExemptionGranted: true}

	f.coord.OnConnected()

	require.Len(t, f.channel.reports, 1)
	var report StateReport
	require.NoError(t, json.Unmarshal(f.channel.reports[0], &report))
	assert.Equal(t, "hw-42", report.DeviceID)
	assert.True(t, report.Connected)
	assert.Equal(t, f.perms.state, report.Permissions)
	assert.Equal(t, []string{permission.BackgroundLocation}, report.Missing)
	assert.False(t, report.At.IsZero())
}

func TestReload_ReportFailureIsLogged(t *testing.T) {
	f := newFixture()
	f.channel.reportErr = errors.New("not connected")

	f.coord.OnConfigChanged()

	assert.True(t, f.log.has("WARN publishing state report failed"))
}

func newCommands(t *testing.T) (*Commands, *fakeIdentity, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	out := logging.NewWithWriter(config.LoggingConfig{Level: "verbose", Format: "text"}, "test", &buf)
	id := &fakeIdentity{}
	return NewCommands(id, out, "TraccarClient"), id, &buf
}

func TestCommands_SetDeviceID(t *testing.T) {
	cmds, id, _ := newCommands(t)
	ctx := context.Background()

	require.NoError(t, cmds.Invoke(ctx, Call{Method: MethodSetDeviceID, Args: map[string]string{"deviceId": "dev-7"}}))
	assert.Equal(t, []string{"dev-7"}, id.set)

	require.NoError(t, cmds.Invoke(ctx, Call{Method: MethodSetDeviceID}))
	assert.Len(t, id.set, 1, "missing deviceId is a no-op success")
}

func TestCommands_LogPassThrough(t *testing.T) {
	tests := []struct {
		method string
		level  string
	}{
		{MethodLogInfo, "level=INFO"},
		{MethodLogDebug, "level=DEBUG"},
		{MethodLogWarning, "level=WARN"},
		{MethodLogError, "level=ERROR"},
		{MethodLogVerbose, "level=VERBOSE"},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			cmds, _, buf := newCommands(t)

			err := cmds.Invoke(context.Background(), Call{
				Method: tt.method,
				Args:   map[string]string{"tag": "Flutter", "message": "position sent"},
			})
			require.NoError(t, err)

			out := buf.String()
			assert.Contains(t, out, tt.level)
			assert.Contains(t, out, "tag=Flutter")
			assert.Contains(t, out, `msg="position sent"`)
		})
	}
}

func TestCommands_DefaultTagAndMessage(t *testing.T) {
	cmds, _, buf := newCommands(t)

	require.NoError(t, cmds.Invoke(context.Background(), Call{Method: MethodLogInfo}))

	assert.Contains(t, buf.String(), "tag=TraccarClient")
	assert.Contains(t, buf.String(), `msg=""`)
}

func TestCommands_Unknown(t *testing.T) {
	cmds, _, _ := newCommands(t)

	err := cmds.Invoke(context.Background(), Call{Method: "reboot"})
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestCommands_Handle(t *testing.T) {
	cmds, id, _ := newCommands(t)
	ctx := context.Background()

	require.NoError(t, cmds.Handle(ctx, []byte(`{"method":"setDeviceId","args":{"deviceId":"dev-9"}}`)))
	assert.Equal(t, []string{"dev-9"}, id.set)

	assert.ErrorIs(t, cmds.Handle(ctx, []byte(`{not json`)), ErrBadArguments)
	assert.ErrorIs(t, cmds.Handle(ctx, []byte(`{"args":{}}`)), ErrBadArguments)
	assert.ErrorIs(t, cmds.Handle(ctx, []byte(`{"method":"logCritical"}`)), ErrNotImplemented)
}
