package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/DucuSandu/ha-snmp-r1d1/pkg/profile"
	"github.com/DucuSandu/ha-snmp-r1d1/pkg/snmp"
	"github.com/DucuSandu/ha-snmp-r1d1/pkg/transform"
)

const (
	accessOID    = "1.3.6.1.2.1.1.4.0"
	portCountOID = "1.3.6.1.2.1.2.1.0"
	cpuOID       = "1.3.6.1.4.1.890.1.15.3.2.4.0"
	modelOID     = "1.3.6.1.4.1.890.1.15.3.1.11.0"
	adminOID     = "1.3.6.1.2.1.2.2.1.7"
	trafficOID   = "1.3.6.1.2.1.2.2.1.10"
)

func testDescriptor(t *testing.T, name, oid string, kind transform.EntityKind, portScoped bool) *profile.Descriptor {
	t.Helper()

	d := &profile.Descriptor{Name: name, OID: oid, Kind: kind, PortScoped: portScoped}

	if kind == transform.KindSwitch {
		d.Writable = true
		d.VMap = &transform.VMap{On: []string{"1"}, Off: []string{"2"}}
	}

	require.NoError(t, d.Compile(kind))

	return d
}

func testCatalog(t *testing.T) *profile.Catalog {
	t.Helper()

	traffic := testDescriptor(t, "traffic_in", trafficOID, transform.KindSensor, true)
	traffic.Calc = transform.CalcDiff
	traffic.Width = 32
	require.NoError(t, traffic.Compile(traffic.Kind))

	return &profile.Catalog{
		DeviceType: "testswitch",
		Config: profile.Config{
			AccessTestOID: accessOID,
			PortCountOID:  portCountOID,
			PortExclude:   []int{2},
		},
		Attributes: []*profile.Descriptor{
			testDescriptor(t, "model", modelOID, transform.KindText, false),
		},
		Device: []*profile.Descriptor{
			testDescriptor(t, "cpu_usage", cpuOID, transform.KindSensor, false),
		},
		Ports: []*profile.Descriptor{
			testDescriptor(t, "port_admin", adminOID, transform.KindSwitch, true),
			traffic,
		},
	}
}

func testConfig() DeviceConfig {
	cfg := DeviceConfig{
		Name:           "sw1",
		Host:           "192.168.1.10",
		DeviceType:     "testswitch",
		EnableControls: true,
		Credentials: snmp.Credentials{
			Version:       snmp.Version2c,
			ReadCommunity: "public",
		},
	}

	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	return cfg
}

// answerGet builds a Get stub that serves any batch out of one fixture map.
// OIDs absent from the fixture come back as not supported.
func answerGet(fixture map[string]snmp.Result) func(context.Context, []string) (map[string]snmp.Result, error) {
	return func(_ context.Context, oids []string) (map[string]snmp.Result, error) {
		out := make(map[string]snmp.Result, len(oids))

		for _, oid := range oids {
			res, ok := fixture[oid]
			if !ok {
				res = snmp.Result{Err: snmp.ErrNoSuchObject}
			}

			out[oid] = res
		}

		return out, nil
	}
}

func TestValidateOIDsPartition(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := snmp.NewMockClient(ctrl)

	fixture := map[string]snmp.Result{
		portCountOID:     {Value: int64(3)},
		modelOID:         {Value: "GS1920-24"},
		cpuOID:           {Value: int64(12)},
		adminOID + ".1":  {Value: int64(1)},
		adminOID + ".3":  {Value: int64(2)},
		trafficOID + ".1": {Value: uint64(1000)},
		// traffic on port 3 missing: unsupported
	}

	client.EXPECT().Get(gomock.Any(), gomock.Any()).DoAndReturn(answerGet(fixture)).AnyTimes()

	v, err := validateOIDs(context.Background(), client, testCatalog(t), nil)
	require.NoError(t, err)

	assert.Equal(t, 3, v.portCount)

	// Port 2 is excluded by the profile, so only ports 1 and 3 expand.
	assert.Contains(t, v.supported, Key{Name: "port_admin", Port: 1})
	assert.Contains(t, v.supported, Key{Name: "port_admin", Port: 3})
	assert.NotContains(t, v.supported, Key{Name: "port_admin", Port: 2})

	assert.Contains(t, v.supported, Key{Name: "model"})
	assert.Contains(t, v.supported, Key{Name: "cpu_usage"})
	assert.Contains(t, v.supported, Key{Name: "traffic_in", Port: 1})
	assert.Contains(t, v.unsupported, Key{Name: "traffic_in", Port: 3})

	report := v.report()
	assert.Equal(t, 3, report.PortCount)
	assert.Contains(t, report.Unsupported, "port_3_traffic_in")
}

func TestValidateOIDsAbortsOnDeviceFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := snmp.NewMockClient(ctrl)

	client.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, snmp.ErrTimeout)

	_, err := validateOIDs(context.Background(), client, testCatalog(t), nil)
	assert.ErrorIs(t, err, ErrValidationAborted)
}

// startedInstance builds an instance with a committed validation pass, ready
// for individual cycle calls.
func startedInstance(t *testing.T, client snmp.Client, fixture map[string]snmp.Result) *Instance {
	t.Helper()

	in := newInstance(testConfig(), testCatalog(t), client, nil)

	mock := client.(*snmp.MockClient)
	mock.EXPECT().Get(gomock.Any(), gomock.Any()).DoAndReturn(answerGet(fixture)).AnyTimes()

	v, err := validateOIDs(context.Background(), client, in.catalog, nil)
	require.NoError(t, err)
	in.commitValidation(v)

	return in
}

func validFixture() map[string]snmp.Result {
	return map[string]snmp.Result{
		portCountOID:     {Value: int64(1)},
		modelOID:         {Value: "GS1920-24"},
		cpuOID:           {Value: int64(12)},
		adminOID + ".1":  {Value: int64(1)},
		trafficOID + ".1": {Value: uint64(1000)},
	}
}

func TestFastCycleTransformsAndPublishes(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := snmp.NewMockClient(ctrl)
	in := startedInstance(t, client, validFixture())

	in.pollFast(context.Background())

	snap := in.Snapshot()
	assert.Equal(t, uint64(1), snap.Version)

	cpu, ok := snap.Get(Key{Name: "cpu_usage"})
	require.True(t, ok)
	assert.Equal(t, transform.StateOK, cpu.Outcome.State)
	assert.InDelta(t, 12.0, cpu.Outcome.Value, 0.0001)

	admin, ok := snap.Get(Key{Name: "port_admin", Port: 1})
	require.True(t, ok)
	assert.Equal(t, true, admin.Outcome.Value)
	assert.True(t, admin.Writable)

	// First diff sample only baselines.
	traffic, ok := snap.Get(Key{Name: "traffic_in", Port: 1})
	require.True(t, ok)
	assert.Equal(t, transform.StateUnavailable, traffic.Outcome.State)

	// Attributes belong to the slow cadence and are untouched by a fast cycle.
	_, ok = snap.Get(Key{Name: "model"})
	assert.False(t, ok)

	assert.Equal(t, 0, in.Status().ConsecutiveFailures)
	assert.False(t, in.Status().LastSuccess.IsZero())
}

func TestSlowCyclePublishesAttributes(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := snmp.NewMockClient(ctrl)
	in := startedInstance(t, client, validFixture())

	in.pollSlow(context.Background())

	model, ok := in.Snapshot().Get(Key{Name: "model"})
	require.True(t, ok)
	assert.Equal(t, "GS1920-24", model.Outcome.Value)
}

func TestFailedCycleKeepsSnapshot(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := snmp.NewMockClient(ctrl)

	in := newInstance(testConfig(), testCatalog(t), client, nil)

	fixture := validFixture()
	answer := answerGet(fixture)
	failing := false

	client.EXPECT().Get(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, oids []string) (map[string]snmp.Result, error) {
			if failing {
				return nil, snmp.ErrTimeout
			}

			return answer(ctx, oids)
		}).AnyTimes()

	v, err := validateOIDs(context.Background(), client, in.catalog, nil)
	require.NoError(t, err)
	in.commitValidation(v)

	in.pollFast(context.Background())
	before := in.Snapshot()
	require.Equal(t, uint64(1), before.Version)

	failing = true

	for i := 0; i < degradedThreshold; i++ {
		in.pollFast(context.Background())
	}

	// The last good snapshot survives a dead device.
	assert.Same(t, before, in.Snapshot())

	status := in.Status()
	assert.Equal(t, degradedThreshold, status.ConsecutiveFailures)
	assert.True(t, status.Degraded)

	// The failed cycles did not corrupt the diff baseline: once the device
	// answers again, the counter diffs against the pre-outage sample.
	fixture[trafficOID+".1"] = snmp.Result{Value: uint64(2000)}
	failing = false

	in.pollFast(context.Background())

	traffic, ok := in.Snapshot().Get(Key{Name: "traffic_in", Port: 1})
	require.True(t, ok)
	assert.Equal(t, transform.StateOK, traffic.Outcome.State)
	assert.Greater(t, traffic.Outcome.Value.(float64), 0.0)
}

func TestRecoveryClearsDegraded(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := snmp.NewMockClient(ctrl)

	in := newInstance(testConfig(), testCatalog(t), client, nil)
	in.commitValidation(&validation{
		supported: map[Key]boundOID{
			{Name: "cpu_usage"}: {
				key:   Key{Name: "cpu_usage"},
				oid:   cpuOID,
				scope: scopeFast,
				desc:  testDescriptor(t, "cpu_usage", cpuOID, transform.KindSensor, false),
			},
		},
	})

	client.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, snmp.ErrTimeout).Times(degradedThreshold)

	for i := 0; i < degradedThreshold; i++ {
		in.pollFast(context.Background())
	}

	require.True(t, in.Status().Degraded)

	client.EXPECT().Get(gomock.Any(), gomock.Any()).DoAndReturn(answerGet(validFixture()))
	in.pollFast(context.Background())

	status := in.Status()
	assert.False(t, status.Degraded)
	assert.Equal(t, 0, status.ConsecutiveFailures)
}

func TestMACCycleGroupsByPort(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := snmp.NewMockClient(ctrl)

	cat := testCatalog(t)
	cat.Config.HasMACTable = true
	cat.Config.MACPortOID = "1.3.6.1.2.1.17.4.3.1.2"

	in := newInstance(testConfig(), cat, client, nil)

	client.EXPECT().Walk(gomock.Any(), cat.Config.MACPortOID).Return([]snmp.PDU{
		{OID: cat.Config.MACPortOID + ".0.17.34.51.68.85", Value: int64(1)},
		{OID: cat.Config.MACPortOID + ".170.187.204.221.238.255", Value: int64(1)},
		{OID: cat.Config.MACPortOID + ".1.2.3.4.5.6", Value: int64(3)},
	}, nil)

	in.pollMAC(context.Background())

	table := in.Snapshot().MACTable
	require.NotNil(t, table)
	assert.Equal(t, 3, table.Total())
	assert.Equal(t, []string{"00:11:22:33:44:55", "aa:bb:cc:dd:ee:ff"}, table.Ports[1])
	assert.Equal(t, []string{"01:02:03:04:05:06"}, table.Ports[3])
}

func TestMACCycleHonorsPortFilter(t *testing.T) {
	pdus := []snmp.PDU{
		{OID: "1.3.6.1.2.1.17.4.3.1.2.0.17.34.51.68.85", Value: int64(1)},
		{OID: "1.3.6.1.2.1.17.4.3.1.2.1.2.3.4.5.6", Value: int64(3)},
	}

	table := buildMACTable(pdus, []int{3}, time.Now())

	assert.Equal(t, 1, table.Total())
	assert.Empty(t, table.Ports[1])
	assert.Equal(t, []string{"01:02:03:04:05:06"}, table.Ports[3])
}

func TestWriteConfirmedUpdatesSnapshot(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := snmp.NewMockClient(ctrl)

	fixture := validFixture()
	in := startedInstance(t, client, fixture)

	key := Key{Name: "port_admin", Port: 1}
	oid := adminOID + ".1"

	// The device applies the SET, so the read-back sees the new value.
	client.EXPECT().Set(gomock.Any(), oid, 2).DoAndReturn(
		func(context.Context, string, interface{}) error {
			fixture[oid] = snmp.Result{Value: int64(2)}
			return nil
		})

	require.NoError(t, in.Write(context.Background(), key, false))

	entry, ok := in.Snapshot().Get(key)
	require.True(t, ok)
	assert.Equal(t, transform.StateOK, entry.Outcome.State)
	assert.Equal(t, false, entry.Outcome.Value)
}

func TestWriteUnverified(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := snmp.NewMockClient(ctrl)

	// The fixture keeps reporting the old state after the SET.
	in := startedInstance(t, client, validFixture())

	key := Key{Name: "port_admin", Port: 1}
	oid := adminOID + ".1"

	client.EXPECT().Set(gomock.Any(), oid, 2).Return(nil)

	err := in.Write(context.Background(), key, false)
	assert.ErrorIs(t, err, ErrWriteUnverified)

	// The snapshot was not touched by the unconfirmed write.
	_, ok := in.Snapshot().Get(key)
	assert.False(t, ok)
}

func TestWriteGuards(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := snmp.NewMockClient(ctrl)
	in := startedInstance(t, client, validFixture())

	// Unknown entity.
	err := in.Write(context.Background(), Key{Name: "nope"}, true)
	assert.ErrorIs(t, err, ErrUnknownOID)

	// Read-only entity.
	err = in.Write(context.Background(), Key{Name: "cpu_usage"}, true)
	assert.ErrorIs(t, err, ErrNotWritable)

	// Wrong payload type.
	err = in.Write(context.Background(), Key{Name: "port_admin", Port: 1}, "on")
	assert.ErrorIs(t, err, ErrWriteRejected)

	// Controls disabled.
	in.cfg.EnableControls = false
	err = in.Write(context.Background(), Key{Name: "port_admin", Port: 1}, true)
	assert.ErrorIs(t, err, ErrControlsDisabled)
}

func TestWriteRejectedByDevice(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := snmp.NewMockClient(ctrl)
	in := startedInstance(t, client, validFixture())

	client.EXPECT().Set(gomock.Any(), adminOID+".1", 2).Return(snmp.ErrAuthFailure)

	err := in.Write(context.Background(), Key{Name: "port_admin", Port: 1}, false)
	assert.ErrorIs(t, err, ErrWriteRejected)
}

func TestDeviceConfigDefaults(t *testing.T) {
	cfg := DeviceConfig{
		Name:       "sw1",
		Host:       "192.168.1.10",
		DeviceType: "generic",
		Credentials: snmp.Credentials{
			Version:       snmp.Version2c,
			ReadCommunity: "public",
		},
	}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, defaultPollInterval, time.Duration(cfg.PollInterval))
	assert.Equal(t, defaultSlowInterval, time.Duration(cfg.SlowInterval))
	assert.Equal(t, 10*defaultPollInterval, cfg.macInterval())
}

func TestDeviceConfigValidation(t *testing.T) {
	assert.ErrorIs(t, (&DeviceConfig{}).Validate(), ErrDeviceNameRequired)
	assert.ErrorIs(t, (&DeviceConfig{Name: "a"}).Validate(), ErrHostRequired)
	assert.ErrorIs(t, (&DeviceConfig{Name: "a", Host: "h"}).Validate(), ErrTypeRequired)
	assert.Error(t, (&DeviceConfig{Name: "a", Host: "h", DeviceType: "t"}).Validate())
}

func TestSnapshotVersionMonotonic(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := snmp.NewMockClient(ctrl)
	in := startedInstance(t, client, validFixture())

	for i := 0; i < 3; i++ {
		in.pollFast(context.Background())
	}

	assert.Equal(t, uint64(3), in.Snapshot().Version)
}

const managerProfile = `
device_type: testswitch
config:
  access_test_oid: 1.3.6.1.2.1.1.4.0
  port_count_oid: 1.3.6.1.2.1.2.1.0
attributes:
  model:
    oid: 1.3.6.1.4.1.890.1.15.3.1.11.0
    kind: text
device:
  cpu_usage:
    oid: 1.3.6.1.4.1.890.1.15.3.2.4.0
    unit: "%"
`

func testManager(t *testing.T, client snmp.Client) *Manager {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "testswitch.yaml"), []byte(managerProfile), 0o600))

	registry, err := profile.Load(dir)
	require.NoError(t, err)

	factory := func(DeviceConfig) (snmp.Client, error) { return client, nil }

	m := NewManager(registry, factory, nil)
	t.Cleanup(m.Stop)

	return m
}

func TestManagerLifecycle(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := snmp.NewMockClient(ctrl)

	fixture := map[string]snmp.Result{
		accessOID:    {Value: "admin"},
		portCountOID: {Value: int64(0)},
		modelOID:     {Value: "GS1920-24"},
		cpuOID:       {Value: int64(12)},
	}

	client.EXPECT().Connect().Return(nil).AnyTimes()
	client.EXPECT().Close().Return(nil).AnyTimes()
	client.EXPECT().Get(gomock.Any(), gomock.Any()).DoAndReturn(answerGet(fixture)).AnyTimes()

	m := testManager(t, client)
	cfg := testConfig()

	require.NoError(t, m.AddDevice(context.Background(), cfg))
	assert.Equal(t, []string{"sw1"}, m.Devices())

	err := m.AddDevice(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrDeviceExists)

	snap, err := m.Snapshot("sw1")
	require.NoError(t, err)
	assert.NotZero(t, snap.Version)

	cpu, ok := snap.Get(Key{Name: "cpu_usage"})
	require.True(t, ok)
	assert.Equal(t, transform.StateOK, cpu.Outcome.State)

	status, err := m.Status("sw1")
	require.NoError(t, err)
	assert.Equal(t, 2, status.SupportedOIDs)

	require.NoError(t, m.RemoveDevice("sw1"))
	assert.ErrorIs(t, m.RemoveDevice("sw1"), ErrDeviceNotFound)
}

func TestManagerSetupFlow(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := snmp.NewMockClient(ctrl)

	fixture := map[string]snmp.Result{
		accessOID:    {Value: "admin"},
		portCountOID: {Value: int64(0)},
		modelOID:     {Value: "GS1920-24"},
		cpuOID:       {Value: int64(12)},
	}

	client.EXPECT().Connect().Return(nil).AnyTimes()
	client.EXPECT().Close().Return(nil).AnyTimes()
	client.EXPECT().Get(gomock.Any(), gomock.Any()).DoAndReturn(answerGet(fixture)).AnyTimes()

	m := testManager(t, client)
	cfg := testConfig()

	require.NoError(t, m.TestConnection(context.Background(), cfg))

	report, err := m.Validate(context.Background(), cfg)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"model", "cpu_usage"}, report.Supported)

	disc, err := m.Probe(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "GS1920-24", disc.Attributes["model"])

	// Nothing was registered by the setup flow.
	assert.Empty(t, m.Devices())

	_, err = m.Probe(context.Background(), DeviceConfig{})
	assert.ErrorIs(t, err, ErrDeviceNameRequired)
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "cpu_usage", Key{Name: "cpu_usage"}.String())
	assert.Equal(t, "port_7_traffic_in", Key{Name: "traffic_in", Port: 7}.String())
}
