package service

import (
	"context"
	"errors"
	"testing"

	"env_automation/internal/device"
	"env_automation/internal/logger"
	"env_automation/internal/models"
	"env_automation/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDeviceService() (*DeviceService, *fakeStore, *device.Registry) {
	_, st := newFakeRepos()
	reg := device.NewRegistry(device.NewFactory(device.Deps{}))
	return NewDeviceService(st.devices, reg, nil, logger.Nop()), st, reg
}

func TestDeviceService_Register(t *testing.T) {
	ctx := context.Background()
	svc, st, reg := newDeviceService()

	d, err := svc.Register(ctx, DeviceRequest{Name: " kiln ", Type: "Thermal", PollEnabled: true, PollInterval: 30})
	require.NoError(t, err)
	assert.NotZero(t, d.ID)
	assert.Equal(t, "kiln", d.Name)
	assert.Equal(t, device.TypeThermal, d.Type)
	assert.True(t, d.IsActive)
	assert.Equal(t, 1, reg.Len())

	stored, _ := st.devices.GetByID(ctx, d.ID)
	require.NotNil(t, stored)
	assert.True(t, stored.Pollable())

	inactive := false
	d, err = svc.Register(ctx, DeviceRequest{Name: "spare", Type: "relay", IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, d.IsActive)
}

func TestDeviceService_RegisterInvalid(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		req  DeviceRequest
	}{
		{"no_name", DeviceRequest{Type: "relay"}},
		{"negative_interval", DeviceRequest{Name: "r", Type: "relay", PollInterval: -1}},
		{"unknown_type", DeviceRequest{Name: "x", Type: "modbus"}},
		{"bad_config", DeviceRequest{Name: "t", Type: "thermal", Config: map[string]any{"ambient_c": "warm"}}},
		{"mqtt_without_broker", DeviceRequest{Name: "m", Type: "mqtt", Config: map[string]any{"state_topic": "greenhouse/1"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, st, _ := newDeviceService()
			_, err := svc.Register(ctx, tc.req)
			if !errors.Is(err, ErrInvalidDevice) {
				t.Fatalf("expected ErrInvalidDevice, got %v", err)
			}
			if len(st.devices.items) != 0 {
				t.Fatalf("rejected device left in store: %+v", st.devices.items)
			}
		})
	}
}

func TestDeviceService_RemoveAndTestConnection(t *testing.T) {
	ctx := context.Background()
	svc, _, reg := newDeviceService()

	d, err := svc.Register(ctx, DeviceRequest{Name: "fan", Type: "relay"})
	require.NoError(t, err)
	require.NoError(t, svc.TestConnection(ctx, d.ID))

	list, err := svc.List(ctx, repository.DeviceFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.Remove(ctx, d.ID))
	assert.Equal(t, 0, reg.Len())

	got, err := svc.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.ErrorIs(t, svc.TestConnection(ctx, d.ID), ErrDeviceNotFound)
}

type invalidatingCache struct {
	memCache
	dropped []int64
}

func (c *invalidatingCache) Invalidate(ctx context.Context, deviceID int64) error {
	c.dropped = append(c.dropped, deviceID)
	return nil
}

func TestDeviceService_RemoveInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	_, st := newFakeRepos()
	cache := &invalidatingCache{}
	svc := NewDeviceService(st.devices, device.NewRegistry(device.NewFactory(device.Deps{})), cache, logger.Nop())

	d, err := svc.Register(ctx, DeviceRequest{Name: "vent", Type: "relay"})
	require.NoError(t, err)
	require.NoError(t, cache.Put(ctx, models.Reading{DeviceID: d.ID}))

	require.NoError(t, svc.Remove(ctx, d.ID))
	assert.Equal(t, []int64{d.ID}, cache.dropped)

	// A failed delete leaves the cache alone.
	assert.Error(t, svc.Remove(ctx, d.ID))
	assert.Len(t, cache.dropped, 1)
}
