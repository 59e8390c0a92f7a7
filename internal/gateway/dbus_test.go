package gateway

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "tagnotify/pkg/logx"
)

func TestParseClosed(t *testing.T) {
	sig := &dbus.Signal{
		Name: dbusNotifyInterface + "." + dbusClosedMember,
		Body: []interface{}{uint32(9), uint32(2)},
	}
	ev, ok := parseClosed(sig)
	require.True(t, ok)
	assert.Equal(t, Closed{ID: 9, Reason: ReasonDismissed}, ev)
	assert.Equal(t, "dismissed", ev.Reason.String())
}

func TestParseClosedIgnoresOtherSignals(t *testing.T) {
	cases := []*dbus.Signal{
		nil,
		{Name: dbusNotifyInterface + ".ActionInvoked", Body: []interface{}{uint32(1), "default"}},
		{Name: dbusNotifyInterface + "." + dbusClosedMember, Body: []interface{}{uint32(1)}},
		{Name: dbusNotifyInterface + "." + dbusClosedMember, Body: []interface{}{"1", uint32(1)}},
	}
	for i, sig := range cases {
		_, ok := parseClosed(sig)
		assert.False(t, ok, "case %d", i)
	}
}

func TestExpireMillis(t *testing.T) {
	assert.Equal(t, int32(2000), Notification{Timeout: 2 * time.Second}.ExpireMillis())
	assert.Equal(t, int32(0), Notification{}.ExpireMillis())
	assert.Equal(t, int32(-1), Notification{Timeout: -time.Second}.ExpireMillis())
	assert.Equal(t, int32(1<<31-1), Notification{Timeout: 1000 * time.Hour}.ExpireMillis())
}

func TestDBusShowAndReplace(t *testing.T) {
	// Skip if no D-Bus session (CI environment)
	if os.Getenv("DBUS_SESSION_BUS_ADDRESS") == "" {
		t.Skip("no D-Bus session available")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	gw, err := Connect(ctx, logx.Nop())
	require.NoError(t, err)
	defer gw.Close()

	if _, err := gw.ServerInfo(ctx); err != nil {
		t.Skipf("no notification server on the session bus: %v", err)
	}

	v := int32(50)
	id1, err := gw.Show(ctx, Notification{AppName: "tagnotify-test", Summary: "volume", Hint: &v, Timeout: time.Second})
	require.NoError(t, err)
	assert.NotEqual(t, NoHandle, id1)

	v = 60
	id2, err := gw.Show(ctx, Notification{AppName: "tagnotify-test", Summary: "volume", Hint: &v, ReplacesID: id1, Timeout: time.Second})
	require.NoError(t, err)
	assert.NotEqual(t, NoHandle, id2)
}
