package systemd

import (
	"context"
	"fmt"
	"sort"

	sddbus "github.com/coreos/go-systemd/v22/dbus"
)

// DefaultUnits are the units shipped for the daemon.
var DefaultUnits = []string{"tagnotifyd.service", "tagnotifyd.socket"}

// UnitState is a trimmed view of a systemd unit.
type UnitState struct {
	Name        string
	Description string
	LoadState   string // loaded, not-found, ...
	ActiveState string // active, inactive, failed, ...
	SubState    string // running, listening, dead, ...
}

func (u UnitState) Active() bool { return u.ActiveState == "active" }

// UserUnits queries the user's systemd instance for the named units.
// Units systemd does not know are reported with LoadState "not-found".
func UserUnits(ctx context.Context, names ...string) ([]UnitState, error) {
	if len(names) == 0 {
		names = DefaultUnits
	}
	conn, err := sddbus.NewUserConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to user systemd: %w", err)
	}
	defer conn.Close()

	st, err := conn.ListUnitsByNamesContext(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	return toUnitStates(st), nil
}

func toUnitStates(in []sddbus.UnitStatus) []UnitState {
	out := make([]UnitState, 0, len(in))
	for _, s := range in {
		out = append(out, UnitState{
			Name:        s.Name,
			Description: s.Description,
			LoadState:   s.LoadState,
			ActiveState: s.ActiveState,
			SubState:    s.SubState,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
