package snapshot

import (
	"context"
	"time"

	"github.com/alottabits/boardfarm-bdd-sub001/pkg/event"
)

// Item is one captured configuration value. Nested device trees flatten
// into keyed item paths, so the model stays typed rather than an
// open-ended dynamic object.
type Item struct {
	// Source references the provider the value came from (e.g. "tr069",
	// "uci", "snmp").
	Source string

	// Value is the captured value, normalized to its string form.
	Value string
}

// Snapshot is the configuration of one device at one instant.
type Snapshot struct {
	// Identity is the device the snapshot belongs to.
	Identity event.Identity

	// TakenAt is when the snapshot was captured.
	TakenAt time.Time

	// Items maps item paths (e.g. "Device.WiFi.SSID.1.SSID") to values.
	Items map[string]Item
}

// Capturer reads the current configuration of a device.
// Implemented by the external snapshot/restore collaborator.
type Capturer interface {
	Capture(ctx context.Context, identity event.Identity) (Snapshot, error)
}

// Restorer writes a snapshot back to a device. Restoration proceeds per
// item; one item's failure does not abort the rest.
type Restorer interface {
	Restore(ctx context.Context, snap Snapshot) (RestoreReport, error)
}

// ItemResult is the restore outcome for one item path.
type ItemResult struct {
	// Path is the item path.
	Path string

	// Err is nil on success.
	Err error
}

// RestoreReport lists per-item restore outcomes.
type RestoreReport struct {
	// Identity is the device that was restored.
	Identity event.Identity

	// Items holds one result per attempted item.
	Items []ItemResult
}

// Failed returns the results of items that could not be restored.
func (r RestoreReport) Failed() []ItemResult {
	var failed []ItemResult
	for _, item := range r.Items {
		if item.Err != nil {
			failed = append(failed, item)
		}
	}
	return failed
}

// AllRestored reports whether every item restored successfully.
func (r RestoreReport) AllRestored() bool {
	return len(r.Failed()) == 0
}
