// Package bridge synchronises one fireplace controller with a Wiren Board
// style MQTT topic tree.
//
// The package has four parts:
//
//   - Model: the static control table and topic naming (/devices/{id}/controls/...)
//   - Gateway: meta and startup snapshot publishing, command subscriptions
//   - Router: validates inbound command payloads and dispatches them over HTTP
//   - Reconciler: polls the controller and owns availability and error state
//
// Bridge wires them together and runs two lanes under one errgroup: the
// router lane, fed by a bounded channel from the MQTT delivery goroutine, and
// the poller lane. The poller is the only writer of DeviceState and
// ErrorState; other goroutines read published snapshots.
//
// Publishing is fire-and-forget. A failed publish is logged and the lane
// carries on; the broker session is repaired by the MQTT client's reconnect
// loop, which republishes meta on every new session.
package bridge
