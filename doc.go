// Package bridge exposes a live peer-to-peer media session to a host
// application through a small synchronous API, while negotiation,
// connectivity establishment, and media delivery run on a private
// background runner.
//
// A Session owns one pion PeerConnection, one outbound video track, and an
// optional reliable "input" data channel. The host drives it with a handful
// of entry points:
//
//   - New / Close manage the session lifetime
//   - SetSignalCallback, SetRemoteDescription, AddICECandidate relay
//     negotiation payloads (JSON text) between the engine and the host's
//     signaling transport
//   - SendFrame feeds raw I420 pictures into the encode pipeline
//   - GetDiagnostics returns a snapshot of negotiation/connectivity state
//
// # Concurrency
//
// Entry points may be called from any goroutine. Negotiation operations are
// fire-and-forget: the call returns immediately and results surface later
// through the signal callback, which is invoked from runner goroutines with
// no affinity to the calling goroutine. GetDiagnostics is the one
// synchronous exception. Close waits for the engine's orderly shutdown and
// joins in-flight runner tasks with a bounded timeout.
//
// # Error Handling
//
// Construction failures (New, encoder creation) are returned to the caller.
// Post-construction operational failures (parse errors, failed negotiation
// application, encode and transport-write errors) never reach the host:
// they are logged and the operation is abandoned. Only closed sessions,
// missing buffers, and non-positive dimensions are rejected immediately.
//
// # Native Libraries
//
// The default VP8/VP9 encoder binds libmedia_vpx (a thin libvpx wrapper)
// via purego. Set MEDIA_VPX_LIB_PATH to the library location. Hosts can
// substitute any encoder through Config.NewEncoder.
package bridge
