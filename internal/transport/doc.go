// Package transport implements the four network primitives spec.md §6
// requires as external collaborators: send_to_addr, send_file_to_addr,
// recv_from_n, and recv_files_from_n.
//
// HTTPTransport is adapted from the teacher repo's cluster.PostJSON /
// cluster.GetJSON helpers (github.com/dreamware/torua/internal/cluster):
// the same "one shared *http.Client, POST a body, treat non-2xx as an
// error" shape, but carrying raw framed bytes or a streamed file instead of
// JSON, and paired with a receive side built the way
// cmd/node/main.go wires an http.ServeMux and *http.Server — here the
// server exists only for the duration of one RecvFromN/RecvFilesFromN
// barrier instead of the node's whole lifetime.
//
// Memory is an in-process fake used by tests and by test/integration's
// multi-node round, modeled on internal/storage.MemoryStore's map+mutex
// shape but holding per-address inboxes instead of per-key values.
package transport
