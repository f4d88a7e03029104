// Package canvas implements a layered-canvas compositing engine: a layer
// data model and container store, a GPU compositor built on gogpu/wgpu,
// and a synchronization engine that reconciles the store with an external
// image-generation session source.
//
// The root package holds only shared infrastructure (logging). The real
// work lives in the sub-packages:
//
//   - layer: pure value types (transforms, bounds, blend modes, layer
//     variants) with their invariants.
//   - store: the authoritative layer container store with CRUD,
//     selection, reordering, undo history, and a typed event bus.
//   - compositor: shader-program management, per-frame batching by blend
//     mode and effect, and texture upload and caching.
//   - imagesync: the queue-driven reconciler between the store and an
//     external image-session source.
//   - session: the image-session model and an in-memory source.
//   - artifact: the serialization contract with the rest of the
//     application.
//
// Control flow: UI actions and incoming session events enqueue sync
// tasks; the queue serializes their application against the store; store
// mutations emit events that trigger a redraw through the compositor.
package canvas
