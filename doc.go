// Package volumewriter converts a large five-dimensional (X,Y,Z,C,T)
// microscopy image, pushed block by block in any order the client
// chooses, into a hierarchical, chunked, compressed container file
// with an image pyramid, per-channel histograms, a colorized
// thumbnail, and structured metadata.
//
// Open selects the concrete implementation for the requested voxel
// type and wires together the internal pipeline: the multi-resolution
// engine (internal/engine) that reorders and resamples incoming
// blocks, the compress-and-write stage (internal/writerpipeline) that
// applies back-pressure, and the container backend
// (internal/container) that persists the result. Use Writer's
// NeedCopyBlock/CopyBlock/Finish to drive a conversion.
package volumewriter
